// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package metricsapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// Backend answers target discovery and time-series queries for the
// datasource endpoints.
type Backend interface {
	Targets(ctx context.Context) ([]string, error)
	Query(ctx context.Context, target string, opts QueryOptions) ([]DataPoint, error)
}

// Datasource implements the Grafana "simple JSON" datasource protocol:
// GET / for the health probe, POST /search, /query and /annotations.
type Datasource struct {
	backend Backend
	logger  *slog.Logger
}

// NewDatasource wraps a backend. Pass nil to use the default logger.
func NewDatasource(backend Backend, logger *slog.Logger) *Datasource {
	if logger == nil {
		logger = slog.Default()
	}
	return &Datasource{backend: backend, logger: logger}
}

// RegisterRoutes mounts the datasource endpoints on rg.
func (d *Datasource) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/", d.handleProbe)
	rg.POST("/search", d.handleSearch)
	rg.POST("/query", d.handleQuery)
	rg.POST("/annotations", d.handleAnnotations)
}

type searchRequest struct {
	Target string `json:"target"`
}

type queryRequest struct {
	Range struct {
		From time.Time `json:"from"`
		To   time.Time `json:"to"`
	} `json:"range"`
	IntervalMs    int64 `json:"intervalMs"`
	MaxDataPoints int64 `json:"maxDataPoints"`
	Targets       []struct {
		Target string `json:"target"`
		Type   string `json:"type"`
	} `json:"targets"`
}

type timeSeriesResponse struct {
	Target     string      `json:"target"`
	DataPoints []DataPoint `json:"datapoints"`
}

type tableColumn struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

type tableResponse struct {
	Type    string        `json:"type"`
	Columns []tableColumn `json:"columns"`
	Rows    [][]any       `json:"rows"`
}

// handleProbe answers Grafana's datasource connectivity test.
func (d *Datasource) handleProbe(c *gin.Context) {
	c.Status(http.StatusOK)
}

// handleSearch lists targets matching the typed prefix.
func (d *Datasource) handleSearch(c *gin.Context) {
	var req searchRequest
	// Grafana sends {"target":""} on an empty field; a missing body is
	// treated the same.
	_ = c.ShouldBindJSON(&req)

	targets, err := d.backend.Targets(c.Request.Context())
	if err != nil {
		d.logger.Error("target discovery failed", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	matches := lo.Filter(targets, func(t string, _ int) bool {
		return req.Target == "" || strings.Contains(t, req.Target)
	})
	c.JSON(http.StatusOK, matches)
}

// handleQuery answers panel queries. Each requested target yields one
// response entry, rendered as a timeserie or a table per its type.
func (d *Datasource) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	opts := QueryOptions{
		From:          req.Range.From,
		To:            req.Range.To,
		IntervalMs:    req.IntervalMs,
		MaxDataPoints: req.MaxDataPoints,
	}

	results := make([]any, 0, len(req.Targets))
	for _, target := range req.Targets {
		points, err := d.backend.Query(c.Request.Context(), target.Target, opts)
		if err != nil {
			d.logger.Warn("query failed", "target", target.Target, "error", err)
			continue
		}
		if target.Type == "table" {
			results = append(results, toTable(points))
			continue
		}
		results = append(results, timeSeriesResponse{Target: target.Target, DataPoints: points})
	}
	c.JSON(http.StatusOK, results)
}

// handleAnnotations exists because Grafana probes it; there are no
// annotations.
func (d *Datasource) handleAnnotations(c *gin.Context) {
	c.JSON(http.StatusOK, []any{})
}

func toTable(points []DataPoint) tableResponse {
	rows := make([][]any, len(points))
	for i, p := range points {
		rows[i] = []any{p.TimestampMs, p.Value}
	}
	return tableResponse{
		Type: "table",
		Columns: []tableColumn{
			{Text: "Time", Type: "time"},
			{Text: "Value", Type: "number"},
		},
		Rows: rows,
	}
}
