// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package metricsapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	targets []string
	queries []string
}

func (b *fakeBackend) Targets(ctx context.Context) ([]string, error) {
	return b.targets, nil
}

func (b *fakeBackend) Query(ctx context.Context, target string, opts QueryOptions) ([]DataPoint, error) {
	b.queries = append(b.queries, target)
	if strings.HasSuffix(target, "broken") {
		return nil, fmt.Errorf("unknown target %q", target)
	}
	return []DataPoint{{Value: 2, TimestampMs: opts.To.UnixMilli()}}, nil
}

func newTestDatasource(backend *fakeBackend) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewDatasource(backend, nil).RegisterRoutes(router.Group("grafana"))
	return router
}

func TestDatasource(t *testing.T) {
	backend := &fakeBackend{targets: []string{
		"numberOfCrashes",
		"numberOfCrashes:com.example.myapp",
		"numberOfCrashes:com.example.other",
	}}
	router := newTestDatasource(backend)

	t.Run("probe answers ok", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/grafana/", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("search lists all targets for an empty query", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/grafana/search", strings.NewReader(`{"target":""}`))
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t,
			`["numberOfCrashes","numberOfCrashes:com.example.myapp","numberOfCrashes:com.example.other"]`,
			w.Body.String())
	})

	t.Run("search filters by substring", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/grafana/search", strings.NewReader(`{"target":"myapp"}`))
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `["numberOfCrashes:com.example.myapp"]`, w.Body.String())
	})

	t.Run("query renders time series", func(t *testing.T) {
		body := `{
			"range": {"from": "2025-06-01T12:00:00.000Z", "to": "2025-06-01T13:00:00.000Z"},
			"intervalMs": 300000,
			"maxDataPoints": 100,
			"targets": [{"target": "numberOfCrashes", "type": "timeserie"}]
		}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/grafana/query", strings.NewReader(body))
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t,
			`[{"target":"numberOfCrashes","datapoints":[[2,1748782800000]]}]`,
			w.Body.String())
	})

	t.Run("query renders tables", func(t *testing.T) {
		body := `{
			"range": {"from": "2025-06-01T12:00:00.000Z", "to": "2025-06-01T13:00:00.000Z"},
			"targets": [{"target": "numberOfCrashes", "type": "table"}]
		}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/grafana/query", strings.NewReader(body))
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t,
			`[{"type":"table","columns":[{"text":"Time","type":"time"},{"text":"Value","type":"number"}],"rows":[[1748782800000,2]]}]`,
			w.Body.String())
	})

	t.Run("failing targets are skipped, not fatal", func(t *testing.T) {
		body := `{
			"range": {"from": "2025-06-01T12:00:00.000Z", "to": "2025-06-01T13:00:00.000Z"},
			"targets": [
				{"target": "numberOfCrashes:broken", "type": "timeserie"},
				{"target": "numberOfCrashes", "type": "timeserie"}
			]
		}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/grafana/query", strings.NewReader(body))
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"numberOfCrashes"`)
		assert.NotContains(t, w.Body.String(), "broken")
	})

	t.Run("annotations are empty", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/grafana/annotations", strings.NewReader(`{}`))
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})
}

func TestParseTarget(t *testing.T) {
	t.Run("bare metric", func(t *testing.T) {
		filter, err := parseTarget("numberOfCrashes")
		require.NoError(t, err)
		assert.Empty(t, filter.PackageName)
	})

	t.Run("package scoped", func(t *testing.T) {
		filter, err := parseTarget("numberOfCrashes:com.example.myapp")
		require.NoError(t, err)
		assert.Equal(t, "com.example.myapp", filter.PackageName)
		assert.Empty(t, filter.AppVersionName)
	})

	t.Run("version scoped", func(t *testing.T) {
		filter, err := parseTarget("numberOfCrashes:com.example.myapp:1.4.2")
		require.NoError(t, err)
		assert.Equal(t, "com.example.myapp", filter.PackageName)
		assert.Equal(t, "1.4.2", filter.AppVersionName)
	})

	t.Run("unknown metric is rejected", func(t *testing.T) {
		_, err := parseTarget("numberOfUsers")
		require.Error(t, err)
	})
}
