// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collector

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/FlowMo7/Koarl/pkg/api"
	"github.com/FlowMo7/Koarl/services/collector/store"
)

// maxMappingBytes caps mapping uploads. Real R8 mappings for large apps
// run tens of megabytes; beyond that something is wrong.
const maxMappingBytes = 128 << 20

// Handlers exposes the collector service over HTTP.
type Handlers struct {
	service *Service
	metrics *Metrics
}

// NewHandlers creates the handler set. metrics may be nil.
func NewHandlers(service *Service, metrics *Metrics) *Handlers {
	return &Handlers{service: service, metrics: metrics}
}

// getOrCreateRequestID returns the inbound X-Request-ID or generates
// one, so every error response can be correlated with server logs.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// HandleUploadCrashes accepts a client crash batch.
//
// POST api/dev-v1/crash
//
// Responses:
//
//	204 - batch stored (including replayed duplicates)
//	400 - malformed body or invalid batch
//	500 - storage failure; the client keeps the batch queued and retries
func (h *Handlers) HandleUploadCrashes(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	libraryVersion := c.GetHeader(api.LibraryVersionHeader)

	var req api.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.countUpload("bad_request")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  requestID,
		})
		return
	}

	err := h.service.IngestCrashes(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			h.countUpload("bad_request")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: requestID})
			return
		}
		h.countUpload("error")
		h.service.logger.Error("crash ingest failed",
			"requestID", requestID,
			"libraryVersion", libraryVersion,
			"error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "could not store crashes", Code: requestID})
		return
	}

	h.countUpload("ok")
	c.Status(http.StatusNoContent)
}

// HandleGetApps lists known applications.
//
// GET api/dev-v1/apps
func (h *Handlers) HandleGetApps(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	apps, err := h.service.Apps(c.Request.Context())
	if err != nil {
		h.respondError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, AppsResponse{Apps: apps})
}

// HandleGetCrashGroups lists the crash groups of one application.
//
// GET api/dev-v1/apps/:packageName/groups?type=all|fatal|nonfatal
func (h *Handlers) HandleGetCrashGroups(c *gin.Context) {
	requestID := getOrCreateRequestID(c)

	groupType, ok := ParseGroupType(c.Query("type"))
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "type must be one of all, fatal, nonfatal",
			Code:  requestID,
		})
		return
	}

	groups, err := h.service.CrashGroups(c.Request.Context(), c.Param("packageName"), groupType)
	if err != nil {
		h.respondError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, CrashGroupsResponse{Groups: groups})
}

// HandleGetCrashGroup returns one group with its member crashes.
//
// GET api/dev-v1/apps/:packageName/groups/:groupId
func (h *Handlers) HandleGetCrashGroup(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	group, crashes, err := h.service.CrashGroup(c.Request.Context(), c.Param("packageName"), c.Param("groupId"))
	if err != nil {
		h.respondError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, CrashGroupResponse{Group: *group, Crashes: crashes})
}

// HandleGetCrash returns one stored crash.
//
// GET api/dev-v1/apps/:packageName/crashes/:uuid
func (h *Handlers) HandleGetCrash(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	crash, err := h.service.Crash(c.Request.Context(), c.Param("packageName"), c.Param("uuid"))
	if err != nil {
		h.respondError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, CrashResponse{Crash: *crash})
}

// HandleUploadMapping stores a raw ProGuard/R8 mapping file.
//
// PUT api/dev-v1/apps/:packageName/mappings/:versionCode
//
// The body is the plain mapping text, not JSON.
func (h *Handlers) HandleUploadMapping(c *gin.Context) {
	requestID := getOrCreateRequestID(c)

	versionCode, err := strconv.ParseInt(c.Param("versionCode"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "versionCode must be an integer",
			Code:  requestID,
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxMappingBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "could not read body", Code: requestID})
		return
	}

	err = h.service.UploadMapping(c.Request.Context(), c.Param("packageName"), versionCode, string(body))
	if err != nil {
		if errors.Is(err, ErrInvalidMapping) || errors.Is(err, ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: requestID})
			return
		}
		h.respondError(c, requestID, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleGetMappingVersions lists the version codes with mappings.
//
// GET api/dev-v1/apps/:packageName/mappings
func (h *Handlers) HandleGetMappingVersions(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	codes, err := h.service.MappingVersionCodes(c.Request.Context(), c.Param("packageName"))
	if err != nil {
		h.respondError(c, requestID, err)
		return
	}
	c.JSON(http.StatusOK, MappingVersionsResponse{VersionCodes: codes})
}

// HandleHealth is the liveness probe.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps service errors to HTTP statuses.
func (h *Handlers) respondError(c *gin.Context, requestID string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: requestID})
	case errors.Is(err, ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: requestID})
	default:
		h.service.logger.Error("request failed", "requestID", requestID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: requestID})
	}
}

func (h *Handlers) countUpload(status string) {
	if h.metrics != nil {
		h.metrics.UploadRequests.WithLabelValues(status).Inc()
	}
}
