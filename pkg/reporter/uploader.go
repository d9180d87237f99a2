// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reporter

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/FlowMo7/Koarl/pkg/api"
)

// Version is the client library version, sent on every upload.
const Version = "0.1.0"

// Uploader sends a batch of crashes to the collector.
//
// The boolean result is deliberate: transport errors and non-2xx
// responses are equivalent for the caller, both mean "keep the batch
// queued and let the retry loop deal with it".
type Uploader interface {
	Upload(ctx context.Context, baseURL string, deviceData *api.DeviceData, appData api.AppData, crashes []api.Crash) bool
}

// RestyUploader is the default HTTP Uploader.
type RestyUploader struct {
	client *resty.Client
	logger *slog.Logger
}

// NewRestyUploader creates an uploader with the library version headers
// preconfigured. Pass nil to use the default logger.
func NewRestyUploader(logger *slog.Logger) *RestyUploader {
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetHeader(api.LibraryVersionHeader, Version).
		SetHeader("User-Agent", "Koarl-Go "+Version)
	return &RestyUploader{client: client, logger: logger}
}

// Upload POSTs the batch to {baseURL}api/dev-v1/crash.
// Success is any 2xx response.
func (u *RestyUploader) Upload(ctx context.Context, baseURL string, deviceData *api.DeviceData, appData api.AppData, crashes []api.Crash) bool {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	resp, err := u.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(api.UploadRequest{
			DeviceData: deviceData,
			AppData:    appData,
			Crashes:    crashes,
		}).
		Post(baseURL + "api/" + api.VersionPath + "/crash")
	if err != nil {
		u.logger.Warn("crash upload failed", "error", err)
		return false
	}
	if !resp.IsSuccess() {
		u.logger.Warn("crash upload rejected", "status", resp.StatusCode())
		return false
	}
	return true
}

var _ Uploader = (*RestyUploader)(nil)
