// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reporter is the client side of Koarl: it captures errors and
// panics, queues them in a durable local outbox, and drains the outbox
// to the collector in capped batches with unbounded retries.
//
// # Basic Usage
//
//	outbox, _ := reporter.NewBadgerOutbox("/var/lib/myapp/koarl")
//	r, err := reporter.New(reporter.Config{
//	    BaseURL: "https://crash.example.com/",
//	    AppData: api.AppData{
//	        PackageName:    "com.example.myapp",
//	        AppName:        "MyApp",
//	        AppVersionCode: 42,
//	        AppVersionName: "1.4.2",
//	    },
//	    Outbox: outbox,
//	})
//	r.Start(ctx)
//	defer r.Close()
//
//	// non-fatal
//	r.Report(err)
//
//	// fatal, from a worker goroutine
//	defer r.RecoverAndRepanic()
//
// # Thread Safety
//
// All Reporter methods are safe for concurrent use, including from the
// process's dying breath: ReportFatal runs synchronously, swallows every
// internal failure, and never panics into a crashing caller.
package reporter

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/FlowMo7/Koarl/pkg/api"
	"github.com/google/uuid"
)

// batchSize caps crashes per upload request. A long offline period can
// queue thousands of crashes; unbounded request bodies are a problem for
// the client more than the server (list materialization and JSON
// encoding), so drain in slices of 100.
const batchSize = 100

// Config configures a Reporter. BaseURL, AppData and Outbox are
// required; everything else has working defaults.
type Config struct {
	// BaseURL of the collector, e.g. "https://crash.example.com/".
	BaseURL string

	// AppData identifies this application build.
	AppData api.AppData

	// Outbox is the durable local crash queue.
	Outbox Outbox

	// Uploader overrides the HTTP transport. Default: NewRestyUploader.
	Uploader Uploader

	// DeviceInfo overrides device dimension/state capture.
	// Default: HostDeviceInfo.
	DeviceInfo DeviceInfo

	// RetryDelay between failed upload cycles. Default: 5 minutes.
	RetryDelay time.Duration

	// StartupDelay before the first upload attempt after Start, to keep
	// the crash uploader off the application's startup path.
	// Default: 5 seconds.
	StartupDelay time.Duration

	// SendDeviceData controls whether the device dimension is attached
	// to uploads. Default: true. Set DisableDeviceData to turn off.
	DisableDeviceData bool

	// DisableReporting starts the reporter with reporting switched off;
	// it can be toggled at runtime via SetReportingEnabled.
	DisableReporting bool

	// Logger for diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// Clock is the waiting/now source. Default: SystemClock().
	// Replaced in tests.
	Clock Clock
}

// Reporter captures crashes and coordinates their upload.
type Reporter struct {
	cfg          Config
	coordinator  *uploadCoordinator
	enabled      atomic.Bool
	inForeground atomic.Bool
	logger       *slog.Logger

	// ctx bounds every background upload cycle; cancel ends them all,
	// whether through Close or through the context handed to Start.
	ctx    context.Context
	cancel context.CancelFunc
}

// New validates the configuration, applies defaults and builds a
// Reporter. The reporter does not upload anything until Start is called.
func New(cfg Config) (*Reporter, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	if cfg.AppData.PackageName == "" {
		return nil, errors.New("AppData.PackageName is required")
	}
	if cfg.Outbox == nil {
		return nil, errors.New("Outbox is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Uploader == nil {
		cfg.Uploader = NewRestyUploader(cfg.Logger)
	}
	if cfg.DeviceInfo == nil {
		cfg.DeviceInfo = HostDeviceInfo{}
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Minute
	}
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = 0
	} else if cfg.StartupDelay == 0 {
		cfg.StartupDelay = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}

	r := &Reporter{
		cfg:         cfg,
		coordinator: newUploadCoordinator(cfg.RetryDelay, cfg.Clock, cfg.Logger),
		logger:      cfg.Logger,
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.enabled.Store(!cfg.DisableReporting)
	r.inForeground.Store(true)
	return r, nil
}

// SetReportingEnabled toggles capture and upload at runtime, e.g. bound
// to a user privacy preference.
func (r *Reporter) SetReportingEnabled(enabled bool) {
	r.enabled.Store(enabled)
}

// ReportingEnabled reports the current toggle state.
func (r *Reporter) ReportingEnabled() bool {
	return r.enabled.Load()
}

// SetInForeground records whether the application is currently in the
// foreground; the flag is attached to subsequent crashes.
func (r *Reporter) SetInForeground(foreground bool) {
	r.inForeground.Store(foreground)
}

// Start schedules the initial outbox drain after the startup delay.
// Cancelling ctx stops all background upload work, including cycles
// later triggered by Report; so does Close.
func (r *Reporter) Start(ctx context.Context) {
	context.AfterFunc(ctx, r.cancel)
	if !r.ReportingEnabled() {
		return
	}
	go func() {
		if err := r.cfg.Clock.Sleep(r.ctx, r.cfg.StartupDelay); err != nil {
			return
		}
		r.triggerUpload(r.ctx)
	}()
}

// Close stops all background upload work. Queued crashes stay in the
// outbox and are delivered after the next Start; the outbox itself is
// owned by the caller and is not closed here.
func (r *Reporter) Close() {
	r.cancel()
}

// Report captures a non-fatal error and asynchronously triggers an
// upload cycle. The caller is never blocked on network I/O and never
// sees capture failures.
func (r *Reporter) Report(err error) {
	if err == nil || !r.ReportingEnabled() {
		return
	}
	r.capture(false, FromError(err, CaptureStack(1)))
	go r.triggerUpload(r.ctx)
}

// ReportFatal captures a fatal error synchronously.
//
// This is meant for the last moments of a dying process (a panic
// handler about to re-panic, log.Fatal wrappers): it only appends to the
// durable outbox and does not attempt a network upload, the crash is
// delivered on next start.
func (r *Reporter) ReportFatal(err error) {
	if err == nil || !r.ReportingEnabled() {
		return
	}
	r.capture(true, FromError(err, CaptureStack(1)))
}

// RecoverAndRepanic captures a panic as a fatal crash and re-panics with
// the original value. Use in a defer at goroutine entry points.
func (r *Reporter) RecoverAndRepanic() {
	rec := recover()
	if rec == nil {
		return
	}
	if r.ReportingEnabled() {
		r.capture(true, FromPanic(rec, CaptureStack(2)))
	}
	panic(rec)
}

// capture builds the crash record and appends it to the outbox. Every
// failure is logged and swallowed: this path runs inside exception
// handling and must not throw further.
func (r *Reporter) capture(isFatal bool, throwable *api.Throwable) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("crash capture panicked", "recovered", rec)
		}
	}()
	if throwable == nil {
		return
	}
	crash := api.Crash{
		UUID:         uuid.NewString(),
		IsFatal:      isFatal,
		InForeground: r.inForeground.Load(),
		DateTime:     r.cfg.Clock.Now().UTC(),
		Throwable:    *throwable,
		DeviceState:  r.cfg.DeviceInfo.DeviceState(),
	}
	if err := r.cfg.Outbox.Add(crash); err != nil {
		r.logger.Error("could not queue crash, dropping it", "uuid", crash.UUID, "error", err)
	}
}

// triggerUpload runs one coordinated upload cycle draining the outbox.
func (r *Reporter) triggerUpload(ctx context.Context) {
	r.coordinator.run(ctx, r.uploadTask)
}

// uploadTask uploads one batch and reports what the coordinator should
// do next.
func (r *Reporter) uploadTask(ctx context.Context) TaskResult {
	queued, err := r.cfg.Outbox.List()
	if err != nil {
		r.logger.Error("could not read outbox", "error", err)
		return Failure
	}
	if len(queued) == 0 {
		return Success
	}

	batch := queued
	hasMore := false
	if len(queued) > batchSize {
		batch = queued[:batchSize]
		hasMore = true
	}

	var deviceData *api.DeviceData
	if !r.cfg.DisableDeviceData {
		deviceData = r.cfg.DeviceInfo.DeviceData()
	}

	ok := r.cfg.Uploader.Upload(ctx, r.cfg.BaseURL, deviceData, r.cfg.AppData, batch)
	if !ok {
		return Failure
	}

	ids := lo.Map(batch, func(c api.Crash, _ int) string { return c.UUID })
	if err := r.cfg.Outbox.RemoveByIDs(ids); err != nil {
		// The server has the batch; failing removal would re-upload it.
		// Report failure so the next cycle retries the removal path.
		r.logger.Error("could not remove uploaded crashes", "error", err)
		return Failure
	}
	r.logger.Info("uploaded crash batch", "count", len(batch), "remaining", len(queued)-len(batch))

	if hasMore {
		return SuccessNeedsAnotherRun
	}
	return Success
}
