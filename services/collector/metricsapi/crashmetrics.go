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
	"log/slog"
	"strings"
	"time"

	"github.com/FlowMo7/Koarl/services/collector/cache"
	"github.com/FlowMo7/Koarl/services/collector/store"
)

const (
	// numberOfCrashesMetric is the only exposed metric. Targets take the
	// form "numberOfCrashes[:packageName[:versionName]]".
	numberOfCrashesMetric = "numberOfCrashes"

	// minimumStep clamps the bucket width; crash counts at finer
	// resolution are noise.
	minimumStep = 5 * time.Minute

	// queryCacheTTL bounds how stale a dashboard panel may be.
	queryCacheTTL = 10 * time.Minute
)

// CrashMetrics answers datasource queries from the crash store, with a
// TTL cache in front so dashboard auto-refresh does not hammer storage.
//
// Thread Safety: safe for concurrent use.
type CrashMetrics struct {
	crashes *store.CrashStore
	cache   *cache.Cache[[]DataPoint]
	logger  *slog.Logger
}

// NewCrashMetrics wraps a crash store. Pass nil to use the default
// logger.
func NewCrashMetrics(crashes *store.CrashStore, logger *slog.Logger) *CrashMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrashMetrics{
		crashes: crashes,
		cache:   cache.New[[]DataPoint](queryCacheTTL),
		logger:  logger,
	}
}

// Targets lists the currently valid query targets: the global metric,
// one per stored package, and one per stored app version.
func (m *CrashMetrics) Targets(ctx context.Context) ([]string, error) {
	targets := []string{numberOfCrashesMetric}

	apps, err := m.crashes.GetStoredApps(ctx)
	if err != nil {
		return nil, err
	}
	for _, app := range apps {
		targets = append(targets, numberOfCrashesMetric+":"+app.PackageName)
		versions, err := m.crashes.GetStoredVersionsForPackageName(ctx, app.PackageName)
		if err != nil {
			return nil, err
		}
		for _, version := range versions {
			targets = append(targets, numberOfCrashesMetric+":"+app.PackageName+":"+version.AppVersionName)
		}
	}
	return targets, nil
}

// Query resolves one target into a time series of crash counts.
func (m *CrashMetrics) Query(ctx context.Context, target string, opts QueryOptions) ([]DataPoint, error) {
	filter, err := parseTarget(target)
	if err != nil {
		return nil, err
	}
	filter.From = &opts.From
	filter.To = &opts.To

	key := fmt.Sprintf("%s|%d|%d|%d|%d",
		target, opts.From.UnixMilli(), opts.To.UnixMilli(), opts.IntervalMs, opts.MaxDataPoints)
	return m.cache.Get(key, func() ([]DataPoint, error) {
		records, err := m.crashes.GetCrashes(ctx, filter)
		if err != nil {
			return nil, err
		}
		times := make([]time.Time, len(records))
		for i, rec := range records {
			times[i] = rec.Crash.DateTime
		}
		m.logger.Debug("computed crash series", "target", target, "crashes", len(times))
		return BucketCounts(opts, minimumStep, times), nil
	})
}

// parseTarget splits "numberOfCrashes[:packageName[:versionName]]" into
// a crash filter.
func parseTarget(target string) (store.CrashFilter, error) {
	parts := strings.Split(target, ":")
	if parts[0] != numberOfCrashesMetric || len(parts) > 3 {
		return store.CrashFilter{}, fmt.Errorf("unknown target %q", target)
	}
	filter := store.CrashFilter{}
	if len(parts) > 1 {
		filter.PackageName = parts[1]
	}
	if len(parts) > 2 {
		filter.AppVersionName = parts[2]
	}
	return filter, nil
}
