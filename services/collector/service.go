// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package collector is the server side of Koarl: it accepts crash
// uploads, deobfuscates them when a mapping is known, groups them by
// throwable similarity and serves them to dashboards.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/FlowMo7/Koarl/pkg/api"
	"github.com/FlowMo7/Koarl/services/collector/deobfuscate"
	"github.com/FlowMo7/Koarl/services/collector/store"
)

// Service implements the collector operations over the crash and
// mapping stores.
//
// Thread Safety: safe for concurrent use; consistency under concurrent
// writes is delegated to the store's transaction isolation.
type Service struct {
	crashes  *store.CrashStore
	mappings *store.MappingStore
	metrics  *Metrics
	logger   *slog.Logger
}

// NewService wires the service. metrics may be nil to disable
// instrumentation; logger may be nil to use the default.
func NewService(crashes *store.CrashStore, mappings *store.MappingStore, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{crashes: crashes, mappings: mappings, metrics: metrics, logger: logger}
}

// IngestCrashes processes one client upload batch.
//
// Description:
//
//	When a mapping is stored for the batch's (package, versionCode),
//	every throwable is deobfuscated before insertion, so crashes are
//	stored and grouped in readable form whenever possible. Mapping
//	problems on this path are best-effort: a missing or unparsable
//	mapping logs a warning and the crashes are stored verbatim.
//
//	The request is assumed to be structurally valid: the binding tags
//	on api.UploadRequest enforce the required fields when the HTTP
//	layer binds the body.
//
// Outputs:
//
//	error - store.ErrConflict when a concurrent insert won the
//	        fingerprint race (the client retries), other errors for
//	        storage failures.
func (s *Service) IngestCrashes(ctx context.Context, req api.UploadRequest) error {
	crashes := req.Crashes
	if mapping := s.lookupMapping(ctx, req.AppData.PackageName, req.AppData.AppVersionCode); mapping != nil {
		crashes = lo.Map(req.Crashes, func(crash api.Crash, _ int) api.Crash {
			crash.Throwable = *deobfuscate.Deobfuscate(mapping, &crash.Throwable)
			return crash
		})
		s.countDeobfuscations("ok", len(crashes))
	}

	if err := s.crashes.Insert(ctx, req.DeviceData, req.AppData, crashes); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.CrashesIngested.WithLabelValues(req.AppData.PackageName).Add(float64(len(crashes)))
	}
	s.logger.Info("ingested crash batch",
		"package", req.AppData.PackageName,
		"versionCode", req.AppData.AppVersionCode,
		"count", len(crashes))
	return nil
}

// lookupMapping fetches and parses the mapping of one app build,
// best-effort. Returns nil when there is none or it cannot be parsed.
func (s *Service) lookupMapping(ctx context.Context, packageName string, versionCode int64) *deobfuscate.Mapping {
	text, err := s.mappings.GetMapping(ctx, packageName, versionCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Warn("mapping lookup failed, storing crashes verbatim",
			"package", packageName, "versionCode", versionCode, "error", err)
		return nil
	}
	mapping, err := deobfuscate.ParseMapping(text)
	if err != nil {
		s.countDeobfuscations("mapping_unparsable", 1)
		s.logger.Warn("stored mapping is unparsable, storing crashes verbatim",
			"package", packageName, "versionCode", versionCode, "error", err)
		return nil
	}
	return mapping
}

// UploadMapping stores a mapping file and retroactively deobfuscates
// the already stored crashes of that app build.
//
// A re-upload for the same build overwrites the previous mapping and
// rewrites the crashes again; since unknown names pass through the
// retracer unchanged, rewriting already-readable crashes is a no-op.
// Group assignments of existing crashes are not revisited.
func (s *Service) UploadMapping(ctx context.Context, packageName string, versionCode int64, text string) error {
	if packageName == "" {
		return fmt.Errorf("%w: packageName is required", ErrInvalidRequest)
	}
	if text == "" {
		return fmt.Errorf("%w: empty mapping body", ErrInvalidMapping)
	}
	mapping, err := deobfuscate.ParseMapping(text)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}

	if err := s.mappings.InsertMapping(ctx, packageName, versionCode, text); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.MappingsUploaded.Inc()
	}

	records, err := s.crashes.GetCrashes(ctx, store.CrashFilter{
		PackageName:    packageName,
		AppVersionCode: &versionCode,
	})
	if err != nil {
		return err
	}

	rewritten := 0
	for _, rec := range records {
		deobfuscated := deobfuscate.Deobfuscate(mapping, &rec.Crash.Throwable)
		if deobfuscated.StructuralEquals(&rec.Crash.Throwable) {
			continue
		}
		if err := s.crashes.UpdateThrowable(ctx, packageName, rec.Crash.UUID, deobfuscated); err != nil {
			return fmt.Errorf("rewrite crash %s: %w", rec.Crash.UUID, err)
		}
		rewritten++
	}
	s.countDeobfuscations("rewritten", rewritten)
	s.logger.Info("mapping uploaded",
		"package", packageName, "versionCode", versionCode,
		"storedCrashes", len(records), "rewritten", rewritten)
	return nil
}

// Apps lists the applications known to the collector.
func (s *Service) Apps(ctx context.Context) ([]store.App, error) {
	return s.crashes.GetStoredApps(ctx)
}

// CrashGroups lists the crash groups of one package, optionally
// restricted to fatal or non-fatal groups.
func (s *Service) CrashGroups(ctx context.Context, packageName string, groupType GroupType) ([]store.CrashGroup, error) {
	groups, err := s.crashes.GetCrashGroups(ctx, packageName)
	if err != nil {
		return nil, err
	}
	switch groupType {
	case GroupTypeFatal:
		groups = lo.Filter(groups, func(g store.CrashGroup, _ int) bool { return g.IsFatal })
	case GroupTypeNonFatal:
		groups = lo.Filter(groups, func(g store.CrashGroup, _ int) bool { return !g.IsFatal })
	}
	return groups, nil
}

// CrashGroup returns one group with its member crashes.
func (s *Service) CrashGroup(ctx context.Context, packageName, groupID string) (*store.CrashGroup, []store.CrashRecord, error) {
	group, err := s.crashes.GetCrashGroup(ctx, packageName, groupID)
	if err != nil {
		return nil, nil, err
	}
	crashes, err := s.crashes.GetCrashesOfGroup(ctx, packageName, groupID)
	if err != nil {
		return nil, nil, err
	}
	return group, crashes, nil
}

// Crash returns one stored crash.
func (s *Service) Crash(ctx context.Context, packageName, crashUUID string) (*store.CrashRecord, error) {
	return s.crashes.GetCrash(ctx, packageName, crashUUID)
}

// MappingVersionCodes lists the version codes a package has mappings
// for.
func (s *Service) MappingVersionCodes(ctx context.Context, packageName string) ([]int64, error) {
	return s.mappings.GetVersionCodes(ctx, packageName)
}

func (s *Service) countDeobfuscations(outcome string, n int) {
	if s.metrics == nil || n == 0 {
		return
	}
	s.metrics.Deobfuscations.WithLabelValues(outcome).Add(float64(n))
}
