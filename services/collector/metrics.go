// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collector's Prometheus instrumentation.
type Metrics struct {
	CrashesIngested  *prometheus.CounterVec
	UploadRequests   *prometheus.CounterVec
	Deobfuscations   *prometheus.CounterVec
	MappingsUploaded prometheus.Counter
}

// NewMetrics registers the collector metrics with reg. Pass a fresh
// registry per service instance; tests create throwaway registries.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CrashesIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "koarl",
			Name:      "crashes_ingested_total",
			Help:      "Crashes accepted into the store.",
		}, []string{"package"}),
		UploadRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "koarl",
			Name:      "upload_requests_total",
			Help:      "Crash upload requests by outcome.",
		}, []string{"status"}),
		Deobfuscations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "koarl",
			Name:      "deobfuscations_total",
			Help:      "Throwable deobfuscation attempts by outcome.",
		}, []string{"outcome"}),
		MappingsUploaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "koarl",
			Name:      "mappings_uploaded_total",
			Help:      "Accepted mapping file uploads.",
		}),
	}
}
