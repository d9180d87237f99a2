// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package grouping assigns crashes to crash groups by throwable
// similarity.
package grouping

import (
	"github.com/FlowMo7/Koarl/pkg/api"
	"github.com/FlowMo7/Koarl/services/collector/deobfuscate"
)

// fingerprintLength bounds the fingerprint so that it stays a cheap,
// indexable key. Traces that only diverge deeper than the prefix land
// in the same group, which is acceptable: the top of a trace is what
// identifies a crash site.
const fingerprintLength = 128

// Fingerprint derives the grouping key of a throwable: the canonical
// stack-trace text (name, message and frame lines through the whole
// cause chain) truncated to a fixed prefix.
//
// The function is deterministic and idempotent in the pipeline sense:
// equal trees produce equal fingerprints, and a fingerprint never
// depends on ingestion order or time.
func Fingerprint(t *api.Throwable) string {
	if t == nil {
		return ""
	}
	text := deobfuscate.Stringify(t, true)
	if len(text) > fingerprintLength {
		return text[:fingerprintLength]
	}
	return text
}
