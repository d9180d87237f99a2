// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package deobfuscate

import (
	"github.com/FlowMo7/Koarl/pkg/api"
)

// Deobfuscate retraces a full throwable tree against the mapping and
// returns a freshly built tree. The input is never mutated, so stored
// records can be rewritten without aliasing surprises.
//
// Each cause level round-trips independently: stringify the level
// without its cause, retrace the text, re-parse it with positional
// fallback to the level's original frames. The chain is reassembled
// innermost-first so every node is complete before it becomes someone's
// cause.
//
// Deobfuscation is idempotent: names the mapping does not know pass
// through unchanged, so running an already-deobfuscated tree through
// the same mapping yields an equal tree.
func Deobfuscate(m *Mapping, t *api.Throwable) *api.Throwable {
	if t == nil {
		return nil
	}

	var levels []*api.Throwable
	for level := t; level != nil; level = level.Cause {
		levels = append(levels, level)
	}

	rebuilt := make([]*api.Throwable, len(levels))
	for i, level := range levels {
		isolated := *level
		isolated.Cause = nil
		retraced := Retrace(m, Stringify(&isolated, false))
		rebuilt[i] = ParseStackTrace(retraced, level)
	}

	var chained *api.Throwable
	for i := len(rebuilt) - 1; i >= 0; i-- {
		rebuilt[i].Cause = chained
		chained = rebuilt[i]
	}
	return chained
}
