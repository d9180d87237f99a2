// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package deobfuscate rewrites obfuscated throwable trees back to their
// original names using ProGuard/R8 mapping files.
//
// The pipeline deliberately round-trips through text: each cause level
// is rendered to the canonical "at Class.method(File:Line)" form,
// retraced line by line against the mapping, and re-parsed into
// structured frames with positional correlation against the original
// frames. Fields the text format cannot carry (isNativeMethod, and any
// field the retracer dropped) fall back to the original frame at the
// same stack position.
package deobfuscate

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// Mapping is a parsed ProGuard/R8 rename table, indexed by obfuscated
// names for retracing.
type Mapping struct {
	classes map[string]*classMapping
}

type classMapping struct {
	originalName string
	// methods maps an obfuscated method name to its candidates. R8
	// reuses short names like "a" for many methods distinguished by
	// line ranges, so a lookup may have to pick by line.
	methods map[string][]methodMapping
}

type methodMapping struct {
	originalName string
	// lineStart/lineEnd is the obfuscated line range this entry covers;
	// both zero when the mapping carries no line info.
	lineStart int
	lineEnd   int
}

// ParseMapping parses ProGuard/R8 mapping text.
//
// Description:
//
//	Recognized lines:
//	  - comments starting with '#' and blank lines (ignored)
//	  - class lines:  "original.Class -> a.a:"
//	  - member lines: "    [from:to:]retType name[(args)][:origFrom[:origTo]] -> a"
//	Field members (no parameter list) are parsed and ignored; only
//	methods matter for stack traces.
//
// Outputs:
//
//	*Mapping - Lookup table keyed by obfuscated names.
//	error - Non-nil on structurally invalid text (member line before
//	        any class line, missing arrow). This is the hard-failure
//	        path for explicit mapping uploads.
func ParseMapping(text string) (*Mapping, error) {
	m := &Mapping{classes: make(map[string]*classMapping)}
	var current *classMapping

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		isMember := raw != line // member lines are indented
		before, after, found := strings.Cut(line, " -> ")
		if !found {
			return nil, fmt.Errorf("line %d: missing '->' separator", lineNo)
		}

		if !isMember && strings.HasSuffix(after, ":") {
			// Class line: "original.Class -> a.a:"
			obfuscated := strings.TrimSuffix(after, ":")
			current = &classMapping{
				originalName: strings.TrimSpace(before),
				methods:      make(map[string][]methodMapping),
			}
			m.classes[obfuscated] = current
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("line %d: member entry before any class entry", lineNo)
		}
		if err := current.addMember(before, after); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read mapping text: %w", err)
	}
	return m, nil
}

// addMember parses the left side of a member line and registers method
// entries under their obfuscated name.
func (c *classMapping) addMember(left, obfuscatedName string) error {
	// Strip the optional "from:to:" obfuscated line range prefix.
	lineStart, lineEnd := 0, 0
	rest := left
	if parts := strings.SplitN(rest, ":", 3); len(parts) == 3 {
		if start, err1 := strconv.Atoi(parts[0]); err1 == nil {
			if end, err2 := strconv.Atoi(parts[1]); err2 == nil {
				lineStart, lineEnd = start, end
				rest = parts[2]
			}
		}
	}

	parenIdx := strings.Index(rest, "(")
	if parenIdx < 0 {
		// Field member; irrelevant for stack traces.
		return nil
	}

	// "retType original.name(args)[:origFrom[:origTo]]"
	signature := rest[:parenIdx]
	fields := strings.Fields(signature)
	if len(fields) != 2 {
		return fmt.Errorf("malformed method signature %q", rest)
	}
	originalName := fields[1]
	// Inlined frames carry the full original class; keep the bare
	// method name, the class rename is handled separately.
	if idx := strings.LastIndex(originalName, "."); idx >= 0 {
		originalName = originalName[idx+1:]
	}

	c.methods[strings.TrimSpace(obfuscatedName)] = append(
		c.methods[strings.TrimSpace(obfuscatedName)],
		methodMapping{originalName: originalName, lineStart: lineStart, lineEnd: lineEnd},
	)
	return nil
}

// OriginalClass resolves an obfuscated class name.
func (m *Mapping) OriginalClass(obfuscated string) (string, bool) {
	c, ok := m.classes[obfuscated]
	if !ok {
		return "", false
	}
	return c.originalName, true
}

// OriginalMethod resolves an obfuscated method of an obfuscated class.
//
// When several original methods share the obfuscated name, an entry
// whose line range contains the frame's line wins; otherwise the first
// entry is used.
func (m *Mapping) OriginalMethod(obfuscatedClass, obfuscatedMethod string, line int) (string, bool) {
	c, ok := m.classes[obfuscatedClass]
	if !ok {
		return "", false
	}
	candidates := c.methods[obfuscatedMethod]
	if len(candidates) == 0 {
		return "", false
	}
	if line > 0 {
		for _, cand := range candidates {
			if cand.lineStart <= line && line <= cand.lineEnd {
				return cand.originalName, true
			}
		}
	}
	return candidates[0].originalName, true
}

// Empty reports whether the mapping contains no class entries.
func (m *Mapping) Empty() bool { return len(m.classes) == 0 }
