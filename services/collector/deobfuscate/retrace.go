// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package deobfuscate

import (
	"strconv"
	"strings"
)

// Retrace rewrites obfuscated class and method names in stack-trace
// text back to their originals.
//
// Description:
//
//	Processes the text line by line. Frame lines ("at Class.method(...)")
//	get both the class and the method rewritten; header lines ("Name:
//	message", including "Caused by:" continuations) get the exception
//	class rewritten. Names absent from the mapping pass through
//	unchanged, so an unobfuscated trace survives a retrace intact.
//
// Inputs:
//
//	m - The parsed mapping. Must not be nil.
//	text - Stack-trace text in the form Stringify produces.
//
// Outputs:
//
//	string - The retraced text, line structure and whitespace preserved.
func Retrace(m *Mapping, text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = retraceLine(m, line)
	}
	return strings.Join(out, "\n")
}

func retraceLine(m *Mapping, line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return line
	}
	if strings.HasPrefix(trimmed, "at ") {
		return retraceFrame(m, line, trimmed)
	}
	return retraceHeader(m, line, trimmed)
}

// retraceFrame rewrites "at obf.Class.method(File:Line)". The location
// suffix is kept as is; only names change.
func retraceFrame(m *Mapping, line, trimmed string) string {
	indent := line[:len(line)-len(trimmed)]
	body := strings.TrimPrefix(trimmed, "at ")

	parenIdx := strings.Index(body, "(")
	if parenIdx < 0 {
		return line
	}
	qualified := body[:parenIdx]
	location := body[parenIdx:]

	dotIdx := strings.LastIndex(qualified, ".")
	if dotIdx < 0 {
		return line
	}
	class := qualified[:dotIdx]
	method := qualified[dotIdx+1:]

	originalClass, classKnown := m.OriginalClass(class)
	if !classKnown {
		return line
	}
	if original, ok := m.OriginalMethod(class, method, frameLineNumber(location)); ok {
		method = original
	}
	return indent + "at " + originalClass + "." + method + location
}

// retraceHeader rewrites the exception class of a header line such as
// "a.b: boom" or "Caused by: a.b: boom".
func retraceHeader(m *Mapping, line, trimmed string) string {
	indent := line[:len(line)-len(trimmed)]
	prefix := ""
	rest := trimmed
	if after, found := strings.CutPrefix(rest, "Caused by: "); found {
		prefix = "Caused by: "
		rest = after
	}

	class := rest
	suffix := ""
	if idx := strings.Index(rest, ":"); idx >= 0 {
		class = rest[:idx]
		suffix = rest[idx:]
	}
	if original, ok := m.OriginalClass(class); ok {
		class = original
	}
	return indent + prefix + class + suffix
}

// frameLineNumber extracts the line number from a "(File:Line)"
// location suffix, or 0 when there is none.
func frameLineNumber(location string) int {
	inner := strings.TrimSuffix(strings.TrimPrefix(location, "("), ")")
	idx := strings.LastIndex(inner, ":")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(inner[idx+1:])
	if err != nil {
		return 0
	}
	return n
}
