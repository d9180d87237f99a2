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

	"github.com/FlowMo7/Koarl/pkg/api"
)

// ParseStackTrace rebuilds one cause level from retraced stack-trace
// text.
//
// Description:
//
//	Skips the header line, keeps only "at ..." lines and parses each
//	into a frame. Frames correlate with the original throwable's frames
//	by stack position: any field the text does not yield (blank file,
//	unparsable line number, missing names) falls back to the original
//	frame at the same index. isNativeMethod always comes from the
//	original frame, the text form cannot round-trip it reliably.
//
//	Name, message and localized message are copied from the original:
//	exception type names stay as reported, only frames are rewritten.
//	The returned throwable has no cause; chain assembly is the caller's
//	job.
func ParseStackTrace(text string, original *api.Throwable) *api.Throwable {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}

	var frames []api.StackFrame
	idx := 0
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "at ") {
			continue
		}
		var fallback *api.StackFrame
		if original != nil && idx < len(original.StackTrace) {
			fallback = &original.StackTrace[idx]
		}
		frames = append(frames, parseFrame(line, fallback))
		idx++
	}

	result := &api.Throwable{StackTrace: frames}
	if original != nil {
		result.Name = original.Name
		result.Message = original.Message
		result.LocalizedMessage = original.LocalizedMessage
	}
	return result
}

// parseFrame parses a single trimmed "at Class.method(File:Line)" line.
func parseFrame(line string, fallback *api.StackFrame) api.StackFrame {
	frame := api.StackFrame{}
	if fallback != nil {
		frame = *fallback
	}

	body := strings.TrimPrefix(line, "at ")
	parenIdx := strings.Index(body, "(")
	qualified := body
	location := ""
	if parenIdx >= 0 {
		qualified = body[:parenIdx]
		location = strings.TrimSuffix(body[parenIdx+1:], ")")
	}

	if fileName, lineNumber, ok := parseLocation(location); ok {
		frame.FileName = fileName
		frame.LineNumber = lineNumber
	}

	if dotIdx := strings.LastIndex(qualified, "."); dotIdx > 0 {
		className := qualified[:dotIdx]
		methodName := qualified[dotIdx+1:]
		// Verbose retracers emit "ReturnType method"; drop the type.
		if spaceIdx := strings.LastIndex(methodName, " "); spaceIdx >= 0 {
			methodName = methodName[spaceIdx+1:]
		}
		if className != "" {
			frame.ClassName = api.Str(className)
		}
		if methodName != "" {
			frame.MethodName = api.Str(methodName)
		}
	}
	return frame
}

// parseLocation splits "File:Line" location text. "Native Method" and
// "Unknown Source" yield ok=false, keeping the fallback fields.
func parseLocation(location string) (*string, *int, bool) {
	if location == "" || location == "Native Method" || location == "Unknown Source" {
		return nil, nil, false
	}
	colonIdx := strings.LastIndex(location, ":")
	if colonIdx < 0 {
		return api.Str(location), nil, true
	}
	fileName := location[:colonIdx]
	var lineNumber *int
	if n, err := strconv.Atoi(location[colonIdx+1:]); err == nil {
		lineNumber = api.Int(n)
	}
	if fileName == "" {
		return nil, lineNumber, true
	}
	return api.Str(fileName), lineNumber, true
}
