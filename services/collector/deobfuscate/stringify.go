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

// Stringify renders a throwable in the canonical JVM stack-trace text
// form the retracer consumes:
//
//	Name: message
//		at Class.method(File:Line)
//		at Class.method(Native Method)
//		at Class.method(Unknown Source)
//	Caused by: Name: message
//		...
//
// The header prefers the localized message over the plain message. When
// includeCause is false only the outermost level is rendered, which is
// how the deobfuscation pipeline isolates one cause level per
// round-trip.
func Stringify(t *api.Throwable, includeCause bool) string {
	var b strings.Builder
	writeLevel(&b, t, "")
	if includeCause {
		for cause := t.Cause; cause != nil; cause = cause.Cause {
			b.WriteString("Caused by: ")
			writeLevel(&b, cause, "")
		}
	}
	return b.String()
}

func writeLevel(b *strings.Builder, t *api.Throwable, indent string) {
	b.WriteString(indent)
	b.WriteString(headerLine(t))
	b.WriteString("\n")
	for _, frame := range t.StackTrace {
		b.WriteString(indent)
		b.WriteString("\tat ")
		b.WriteString(frameLine(frame))
		b.WriteString("\n")
	}
}

// headerLine is "Name: message" with the localized message preferred,
// or just the name when the throwable carries no message at all.
func headerLine(t *api.Throwable) string {
	name := strPtrOr(t.Name, "")
	message := t.LocalizedMessage
	if message == nil {
		message = t.Message
	}
	if message == nil {
		return name
	}
	return name + ": " + *message
}

// frameLine renders one frame without the "at " prefix.
func frameLine(f api.StackFrame) string {
	location := "(Unknown Source)"
	switch {
	case f.IsNativeMethod:
		location = "(Native Method)"
	case f.FileName != nil && f.LineNumber != nil && *f.LineNumber >= 0:
		location = "(" + *f.FileName + ":" + strconv.Itoa(*f.LineNumber) + ")"
	case f.FileName != nil:
		location = "(" + *f.FileName + ")"
	}
	return strPtrOr(f.ClassName, "") + "." + strPtrOr(f.MethodName, "") + location
}

func strPtrOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
