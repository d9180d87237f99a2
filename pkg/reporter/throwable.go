// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reporter

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/FlowMo7/Koarl/pkg/api"
)

// CaptureStack returns the program counters of the calling goroutine,
// skipping the given number of frames on top of the capture machinery
// itself.
func CaptureStack(skip int) []uintptr {
	pcs := make([]uintptr, 128)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// FromError converts an error chain into a portable Throwable tree.
//
// Description:
//
//	The outermost level carries the captured stack; inner levels follow
//	errors.Unwrap until the first nil, mirroring a native cause chain.
//	Wrapped errors carry no stack of their own in Go, so inner levels
//	have an empty frame list rather than a synthesized one.
//
// Inputs:
//
//	err - The error to convert. Nil returns nil.
//	stack - Program counters from CaptureStack, attached to the
//	        outermost level only. May be nil.
func FromError(err error, stack []uintptr) *api.Throwable {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &api.Throwable{
		Name:       api.Str(fmt.Sprintf("%T", err)),
		Message:    &msg,
		StackTrace: framesFromPCs(stack),
		Cause:      FromError(errors.Unwrap(err), nil),
	}
}

// FromPanic converts a recovered panic value into a Throwable.
// Error values go through FromError so their cause chain is preserved.
func FromPanic(recovered any, stack []uintptr) *api.Throwable {
	if err, ok := recovered.(error); ok {
		t := FromError(err, stack)
		return t
	}
	msg := fmt.Sprint(recovered)
	return &api.Throwable{
		Name:       api.Str(fmt.Sprintf("%T", recovered)),
		Message:    &msg,
		StackTrace: framesFromPCs(stack),
	}
}

// framesFromPCs resolves program counters to stack frames.
//
// A Go function name like "github.com/acme/app/pkg.(*Server).Run" splits
// at the last dot into className "github.com/acme/app/pkg.(*Server)" and
// methodName "Run", keeping the frame-line rendering on the server
// compatible with the "at class.method(file:line)" form.
func framesFromPCs(pcs []uintptr) []api.StackFrame {
	if len(pcs) == 0 {
		return []api.StackFrame{}
	}
	out := make([]api.StackFrame, 0, len(pcs))
	frames := runtime.CallersFrames(pcs)
	for {
		frame, more := frames.Next()
		out = append(out, frameFromRuntime(frame))
		if !more {
			break
		}
	}
	return out
}

func frameFromRuntime(frame runtime.Frame) api.StackFrame {
	sf := api.StackFrame{
		// Frames without a Go function are foreign (cgo or assembly
		// without metadata); those are the native-method analog.
		IsNativeMethod: frame.Function == "",
	}
	if frame.File != "" {
		sf.FileName = api.Str(filepath.Base(frame.File))
	}
	if frame.Line != 0 {
		sf.LineNumber = api.Int(frame.Line)
	}
	if frame.Function != "" {
		if idx := strings.LastIndex(frame.Function, "."); idx >= 0 {
			sf.ClassName = api.Str(frame.Function[:idx])
			sf.MethodName = api.Str(frame.Function[idx+1:])
		} else {
			sf.MethodName = api.Str(frame.Function)
		}
	}
	return sf
}
