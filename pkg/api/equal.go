// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

// StructuralEquals reports whether two throwable trees are equal for
// grouping purposes: name, message and the stack frame list, recursively
// through the cause chain. LocalizedMessage is deliberately excluded, it
// varies with device locale while describing the same failure.
func (t *Throwable) StructuralEquals(other *Throwable) bool {
	if t == nil || other == nil {
		return t == other
	}
	if !strPtrEqual(t.Name, other.Name) || !strPtrEqual(t.Message, other.Message) {
		return false
	}
	if len(t.StackTrace) != len(other.StackTrace) {
		return false
	}
	for i := range t.StackTrace {
		if !t.StackTrace[i].Equals(other.StackTrace[i]) {
			return false
		}
	}
	return t.Cause.StructuralEquals(other.Cause)
}

// Equals reports full-field equality of two stack frames.
func (f StackFrame) Equals(other StackFrame) bool {
	return strPtrEqual(f.FileName, other.FileName) &&
		intPtrEqual(f.LineNumber, other.LineNumber) &&
		strPtrEqual(f.ClassName, other.ClassName) &&
		strPtrEqual(f.MethodName, other.MethodName) &&
		f.IsNativeMethod == other.IsNativeMethod
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Str returns a pointer to s. Convenience for building literal throwables.
func Str(s string) *string { return &s }

// Int returns a pointer to i.
func Int(i int) *int { return &i }
