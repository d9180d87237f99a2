// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func equalFixture() *Throwable {
	return &Throwable{
		Name:    Str("java.lang.IllegalStateException"),
		Message: Str("boom"),
		StackTrace: []StackFrame{
			{
				FileName:   Str("MainActivity.kt"),
				LineNumber: Int(42),
				ClassName:  Str("com.example.MainActivity"),
				MethodName: Str("onCreate"),
			},
		},
		Cause: &Throwable{Name: Str("java.io.IOException")},
	}
}

func TestStructuralEquals(t *testing.T) {
	t.Run("equal trees match", func(t *testing.T) {
		assert.True(t, equalFixture().StructuralEquals(equalFixture()))
	})

	t.Run("localized message is ignored", func(t *testing.T) {
		a := equalFixture()
		b := equalFixture()
		b.LocalizedMessage = Str("Es ist etwas schiefgelaufen")
		assert.True(t, a.StructuralEquals(b))
	})

	t.Run("differing frames do not match", func(t *testing.T) {
		a := equalFixture()
		b := equalFixture()
		b.StackTrace[0].LineNumber = Int(7)
		assert.False(t, a.StructuralEquals(b))
	})

	t.Run("differing cause chains do not match", func(t *testing.T) {
		a := equalFixture()
		b := equalFixture()
		b.Cause = nil
		assert.False(t, a.StructuralEquals(b))
	})

	t.Run("nil handling", func(t *testing.T) {
		var a *Throwable
		assert.True(t, a.StructuralEquals(nil))
		assert.False(t, a.StructuralEquals(equalFixture()))
		assert.False(t, equalFixture().StructuralEquals(nil))
	})
}
