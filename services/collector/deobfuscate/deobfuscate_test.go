// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package deobfuscate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlowMo7/Koarl/pkg/api"
)

func obfuscatedThrowable() *api.Throwable {
	return &api.Throwable{
		Name:    api.Str("c.c"),
		Message: api.Str("boom"),
		StackTrace: []api.StackFrame{
			{
				FileName:   api.Str("SourceFile"),
				LineNumber: api.Int(42),
				ClassName:  api.Str("a.a"),
				MethodName: api.Str("a"),
			},
			{
				ClassName:      api.Str("a.a"),
				MethodName:     api.Str("b"),
				IsNativeMethod: true,
			},
			{
				ClassName:  api.Str("java.lang.Thread"),
				MethodName: api.Str("run"),
			},
		},
		Cause: &api.Throwable{
			Name:    api.Str("b.b"),
			Message: api.Str("connection reset"),
			StackTrace: []api.StackFrame{
				{
					FileName:   api.Str("SourceFile"),
					LineNumber: api.Int(7),
					ClassName:  api.Str("b.b"),
					MethodName: api.Str("a"),
				},
			},
		},
	}
}

func TestStringify(t *testing.T) {
	t.Run("renders the canonical frame forms", func(t *testing.T) {
		text := Stringify(obfuscatedThrowable(), false)
		assert.Equal(t,
			"c.c: boom\n"+
				"\tat a.a.a(SourceFile:42)\n"+
				"\tat a.a.b(Native Method)\n"+
				"\tat java.lang.Thread.run(Unknown Source)\n",
			text)
	})

	t.Run("includes the cause chain on request", func(t *testing.T) {
		text := Stringify(obfuscatedThrowable(), true)
		assert.Contains(t, text, "Caused by: b.b: connection reset\n")
		assert.Contains(t, text, "\tat b.b.a(SourceFile:7)\n")
	})

	t.Run("prefers the localized message", func(t *testing.T) {
		throwable := &api.Throwable{
			Name:             api.Str("c.c"),
			Message:          api.Str("boom"),
			LocalizedMessage: api.Str("Es ist etwas schiefgelaufen"),
		}
		assert.Equal(t, "c.c: Es ist etwas schiefgelaufen\n", Stringify(throwable, false))
	})

	t.Run("name only when there is no message", func(t *testing.T) {
		throwable := &api.Throwable{Name: api.Str("c.c")}
		assert.Equal(t, "c.c\n", Stringify(throwable, false))
	})
}

func TestRetrace(t *testing.T) {
	m, err := ParseMapping(sampleMapping)
	require.NoError(t, err)

	t.Run("rewrites frame and header names", func(t *testing.T) {
		retraced := Retrace(m, "c.c: boom\n\tat a.a.a(SourceFile:42)\n")
		assert.Equal(t,
			"com.example.AppException: boom\n"+
				"\tat com.example.MainActivity.onCreate(SourceFile:42)\n",
			retraced)
	})

	t.Run("unmapped names pass through unchanged", func(t *testing.T) {
		text := "java.lang.IllegalStateException: boom\n" +
			"\tat java.lang.Thread.run(Thread.java:833)\n"
		assert.Equal(t, text, Retrace(m, text))
	})

	t.Run("caused by headers are rewritten", func(t *testing.T) {
		retraced := Retrace(m, "Caused by: b.b: connection reset\n")
		assert.Equal(t, "Caused by: com.example.network.ApiClient: connection reset\n", retraced)
	})
}

func TestParseStackTrace(t *testing.T) {
	t.Run("round-trips a throwable through text", func(t *testing.T) {
		original := obfuscatedThrowable()
		original.Cause = nil

		parsed := ParseStackTrace(Stringify(original, false), original)
		require.True(t, parsed.StructuralEquals(original))
	})

	t.Run("native flag comes from the original frame", func(t *testing.T) {
		original := obfuscatedThrowable()
		parsed := ParseStackTrace(Stringify(original, false), original)
		require.Len(t, parsed.StackTrace, 3)
		assert.False(t, parsed.StackTrace[0].IsNativeMethod)
		assert.True(t, parsed.StackTrace[1].IsNativeMethod)
	})

	t.Run("strips a verbose return type prefix", func(t *testing.T) {
		text := "c.c: boom\n" +
			"\tat com.example.MainActivity.void onCreate(SourceFile:42)\n"
		parsed := ParseStackTrace(text, nil)
		require.Len(t, parsed.StackTrace, 1)
		require.NotNil(t, parsed.StackTrace[0].MethodName)
		assert.Equal(t, "onCreate", *parsed.StackTrace[0].MethodName)
	})

	t.Run("extra frames parse without an original counterpart", func(t *testing.T) {
		text := "c.c: boom\n\tat com.example.Foo.bar(Foo.kt:3)\n"
		parsed := ParseStackTrace(text, &api.Throwable{Name: api.Str("c.c")})
		require.Len(t, parsed.StackTrace, 1)
		assert.Equal(t, "com.example.Foo", *parsed.StackTrace[0].ClassName)
		assert.Equal(t, "bar", *parsed.StackTrace[0].MethodName)
		assert.Equal(t, 3, *parsed.StackTrace[0].LineNumber)
	})
}

func TestDeobfuscate(t *testing.T) {
	m, err := ParseMapping(sampleMapping)
	require.NoError(t, err)

	t.Run("rewrites the whole cause chain", func(t *testing.T) {
		result := Deobfuscate(m, obfuscatedThrowable())

		require.Len(t, result.StackTrace, 3)
		assert.Equal(t, "com.example.MainActivity", *result.StackTrace[0].ClassName)
		assert.Equal(t, "onCreate", *result.StackTrace[0].MethodName)
		assert.Equal(t, 42, *result.StackTrace[0].LineNumber)

		assert.Equal(t, "com.example.MainActivity", *result.StackTrace[1].ClassName)
		assert.Equal(t, "attach", *result.StackTrace[1].MethodName)
		assert.True(t, result.StackTrace[1].IsNativeMethod)

		assert.Equal(t, "java.lang.Thread", *result.StackTrace[2].ClassName)

		require.NotNil(t, result.Cause)
		assert.Equal(t, "com.example.network.ApiClient", *result.Cause.StackTrace[0].ClassName)
		assert.Equal(t, "fetch", *result.Cause.StackTrace[0].MethodName)
		assert.Nil(t, result.Cause.Cause)
	})

	t.Run("exception names stay as reported", func(t *testing.T) {
		result := Deobfuscate(m, obfuscatedThrowable())
		assert.Equal(t, "c.c", *result.Name)
		assert.Equal(t, "b.b", *result.Cause.Name)
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		original := obfuscatedThrowable()
		_ = Deobfuscate(m, original)
		assert.Equal(t, "a.a", *original.StackTrace[0].ClassName)
		assert.Equal(t, "a", *original.StackTrace[0].MethodName)
	})

	t.Run("empty mapping round-trips structurally", func(t *testing.T) {
		empty, err := ParseMapping("")
		require.NoError(t, err)
		original := obfuscatedThrowable()
		result := Deobfuscate(empty, original)
		assert.True(t, result.StructuralEquals(original))
	})

	t.Run("deobfuscation is idempotent", func(t *testing.T) {
		once := Deobfuscate(m, obfuscatedThrowable())
		twice := Deobfuscate(m, once)
		assert.True(t, twice.StructuralEquals(once))
	})

	t.Run("nil throwable yields nil", func(t *testing.T) {
		assert.Nil(t, Deobfuscate(m, nil))
	})
}
