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
)

const sampleMapping = `# compiler: R8
com.example.MainActivity -> a.a:
    android.os.Bundle savedState -> b
    12:62:void onCreate(android.os.Bundle) -> a
    63:70:void onDestroy() -> a
    void attach() -> b
com.example.network.ApiClient -> b.b:
    java.lang.String fetch(java.lang.String) -> a
com.example.AppException -> c.c:
`

func TestParseMapping(t *testing.T) {
	t.Run("parses classes and methods", func(t *testing.T) {
		m, err := ParseMapping(sampleMapping)
		require.NoError(t, err)

		class, ok := m.OriginalClass("a.a")
		require.True(t, ok)
		assert.Equal(t, "com.example.MainActivity", class)

		class, ok = m.OriginalClass("c.c")
		require.True(t, ok)
		assert.Equal(t, "com.example.AppException", class)

		_, ok = m.OriginalClass("com.example.MainActivity")
		assert.False(t, ok, "original names must not resolve")
	})

	t.Run("method resolution prefers the matching line range", func(t *testing.T) {
		m, err := ParseMapping(sampleMapping)
		require.NoError(t, err)

		method, ok := m.OriginalMethod("a.a", "a", 42)
		require.True(t, ok)
		assert.Equal(t, "onCreate", method)

		method, ok = m.OriginalMethod("a.a", "a", 65)
		require.True(t, ok)
		assert.Equal(t, "onDestroy", method)

		// No line info: the first candidate wins.
		method, ok = m.OriginalMethod("a.a", "a", 0)
		require.True(t, ok)
		assert.Equal(t, "onCreate", method)
	})

	t.Run("methods without line ranges resolve", func(t *testing.T) {
		m, err := ParseMapping(sampleMapping)
		require.NoError(t, err)

		method, ok := m.OriginalMethod("b.b", "a", 0)
		require.True(t, ok)
		assert.Equal(t, "fetch", method)
	})

	t.Run("unknown method keeps the class resolvable", func(t *testing.T) {
		m, err := ParseMapping(sampleMapping)
		require.NoError(t, err)

		_, ok := m.OriginalMethod("a.a", "zz", 0)
		assert.False(t, ok)
	})

	t.Run("field members are ignored", func(t *testing.T) {
		m, err := ParseMapping(sampleMapping)
		require.NoError(t, err)

		_, ok := m.OriginalMethod("a.a", "b", 0)
		require.True(t, ok, "method 'b' exists besides the field 'b'")
		method, _ := m.OriginalMethod("a.a", "b", 0)
		assert.Equal(t, "attach", method)
	})

	t.Run("rejects member lines before any class", func(t *testing.T) {
		_, err := ParseMapping("    void onCreate() -> a\n")
		require.Error(t, err)
	})

	t.Run("rejects lines without the arrow", func(t *testing.T) {
		_, err := ParseMapping("com.example.MainActivity a.a:\n")
		require.Error(t, err)
	})

	t.Run("empty text parses to an empty mapping", func(t *testing.T) {
		m, err := ParseMapping("\n# only a comment\n")
		require.NoError(t, err)
		assert.True(t, m.Empty())
	})
}
