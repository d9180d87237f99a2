// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"WARN":    LevelWarn,
		"error":   LevelError,
		"unknown": LevelInfo,
		"":        LevelInfo,
	}
	for input, want := range cases {
		assert.Equal(t, want, ParseLevel(input), "input %q", input)
	}
}

func TestLoggerOutput(t *testing.T) {
	t.Run("writes structured lines with the service name", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(Config{Level: LevelInfo, Service: "testsvc", Output: &buf})
		defer l.Close()

		l.Info("something happened", "count", 3)

		out := buf.String()
		assert.Contains(t, out, "something happened")
		assert.Contains(t, out, "count=3")
		assert.Contains(t, out, "service=testsvc")
	})

	t.Run("suppresses levels below the threshold", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(Config{Level: LevelWarn, Output: &buf})
		defer l.Close()

		l.Debug("quiet")
		l.Info("quiet too")
		l.Warn("loud")

		out := buf.String()
		assert.NotContains(t, out, "quiet")
		assert.Contains(t, out, "loud")
	})

	t.Run("with adds persistent fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(Config{Level: LevelInfo, Output: &buf})
		defer l.Close()

		l.With("package", "com.example.myapp").Info("scoped")
		assert.Contains(t, buf.String(), "package=com.example.myapp")
	})
}

func TestLoggerFile(t *testing.T) {
	t.Run("also writes a json file when a log dir is set", func(t *testing.T) {
		dir := t.TempDir()
		var buf bytes.Buffer
		l := New(Config{Level: LevelInfo, Service: "filesvc", LogDir: dir, Output: &buf})

		l.Info("to both sinks")
		require.NoError(t, l.Close())

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, strings.HasPrefix(entries[0].Name(), "filesvc_"))

		data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"to both sinks"`)
		assert.Contains(t, buf.String(), "to both sinks")
	})

	t.Run("an unwritable log dir degrades to stderr only", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(Config{Level: LevelInfo, LogDir: "/proc/definitely/not/writable", Output: &buf})
		defer l.Close()

		l.Info("still logs")
		assert.Contains(t, buf.String(), "still logs")
	})
}
