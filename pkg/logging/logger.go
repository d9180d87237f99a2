// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for Koarl components.
//
// The package is a thin layer over the standard library slog package:
//
//   - Default: human-readable text output on stderr (CLI convention)
//   - Optional: JSON file logging with automatic directory creation,
//     one file per service per day
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("crash stored", "uuid", crash.UUID)
//	logger.Error("upload failed", "error", err)
//
// # File Logging
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "/var/log/koarl",
//	    Service: "koarld",
//	})
//	defer logger.Close() // flushes and closes the file
//
// # Thread Safety
//
// Logger is safe for concurrent use. Internal state is protected by a
// mutex, and the underlying slog.Logger is thread-safe.
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Crash
// messages may contain user data; callers decide what gets logged.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels, ordered by severity:
// Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operations (request start/end, state changes).
	LevelInfo

	// LevelWarn is for recoverable issues (retry attempts, degraded mode).
	LevelWarn

	// LevelError is for operation failures where the system continues.
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel converts a level name to a Level, case-insensitively.
// Unknown names map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger.
type Config struct {
	// Level is the minimum level to emit. Default: LevelInfo.
	Level Level

	// LogDir enables file logging when non-empty. The directory is
	// created if missing; files are named {service}_{date}.log and
	// written as JSON lines.
	LogDir string

	// Service names the component for file naming and log attribution.
	// Default: "koarl".
	Service string

	// Output overrides the default stderr destination. Mainly for tests.
	Output io.Writer
}

// Logger is a leveled, structured logger.
type Logger struct {
	mu     sync.Mutex
	slog   *slog.Logger
	file   *os.File
	closed bool
}

// New creates a Logger from the given configuration.
//
// Description:
//
//	Builds a text handler on stderr (or Config.Output) and, when LogDir
//	is set, an additional JSON handler writing to a per-service daily
//	file. File-open failures degrade to stderr-only logging; they never
//	fail construction.
//
// Outputs:
//
//	*Logger - Ready to use. Call Close() when file logging is enabled.
func New(config Config) *Logger {
	if config.Service == "" {
		config.Service = "koarl"
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}
	handlers := []slog.Handler{slog.NewTextHandler(out, opts)}

	l := &Logger{}

	if config.LogDir != "" {
		if err := os.MkdirAll(config.LogDir, 0750); err == nil {
			name := fmt.Sprintf("%s_%s.log", config.Service, time.Now().Format("2006-01-02"))
			f, err := os.OpenFile(filepath.Join(config.LogDir, name),
				os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
			if err == nil {
				l.file = f
				handlers = append(handlers, slog.NewJSONHandler(f, opts))
			}
		}
	}

	if len(handlers) == 1 {
		l.slog = slog.New(handlers[0])
	} else {
		l.slog = slog.New(&multiHandler{handlers: handlers})
	}
	l.slog = l.slog.With("service", config.Service)
	return l
}

// Default returns a stderr-only logger at info level.
func Default() *Logger {
	return New(Config{Level: LevelInfo})
}

// Debug logs at debug level with key-value pairs.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at info level with key-value pairs.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at warn level with key-value pairs.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at error level with key-value pairs.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a Logger with the given attributes attached to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

// Slog exposes the underlying slog.Logger for packages that take one.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Close flushes and closes the log file, if any. Safe to call twice.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.file == nil {
		l.closed = true
		return nil
	}
	l.closed = true
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
