// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the structured logger used across airwall.
// Log lines are key/value pairs rendered through log/slog; components
// attach their name once and pass the logger down.
package logging

import (
	"log/slog"
	"os"
	"sync/atomic"
)

// Logger wraps slog with component tagging and error attachment.
type Logger struct {
	s *slog.Logger
}

var level = new(slog.LevelVar)

var defaultLogger atomic.Pointer[Logger]

func init() {
	level.Set(slog.LevelInfo)
	defaultLogger.Store(&Logger{s: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))})
}

// Default returns the process-wide logger.
func Default() *Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}

// SetVerbose toggles debug-level output.
func SetVerbose(verbose bool) {
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// New creates a logger from an explicit slog handler.
func New(h slog.Handler) *Logger {
	return &Logger{s: slog.New(h)}
}

// WithComponent returns a logger tagged with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{s: l.s.With("component", name)}
}

// WithComponent is shorthand for Default().WithComponent(name).
func WithComponent(name string) *Logger {
	return Default().WithComponent(name)
}

// WithError returns a logger carrying an error attribute.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{s: l.s.With("error", err)}
}

// With returns a logger carrying extra key/value attributes.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{s: l.s.With(kv...)}
}

func (l *Logger) Debug(msg string, kv ...any) { l.s.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.s.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.s.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.s.Error(msg, kv...) }
