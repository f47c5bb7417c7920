// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for assistant components.
//
// Logs go to a console writer (stderr by default, text or JSON) and,
// optionally, to a dated JSON file:
//
//	┌──────────────────────────────────────┐
//	│                Logger                │
//	│  ┌─────────────┐  ┌───────────────┐  │
//	│  │   stderr    │  │   log file    │  │
//	│  │  (default)  │  │  (optional)   │  │
//	│  └─────────────┘  └───────────────┘  │
//	└──────────────────────────────────────┘
//
// stdout is never used: the line protocol owns it.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.kargo/logs",
//	    Service: "assistant",
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//	slog.SetDefault(logger.Slog())
//
// # Security Considerations
//
// Nothing is redacted here. Callers log lengths and tags instead of user
// messages, and mask phone numbers before logging them.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents log severity. Debug < Info < Warn < Error. The zero
// value is LevelInfo.
type Level int

const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name. "warning" is
// accepted for LevelWarn.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
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

// Config configures a Logger. The zero value writes Info and above to
// stderr as text.
type Config struct {
	// Level sets the minimum log level. Default: LevelInfo
	Level Level

	// LogDir enables a JSON log file named "{Service}_{YYYY-MM-DD}.log".
	// The directory is created with 0750 permissions. "~" is expanded.
	LogDir string

	// Service is attached to every entry as the "service" attribute.
	Service string

	// JSON formats console output as JSON. File output is always JSON.
	JSON bool

	// Quiet disables console output. With no LogDir, entries are dropped.
	Quiet bool

	// Writer replaces stderr as the console destination.
	Writer io.Writer
}

// Logger owns the slog handler chain and the optional log file.
//
// # Thread Safety
//
// Safe for concurrent use. Close must be called once, after the last
// log call.
type Logger struct {
	slog *slog.Logger
	file *os.File
	mu   sync.Mutex
}

// New creates a Logger.
//
// # Outputs
//
//   - *Logger: Caller must Close it when LogDir is set.
//   - error: Non-nil if the log directory or file cannot be created.
func New(config Config) (*Logger, error) {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}
	logger := &Logger{}

	var handlers []slog.Handler
	if !config.Quiet {
		w := config.Writer
		if w == nil {
			w = os.Stderr
		}
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(w, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(w, opts))
		}
	}

	if config.LogDir != "" {
		file, err := openLogFile(config.LogDir, config.Service, time.Now())
		if err != nil {
			return nil, err
		}
		logger.file = file
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}
	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	logger.slog = slog.New(handler)
	return logger, nil
}

func openLogFile(dir, service string, now time.Time) (*os.File, error) {
	dir = expandPath(dir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}
	if service == "" {
		service = "assistant"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", service, now.Format("2006-01-02")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

// Slog returns the underlying slog.Logger. Components take this by
// injection.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close syncs and closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	var errs []error
	if err := l.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync log file: %w", err))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close log file: %w", err))
	}
	l.file = nil
	return errors.Join(errs...)
}

// multiHandler fans records out to several handlers, each applying its
// own level filter.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes to every enabled handler even if one fails.
func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
