// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warning ", LevelWarn, false},
		{"warn", LevelWarn, false},
		{"Error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_ConsoleText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Service: "assistant", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	logger.Slog().Info("turn completed", "session_id", "web-1")
	logger.Slog().Debug("hidden")

	out := buf.String()
	for _, want := range []string{"level=INFO", `msg="turn completed"`, "session_id=web-1", "service=assistant"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug entry written at info level")
	}
}

func TestNew_ConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelDebug, JSON: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Slog().Debug("classifier decision", "kind", "action")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if entry["msg"] != "classifier decision" || entry["kind"] != "action" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNew_WithLogDir(t *testing.T) {
	var console bytes.Buffer
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := New(Config{LogDir: dir, Service: "assistant", Writer: &console})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Slog().Warn("audit write failed", "error", "disk full")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	path := filepath.Join(dir, "assistant_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("file entry is not JSON: %v: %s", err, data)
	}
	if entry["service"] != "assistant" || entry["level"] != "WARN" {
		t.Errorf("unexpected file entry %v", entry)
	}
	if !strings.Contains(console.String(), "audit write failed") {
		t.Error("console did not receive the entry")
	}
}

func TestNew_WithLogDir_DefaultServiceName(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{LogDir: dir, Quiet: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Slog().Info("x")
	logger.Close()

	matches, _ := filepath.Glob(filepath.Join(dir, "assistant_*.log"))
	if len(matches) != 1 {
		t.Errorf("expected one assistant_*.log file, got %v", matches)
	}
}

func TestNew_WithLogDir_InvalidPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{LogDir: filepath.Join(file, "logs")}); err == nil {
		t.Error("New() with an unusable log dir should fail")
	}
}

func TestNew_QuietWithoutFileDiscards(t *testing.T) {
	logger, err := New(Config{Quiet: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Slog().Error("dropped")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestLogger_CloseTwice(t *testing.T) {
	logger, err := New(Config{LogDir: t.TempDir(), Quiet: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	var mu sync.Mutex
	var buf bytes.Buffer
	logger, err := New(Config{JSON: true, Writer: writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	})})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Slog().Info("turn", "worker", n)
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if lines := strings.Count(buf.String(), "\n"); lines != 200 {
		t.Errorf("got %d lines, want 200", lines)
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// =============================================================================
// multiHandler Tests
// =============================================================================

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("broken") }

func TestMultiHandler_FansOutPerLevel(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h).With("session_id", "s1").WithGroup("op")

	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(Debug) = false, want true")
	}
	logger.Info("cancel", "name", "cancel_shipment")

	if !strings.Contains(debugBuf.String(), "op.name=cancel_shipment") || !strings.Contains(debugBuf.String(), "session_id=s1") {
		t.Errorf("debug handler output: %s", debugBuf.String())
	}
	if warnBuf.Len() != 0 {
		t.Errorf("warn handler received an info entry: %s", warnBuf.String())
	}
}

func TestMultiHandler_KeepsWritingAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	ok := slog.NewTextHandler(&buf, nil)
	h := &multiHandler{handlers: []slog.Handler{failingHandler{ok}, ok}}

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0))
	if err == nil {
		t.Error("Handle() should report the failing handler")
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Error("healthy handler did not receive the record")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/.kargo/logs"); got != filepath.Join(home, ".kargo/logs") {
		t.Errorf("expandPath(~) = %q", got)
	}
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("expandPath(/var/log) = %q", got)
	}
}
