// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

//go:embed instructions.txt
var defaultInstructions string

// DefaultInstructions returns the built-in classifier instructions.
func DefaultInstructions() string {
	return defaultInstructions
}

// InstructionSource supplies the classifier's system instructions.
type InstructionSource interface {
	Instructions() string
}

// StaticInstructions is a fixed InstructionSource.
type StaticInstructions string

// Instructions implements InstructionSource.
func (s StaticInstructions) Instructions() string {
	if strings.TrimSpace(string(s)) == "" {
		return defaultInstructions
	}
	return string(s)
}

// InstructionFile serves instructions from a file and reloads them when
// the file changes.
//
// # Description
//
// The parent directory is watched rather than the file itself so that
// editors which save by rename are picked up. A file that becomes empty or
// unreadable keeps the last good instructions.
//
// # Thread Safety
//
// Instructions is safe for concurrent use. Watch should run once.
type InstructionFile struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	current string
}

// NewInstructionFile loads path and prepares a watcher.
//
// # Outputs
//
//   - error: Non-nil if the file cannot be read or the watcher cannot be
//     created.
func NewInstructionFile(path string, logger *slog.Logger) (*InstructionFile, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := &InstructionFile{path: filepath.Clean(path), logger: logger}
	if err := f.reload(); err != nil {
		return nil, err
	}
	if f.current == "" {
		return nil, fmt.Errorf("instruction file %s is empty", path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create instruction watcher: %w", err)
	}
	f.watcher = watcher
	return f, nil
}

// Instructions implements InstructionSource.
func (f *InstructionFile) Instructions() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

func (f *InstructionFile) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read instruction file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil
	}
	f.mu.Lock()
	f.current = text
	f.mu.Unlock()
	return nil
}

// Watch reloads the file on change until ctx is cancelled, then closes
// the watcher. It returns nil on cancellation.
func (f *InstructionFile) Watch(ctx context.Context) error {
	defer f.watcher.Close()

	dir := filepath.Dir(f.path)
	if err := f.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	f.logger.Debug("watching instruction file", "path", f.path)

	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}
			f.handleEvent(event)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("instruction watcher error", "error", err)
		case <-ctx.Done():
			return nil
		}
	}
}

func (f *InstructionFile) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != f.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if err := f.reload(); err != nil {
		f.logger.Warn("instruction reload failed, keeping previous", "path", f.path, "error", err)
		return
	}
	f.logger.Info("instructions reloaded", "path", f.path)
}
