// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger opens and maintains the embedded BadgerDB used for
// durable session state.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for a BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log lines. Nil disables them.
	Logger *slog.Logger

	// GCInterval is how often value log GC runs. Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio that triggers a rewrite.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: synced writes and a
// five-minute GC interval at a 0.5 discard ratio.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a test configuration with no disk I/O and no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// DB wraps a BadgerDB instance with its GC runner.
type DB struct {
	*badger.DB
	stopGC chan struct{}
	gcDone chan struct{}
	logger *slog.Logger
}

// Open opens a BadgerDB and starts value log GC when configured.
//
// # Description
//
// Creates the directory for persistent databases. GC never runs for
// in-memory databases.
//
// # Outputs
//
//   - *DB: The managed database. Caller must call Close() when done.
//   - error: Non-nil if the path is missing or the database cannot open.
//
// # Thread Safety
//
// The returned *DB is safe for concurrent use.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	wrapped := &DB{DB: db, logger: cfg.Logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		wrapped.stopGC = make(chan struct{})
		wrapped.gcDone = make(chan struct{})
		go wrapped.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return wrapped, nil
}

func (d *DB) runGC(interval time.Duration, ratio float64) {
	defer close(d.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means there was nothing worth collecting.
			if err := d.DB.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) && d.logger != nil {
				d.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// Close stops GC and closes the database.
func (d *DB) Close() error {
	if d.stopGC != nil {
		close(d.stopGC)
		<-d.gcDone
		d.stopGC = nil
	}
	return d.DB.Close()
}

// WithTxn runs fn in a read-write transaction and commits when fn
// returns nil.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	txn := d.DB.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// WithReadTxn runs fn in a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	txn := d.DB.NewTransaction(false)
	defer txn.Discard()
	return fn(txn)
}
