// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session stores per-session conversational state.
//
// Two backends are provided. MemoryStore keeps sessions in process and
// relies on Sweep for idle expiry. BadgerStore persists sessions in an
// embedded BadgerDB and lets entry TTLs expire them.
//
// Stores hand out copies. A caller mutates its copy and publishes it with
// Save. Turns for the same session are serialized with Locks, not by the
// store.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("session store closed")

// Store maps session ids to state.
type Store interface {
	// GetOrCreate returns a copy of the session, creating a default state
	// for unknown or expired ids. It does not persist a new state.
	GetOrCreate(ctx context.Context, id string) (*State, error)

	// Save publishes state. Last writer wins.
	Save(ctx context.Context, st *State) error

	// Delete removes a session. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error

	// Sweep removes sessions idle longer than the idle TTL and returns how
	// many were removed.
	Sweep(ctx context.Context) (int, error)

	// Count returns the number of live sessions.
	Count(ctx context.Context) (int, error)

	Close() error
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// =============================================================================
// Per-session locking
// =============================================================================

// Locks serializes work per session id. Entries are reference counted and
// removed when no goroutine holds or waits on them, so the map does not
// grow with the number of sessions ever seen.
//
// # Thread Safety
//
// Safe for concurrent use.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{entries: make(map[string]*lockEntry)}
}

// Lock blocks until id is free and returns the unlock function.
func (l *Locks) Lock(id string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of ids currently held or awaited.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
