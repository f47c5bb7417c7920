// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in a map.
//
// # Thread Safety
//
// Safe for concurrent use. The map lock is held only for map access; state
// values are copied in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*State
	idleTTL  time.Duration
	now      Clock
	closed   bool
}

// NewMemoryStore creates a store. A non-positive idleTTL disables expiry.
// A nil clock uses time.Now.
func NewMemoryStore(idleTTL time.Duration, now Clock) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		sessions: make(map[string]*State),
		idleTTL:  idleTTL,
		now:      now,
	}
}

func (m *MemoryStore) expired(st *State, now time.Time) bool {
	return m.idleTTL > 0 && st.IdleSince(now) > m.idleTTL
}

// GetOrCreate implements Store.
func (m *MemoryStore) GetOrCreate(_ context.Context, id string) (*State, error) {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if st, ok := m.sessions[id]; ok && !m.expired(st, now) {
		return st.Clone(), nil
	}
	return NewState(id, now), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.sessions[st.ID] = st.Clone()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Sweep implements Store.
func (m *MemoryStore) Sweep(_ context.Context) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	removed := 0
	for id, st := range m.sessions {
		if m.expired(st, now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.sessions = nil
	return nil
}

var _ Store = (*MemoryStore)(nil)
