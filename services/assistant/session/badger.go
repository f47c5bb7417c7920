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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	badgerdb "github.com/kargohat/assistant/services/assistant/storage/badger"
)

const keyPrefix = "session/"

// BadgerStore persists sessions in BadgerDB. Every Save rewrites the entry
// with a TTL equal to the idle TTL, so idle sessions expire without a
// sweep.
//
// # Thread Safety
//
// Safe for concurrent use.
type BadgerStore struct {
	db      *badgerdb.DB
	idleTTL time.Duration
	now     Clock
}

// NewBadgerStore wraps an open database. The store owns db and closes it
// on Close.
func NewBadgerStore(db *badgerdb.DB, idleTTL time.Duration, now Clock) *BadgerStore {
	if now == nil {
		now = time.Now
	}
	return &BadgerStore{db: db, idleTTL: idleTTL, now: now}
}

func sessionKey(id string) []byte {
	return []byte(keyPrefix + id)
}

// GetOrCreate implements Store.
func (b *BadgerStore) GetOrCreate(ctx context.Context, id string) (*State, error) {
	var st *State
	err := b.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var loaded State
			if err := json.Unmarshal(val, &loaded); err != nil {
				return fmt.Errorf("decode session %s: %w", id, err)
			}
			st = &loaded
			return nil
		})
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return nil, ErrClosed
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if st == nil {
		return NewState(id, b.now()), nil
	}
	return st, nil
}

// Save implements Store.
func (b *BadgerStore) Save(ctx context.Context, st *State) error {
	val, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", st.ID, err)
	}
	err = b.db.WithTxn(ctx, func(txn *badger.Txn) error {
		entry := badger.NewEntry(sessionKey(st.ID), val)
		if b.idleTTL > 0 {
			entry = entry.WithTTL(b.idleTTL)
		}
		return txn.SetEntry(entry)
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete implements Store.
func (b *BadgerStore) Delete(ctx context.Context, id string) error {
	return b.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
}

// Sweep implements Store. Expiry is handled by entry TTLs, so there is
// nothing to remove.
func (b *BadgerStore) Sweep(ctx context.Context) (int, error) {
	return 0, ctx.Err()
}

// Count implements Store.
func (b *BadgerStore) Count(ctx context.Context) (int, error) {
	n := 0
	err := b.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close implements Store.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

var _ Store = (*BadgerStore)(nil)
