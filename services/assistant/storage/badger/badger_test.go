// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.ErrorContains(t, err, "path is required")
}

func TestDB_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "sessions")
	cfg.GCInterval = 10 * time.Millisecond

	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte("session/web-1"), []byte(`{"id":"web-1"}`))
	}))
	time.Sleep(30 * time.Millisecond) // let the GC loop tick at least once
	require.NoError(t, db.Close())

	db, err = Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	var got []byte
	require.NoError(t, db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("session/web-1"))
		if err != nil {
			return err
		}
		got, err = item.ValueCopy(nil)
		return err
	}))
	assert.Equal(t, `{"id":"web-1"}`, string(got))
}

func TestDB_WithTxn_DiscardsOnError(t *testing.T) {
	ctx := context.Background()
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("boom")
	err = db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte("k"), []byte("v")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("k"))
		return err
	})
	assert.ErrorIs(t, err, badger.ErrKeyNotFound)
}

func TestDB_CancelledContext(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err = db.WithTxn(ctx, func(*badger.Txn) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	err = db.WithReadTxn(ctx, func(*badger.Txn) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
