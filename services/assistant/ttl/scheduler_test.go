// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ttl

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kargohat/assistant/services/assistant/observability"
	"github.com/kargohat/assistant/services/assistant/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubSweeper struct {
	sweeps  atomic.Int32
	expired int
	active  int
	err     error
}

func (s *stubSweeper) Sweep(context.Context) (int, error) {
	s.sweeps.Add(1)
	return s.expired, s.err
}

func (s *stubSweeper) Count(context.Context) (int, error) {
	return s.active, nil
}

func TestScheduler_RunNowRecordsMetrics(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	s := NewScheduler(&stubSweeper{expired: 2, active: 5}, m, nil, DefaultSchedulerConfig())

	result, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Expired)
	assert.Equal(t, 5, result.Active)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsExpiredTotal))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.SessionsActive))
}

func TestScheduler_RunNowPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	s := NewScheduler(&stubSweeper{err: boom}, nil, nil, DefaultSchedulerConfig())

	_, err := s.RunNow(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestScheduler_TicksAndStops(t *testing.T) {
	target := &stubSweeper{}
	s := NewScheduler(target, nil, nil, SchedulerConfig{Interval: 5 * time.Millisecond})

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "second start is rejected")

	assert.Eventually(t, func() bool { return target.sweeps.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s := NewScheduler(&stubSweeper{}, nil, nil, SchedulerConfig{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestScheduler_ExpiresMemorySessions(t *testing.T) {
	now := time.Date(2025, 12, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := session.NewMemoryStore(30*time.Minute, clock)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		st, _ := store.GetOrCreate(ctx, id)
		require.NoError(t, store.Save(ctx, st))
	}
	now = now.Add(time.Hour)
	fresh, _ := store.GetOrCreate(ctx, "c")
	require.NoError(t, store.Save(ctx, fresh))

	s := NewScheduler(store, nil, nil, DefaultSchedulerConfig())
	result, err := s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Expired)
	assert.Equal(t, 1, result.Active)
}
