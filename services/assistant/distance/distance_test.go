// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package distance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kargohat/assistant/services/llm"
)

type cannedClient struct {
	reply string
	err   error
	calls atomic.Int32
}

func (c *cannedClient) Generate(context.Context, string, llm.GenerationParams) (string, error) {
	c.calls.Add(1)
	return c.reply, c.err
}

func (c *cannedClient) Chat(ctx context.Context, _ []llm.Message, p llm.GenerationParams) (string, error) {
	return c.Generate(ctx, "", p)
}

func TestParseKilometres(t *testing.T) {
	cases := map[string]float64{
		"450":                 450,
		"Yaklaşık 350.5 km":   350.5,
		"352,7":               352.7,
		"bilmiyorum":          0,
		"":                    0,
		"mesafe: 12 km, 3 saat": 12,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseKilometres(in), in)
	}
}

func TestLLMEstimator(t *testing.T) {
	ctx := context.Background()

	km, err := NewLLMEstimator(&cannedClient{reply: "450"}, nil, nil).Estimate(ctx, "İstanbul", "Ankara")
	require.NoError(t, err)
	assert.Equal(t, 450.0, km)

	client := &cannedClient{reply: "450"}
	km, err = NewLLMEstimator(client, nil, nil).Estimate(ctx, "", "Ankara")
	require.NoError(t, err)
	assert.Zero(t, km)
	assert.Zero(t, client.calls.Load(), "blank input never calls the model")

	boom := errors.New("timeout")
	_, err = NewLLMEstimator(&cannedClient{err: boom}, nil, nil).Estimate(ctx, "İzmir", "Bursa")
	assert.ErrorIs(t, err, boom)
}

type slowEstimator struct {
	calls atomic.Int32
	km    float64
}

func (s *slowEstimator) Estimate(context.Context, string, string) (float64, error) {
	s.calls.Add(1)
	time.Sleep(20 * time.Millisecond)
	return s.km, nil
}

func TestCached_DeduplicatesAndMemoizes(t *testing.T) {
	inner := &slowEstimator{km: 450}
	c := NewCached(inner)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km, err := c.Estimate(ctx, "İstanbul", "Ankara")
			assert.NoError(t, err)
			assert.Equal(t, 450.0, km)
		}()
	}
	wg.Wait()

	// Case and diacritic variants hit the same entry.
	km, err := c.Estimate(ctx, "ISTANBUL", "ankara")
	require.NoError(t, err)
	assert.Equal(t, 450.0, km)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCached_DoesNotMemoizeZero(t *testing.T) {
	inner := &slowEstimator{km: 0}
	c := NewCached(inner)

	_, _ = c.Estimate(context.Background(), "a", "b")
	_, _ = c.Estimate(context.Background(), "a", "b")
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCached_EvictsOldestRoute(t *testing.T) {
	inner := &slowEstimator{km: 450}
	c := NewCachedWithCapacity(inner, 2)
	ctx := context.Background()

	for _, to := range []string{"Ankara", "İzmir", "Bursa"} {
		_, err := c.Estimate(ctx, "İstanbul", to)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int32(3), inner.calls.Load())

	// Bursa is still cached, Ankara was evicted.
	_, err := c.Estimate(ctx, "istanbul", "bursa")
	require.NoError(t, err)
	assert.Equal(t, int32(3), inner.calls.Load())

	_, err = c.Estimate(ctx, "İstanbul", "Ankara")
	require.NoError(t, err)
	assert.Equal(t, int32(4), inner.calls.Load())
	assert.Equal(t, 2, c.Len())
}
