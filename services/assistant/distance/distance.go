// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package distance estimates road distances between two places.
package distance

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kargohat/assistant/services/assistant/observability"
	"github.com/kargohat/assistant/services/assistant/textnorm"
	"github.com/kargohat/assistant/services/llm"
)

// Estimator returns a road distance in kilometres. Zero means the distance
// could not be estimated.
type Estimator interface {
	Estimate(ctx context.Context, origin, destination string) (float64, error)
}

var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// LLMEstimator asks an LLM for the driving distance.
type LLMEstimator struct {
	client  llm.LLMClient
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewLLMEstimator creates an estimator. metrics and logger may be nil.
func NewLLMEstimator(client llm.LLMClient, metrics *observability.Metrics, logger *slog.Logger) *LLMEstimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMEstimator{client: client, metrics: metrics, logger: logger}
}

// Estimate implements Estimator. Output without a number yields 0 and no
// error; transport failures are returned.
func (e *LLMEstimator) Estimate(ctx context.Context, origin, destination string) (float64, error) {
	if textnorm.IsBlank(origin) || textnorm.IsBlank(destination) {
		return 0, nil
	}

	prompt := fmt.Sprintf("GÖREV: Aşağıdaki iki lokasyon arasındaki tahmini karayolu sürüş mesafesini kilometre cinsinden ver.\n\n"+
		"Kalkış: %s\nVarış: %s\n\n"+
		"KURALLAR:\n1. Sadece sayıyı ver (örn: 350.5).\n2. \"km\" veya açıklama yazma.", origin, destination)

	start := time.Now()
	raw, err := e.client.Generate(ctx, prompt, llm.GenerationParams{Temperature: llm.Float32(0)})
	e.metrics.ObserveCall(observability.CollaboratorDistance, start)
	if err != nil {
		return 0, fmt.Errorf("distance estimate: %w", err)
	}

	km := ParseKilometres(raw)
	if km == 0 {
		e.logger.Warn("distance estimate unusable", "origin", origin, "destination", destination, "raw", raw)
	}
	return km, nil
}

// ParseKilometres extracts the first number from s. A comma is accepted as
// the decimal separator. No number, or a negative one, yields 0.
func ParseKilometres(s string) float64 {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// DefaultCacheCapacity bounds the number of memoized routes.
const DefaultCacheCapacity = 1024

// Cached memoizes successful non-zero estimates per route and collapses
// concurrent lookups for the same route into one call. Once capacity
// routes are held, the oldest entry is evicted first.
//
// # Thread Safety
//
// Safe for concurrent use.
type Cached struct {
	inner    Estimator
	group    singleflight.Group
	capacity int

	mu    sync.RWMutex
	cache map[string]float64
	order []string
}

// NewCached wraps inner with DefaultCacheCapacity.
func NewCached(inner Estimator) *Cached {
	return NewCachedWithCapacity(inner, DefaultCacheCapacity)
}

// NewCachedWithCapacity wraps inner, holding at most capacity routes.
// Non-positive capacity uses DefaultCacheCapacity.
func NewCachedWithCapacity(inner Estimator, capacity int) *Cached {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cached{inner: inner, capacity: capacity, cache: make(map[string]float64)}
}

// Len returns the number of memoized routes.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *Cached) store(key string, km float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cache[key]; ok {
		c.cache[key] = km
		return
	}
	for len(c.order) >= c.capacity {
		delete(c.cache, c.order[0])
		c.order = c.order[1:]
	}
	c.cache[key] = km
	c.order = append(c.order, key)
}

func routeKey(origin, destination string) string {
	return textnorm.Fold(origin) + "\x00" + textnorm.Fold(destination)
}

// Estimate implements Estimator.
func (c *Cached) Estimate(ctx context.Context, origin, destination string) (float64, error) {
	key := routeKey(origin, destination)

	c.mu.RLock()
	km, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return km, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		km, err := c.inner.Estimate(ctx, origin, destination)
		if err != nil {
			return 0.0, err
		}
		if km > 0 {
			c.store(key, km)
		}
		return km, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}
