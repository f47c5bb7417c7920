// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ttl runs the background sweep that expires idle sessions.
package ttl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kargohat/assistant/services/assistant/observability"
)

// Sweeper is the part of a session store the scheduler drives.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
}

// SchedulerConfig holds configuration for the sweep scheduler.
type SchedulerConfig struct {
	// Interval is how often to sweep. Default: 1 minute.
	Interval time.Duration
}

// DefaultSchedulerConfig returns a one-minute sweep interval.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Interval: time.Minute}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Expired   int
	Active    int
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns how long the sweep took.
func (r SweepResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Scheduler periodically sweeps a session store.
//
// # Description
//
// Manages a background goroutine using the ticker + done channel pattern.
// Stop blocks until the goroutine has exited.
//
// # Thread Safety
//
// All public methods are thread-safe.
type Scheduler struct {
	target  Sweeper
	metrics *observability.Metrics
	logger  *slog.Logger
	config  SchedulerConfig

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler. metrics and logger may be nil.
func NewScheduler(target Sweeper, metrics *observability.Metrics, logger *slog.Logger, config SchedulerConfig) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		target:  target,
		metrics: metrics,
		logger:  logger,
		config:  config,
	}
}

// Start begins sweeping until Stop is called or ctx is cancelled.
//
// # Outputs
//
//   - error: Non-nil if the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})

	s.logger.Info("session sweep scheduler starting", "interval", s.config.Interval.String())

	s.wg.Add(1)
	go s.runLoop(ctx, s.done)
	return nil
}

// Stop signals the loop and waits for it to exit. Safe to call multiple
// times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.done)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("session sweep scheduler stopped")
}

// Run starts the scheduler and blocks until ctx is cancelled. It fits an
// errgroup member.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// RunNow performs one sweep immediately.
func (s *Scheduler) RunNow(ctx context.Context) (SweepResult, error) {
	result := SweepResult{StartTime: time.Now()}

	expired, err := s.target.Sweep(ctx)
	if err != nil {
		return result, fmt.Errorf("sweep sessions: %w", err)
	}
	result.Expired = expired

	active, err := s.target.Count(ctx)
	if err != nil {
		return result, fmt.Errorf("count sessions: %w", err)
	}
	result.Active = active
	result.EndTime = time.Now()

	s.metrics.RecordSweep(result.Expired, result.Active)
	return result, nil
}

func (s *Scheduler) runLoop(ctx context.Context, done <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.execute(ctx)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context) {
	result, err := s.RunNow(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}
	if result.Expired > 0 {
		s.logger.Info("session sweep completed",
			"expired", result.Expired,
			"active", result.Active,
			"duration_ms", result.Duration().Milliseconds(),
		)
	} else {
		s.logger.Debug("session sweep completed (nothing expired)", "active", result.Active)
	}
}
