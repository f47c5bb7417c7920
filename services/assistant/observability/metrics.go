// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the assistant.
//
// # Description
//
// Metrics cover:
//   - Turns by outcome (ok, fallback, rate_limited)
//   - Business operations by name and result kind
//   - Identity verifications by result
//   - Pending-intent replays
//   - Latency of external collaborators (classifier, phraser, distance)
//   - Live and expired sessions
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every Record method is safe on a nil *Metrics, so components can run
// without instrumentation in tests.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "assistant"

// Outcome labels a finished turn.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeFallback    Outcome = "fallback"
	OutcomeRateLimited Outcome = "rate_limited"
)

// Collaborator labels an external call.
type Collaborator string

const (
	CollaboratorClassifier Collaborator = "classifier"
	CollaboratorPhraser    Collaborator = "phraser"
	CollaboratorDistance   Collaborator = "distance"
)

// Metrics holds all Prometheus metrics for the dispatch loop.
type Metrics struct {
	// TurnsTotal counts turns. Labels: outcome
	TurnsTotal *prometheus.CounterVec

	// OperationsTotal counts dispatched operations. Labels: operation, kind
	OperationsTotal *prometheus.CounterVec

	// VerificationsTotal counts verification attempts. Labels: result
	VerificationsTotal *prometheus.CounterVec

	// ReplaysTotal counts pending intents replayed after verification.
	ReplaysTotal prometheus.Counter

	// ExternalCallDurationSeconds measures collaborator latency.
	// Labels: collaborator
	ExternalCallDurationSeconds *prometheus.HistogramVec

	// SessionsActive is the number of live sessions at the last sweep.
	SessionsActive prometheus.Gauge

	// SessionsExpiredTotal counts sessions removed by sweeps.
	SessionsExpiredTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics on reg.
//
// # Description
//
// Pass prometheus.NewRegistry() in tests to avoid duplicate registration
// against the default registry.
//
// # Limitations
//
//   - Panics if called twice with the same registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TurnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "turns_total",
				Help:      "Total conversational turns by outcome",
			},
			[]string{"outcome"},
		),

		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "Total business operations by name and result kind",
			},
			[]string{"operation", "kind"},
		),

		VerificationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "verifications_total",
				Help:      "Total identity verification attempts by result",
			},
			[]string{"result"},
		),

		ReplaysTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "replays_total",
				Help:      "Total pending intents replayed after verification",
			},
		),

		ExternalCallDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "external_call_duration_seconds",
				Help:      "Latency of external collaborator calls in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0},
			},
			[]string{"collaborator"},
		),

		SessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "sessions_active",
				Help:      "Number of live sessions at the last sweep",
			},
		),

		SessionsExpiredTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sessions_expired_total",
				Help:      "Total sessions removed for inactivity",
			},
		),
	}
}

// RecordTurn counts a finished turn.
func (m *Metrics) RecordTurn(outcome Outcome) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordOperation counts a dispatched operation.
func (m *Metrics) RecordOperation(operation, kind string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, kind).Inc()
}

// RecordVerification counts a verification attempt. result is "ok" or the
// failure reason.
func (m *Metrics) RecordVerification(result string) {
	if m == nil {
		return
	}
	m.VerificationsTotal.WithLabelValues(result).Inc()
}

// RecordReplay counts a pending-intent replay.
func (m *Metrics) RecordReplay() {
	if m == nil {
		return
	}
	m.ReplaysTotal.Inc()
}

// ObserveCall records the latency of a collaborator call started at start.
func (m *Metrics) ObserveCall(c Collaborator, start time.Time) {
	if m == nil {
		return
	}
	m.ExternalCallDurationSeconds.WithLabelValues(string(c)).Observe(time.Since(start).Seconds())
}

// RecordSweep records the result of a session sweep.
func (m *Metrics) RecordSweep(expired, active int) {
	if m == nil {
		return
	}
	m.SessionsExpiredTotal.Add(float64(expired))
	m.SessionsActive.Set(float64(active))
}
