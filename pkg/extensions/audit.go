// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AuditEvent represents a security-relevant event for compliance logging.
//
// # Event Categories
//
// Events are categorized by type for filtering and alerting:
//   - Identity: "identity.verify"
//   - Data Access: "data.read", "data.write"
//   - Escalation: "escalation.create"
//
// Example:
//
//	event := AuditEvent{
//	    EventType:    "data.write",
//	    UserID:       "1001",
//	    Action:       "cancel_shipment",
//	    ResourceType: "shipment",
//	    ResourceID:   "123456",
//	    Outcome:      "ok",
//	    Metadata: map[string]any{
//	        "session_id": sessionID,
//	    },
//	}
type AuditEvent struct {
	// EventType categorizes the event. Format: "category.action".
	EventType string

	// Timestamp is when the event occurred (always use UTC).
	// If zero, implementations should set to time.Now().UTC().
	Timestamp time.Time

	// UserID identifies who performed the action. Use "anonymous" for
	// unverified callers.
	UserID string

	// Action is the operation that was attempted.
	Action string

	// ResourceType is the category of resource involved, such as
	// "shipment" or "customer".
	ResourceType string

	// ResourceID is the specific resource instance (optional).
	ResourceID string

	// Outcome indicates the result: "ok", "refusal", "failure", "error".
	Outcome string

	// Metadata holds additional event-specific data. Never put raw phone
	// numbers or utterances here.
	Metadata map[string]any
}

// AuditFilter defines criteria for querying audit events.
//
// All fields are optional; only non-zero values are used as filters and
// they are combined with AND logic.
type AuditFilter struct {
	EventTypes []string
	UserID     string
	StartTime  time.Time
	EndTime    time.Time
	Outcome    string

	// Limit is the maximum number of events to return. Zero means no limit.
	Limit int
}

// Matches reports whether e satisfies the filter.
func (f AuditFilter) Matches(e AuditEvent) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == e.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.UserID != "" && f.UserID != e.UserID {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && !e.Timestamp.Before(f.EndTime) {
		return false
	}
	if f.Outcome != "" && f.Outcome != e.Outcome {
		return false
	}
	return true
}

// AuditLogger records security-relevant events for compliance and analysis.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// Log should return quickly; a failed audit write never fails the turn.
type AuditLogger interface {
	// Log records a security-relevant event.
	Log(ctx context.Context, event AuditEvent) error

	// Query retrieves events matching filter, newest first.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush ensures all buffered events are persisted. Call before
	// shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards all events.
//
// Thread-safe: This implementation has no mutable state.
type NopAuditLogger struct{}

// Log discards the event without recording it.
func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

// Query returns an empty slice.
func (l *NopAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

// Flush is a no-op since nothing is buffered.
func (l *NopAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// SlogAuditLogger writes events as structured log records under the
// "audit" group. Events are not retained, so Query returns nothing.
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger creates an audit logger on top of logger. A nil
// logger uses slog.Default().
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger}
}

// Log implements AuditLogger.
func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	attrs := []any{
		slog.String("event_type", event.EventType),
		slog.Time("timestamp", event.Timestamp),
		slog.String("user_id", event.UserID),
		slog.String("action", event.Action),
		slog.String("resource_type", event.ResourceType),
		slog.String("resource_id", event.ResourceID),
		slog.String("outcome", event.Outcome),
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.InfoContext(ctx, "audit", slog.Group("audit", attrs...))
	return nil
}

// Query implements AuditLogger.
func (l *SlogAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

// Flush implements AuditLogger.
func (l *SlogAuditLogger) Flush(ctx context.Context) error {
	return nil
}

// MemoryAuditLogger keeps the most recent events in memory.
//
// # Thread Safety
//
// Safe for concurrent use.
type MemoryAuditLogger struct {
	mu       sync.Mutex
	events   []AuditEvent
	capacity int
}

// NewMemoryAuditLogger keeps at most capacity events. Zero or negative
// means 1000.
func NewMemoryAuditLogger(capacity int) *MemoryAuditLogger {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryAuditLogger{capacity: capacity}
}

// Log implements AuditLogger.
func (l *MemoryAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	if over := len(l.events) - l.capacity; over > 0 {
		l.events = append([]AuditEvent(nil), l.events[over:]...)
	}
	return nil
}

// Query implements AuditLogger.
func (l *MemoryAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []AuditEvent{}
	for i := len(l.events) - 1; i >= 0; i-- {
		if !filter.Matches(l.events[i]) {
			continue
		}
		out = append(out, l.events[i])
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Flush implements AuditLogger.
func (l *MemoryAuditLogger) Flush(ctx context.Context) error {
	return nil
}

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
	_ AuditLogger = (*MemoryAuditLogger)(nil)
)
