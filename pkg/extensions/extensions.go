// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines the assistant's pluggable policy points.
//
// The default build records audit events through slog and passes messages
// through unchanged. Deployments with compliance requirements inject their
// own implementations through ServiceOptions.
//
// # Extension Categories
//
//   - audit.go: Audit trail of verifications and state-changing operations
//     (AuditLogger)
//   - filter.go: Message transformation and PII redaction (MessageFilter)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
package extensions

// ServiceOptions groups all extension points for service configuration.
//
// All fields are optional; nil values are replaced with no-op defaults
// when DefaultOptions() is called or when services check for nil.
type ServiceOptions struct {
	// AuditLogger records security-relevant events.
	// Default: NopAuditLogger (discards all events)
	AuditLogger AuditLogger

	// MessageFilter transforms messages before/after processing.
	// Default: NopMessageFilter (passes through unchanged)
	MessageFilter MessageFilter
}

// DefaultOptions returns ServiceOptions with no-op defaults.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuditLogger:   &NopAuditLogger{},
		MessageFilter: &NopMessageFilter{},
	}
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// WithFilter returns a copy of opts with the given MessageFilter.
func (opts ServiceOptions) WithFilter(filter MessageFilter) ServiceOptions {
	opts.MessageFilter = filter
	return opts
}

// Normalize fills nil fields with no-op defaults.
func (opts ServiceOptions) Normalize() ServiceOptions {
	if opts.AuditLogger == nil {
		opts.AuditLogger = &NopAuditLogger{}
	}
	if opts.MessageFilter == nil {
		opts.MessageFilter = &NopMessageFilter{}
	}
	return opts
}
