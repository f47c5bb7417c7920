// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package operations

import "errors"

// ErrUnroutable is returned by Dispatch for a function name outside the
// catalogue.
var ErrUnroutable = errors.New("operation not in catalogue")

// Kind classifies a Result. Every kind is a definitive answer to the user;
// hard failures are returned as errors instead.
type Kind string

const (
	KindOK            Kind = "ok"
	KindRefusal       Kind = "refusal"
	KindNotFound      Kind = "not_found"
	KindNeedsInput    Kind = "needs_input"
	KindNeedsIdentity Kind = "needs_identity"
)

// Template selects special phrasing for a result.
type Template int

const (
	TemplateNone Template = iota
	// TemplateNewTrackingNumber announces a replacement tracking number.
	TemplateNewTrackingNumber
)

// Result is the outcome of one operation.
type Result struct {
	Op   Operation
	Kind Kind
	// Text is the raw answer handed to the phraser.
	Text     string
	Template Template
	// Verbatim results are shown as-is, bypassing the phraser.
	Verbatim bool
	// NewTrackingNo is set with TemplateNewTrackingNumber.
	NewTrackingNo string
}

func ok(text string) Result       { return Result{Kind: KindOK, Text: text} }
func refuse(text string) Result   { return Result{Kind: KindRefusal, Text: text} }
func notFound(text string) Result { return Result{Kind: KindNotFound, Text: text} }
func ask(text string) Result      { return Result{Kind: KindNeedsInput, Text: text} }
