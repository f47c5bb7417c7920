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
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMessageBlocked is returned when a filter rejects a message outright.
var ErrMessageBlocked = errors.New("message blocked by filter")

// FilterResult is the outcome of filtering one message.
type FilterResult struct {
	// Original is the input message before filtering.
	Original string

	// Filtered is the message after filtering transformations.
	// If WasModified is false, this equals Original.
	Filtered string

	WasModified bool

	// WasBlocked indicates the message was rejected. Filtered must not be
	// used when set.
	WasBlocked  bool
	BlockReason string

	// Detections lists what the filter found in the message.
	Detections []Detection
}

// Detection is one item a filter found.
type Detection struct {
	// Type categorizes what was detected, e.g. "phone" or "email".
	Type string

	// Location describes where in the message the item was found.
	Location string

	// Action is what was done: "redacted", "masked", "blocked".
	Action string
}

// MessageFilter transforms text crossing the assistant boundary.
//
// The dispatch loop filters the inbound utterance before it is logged and
// the outbound reply before it is returned. Session history keeps the raw
// utterance because the classifier assembles identity fields from it.
type MessageFilter interface {
	// FilterInput processes a user message. When WasBlocked is set the
	// turn is answered with a refusal and the classifier is not called.
	FilterInput(ctx context.Context, message string) (*FilterResult, error)

	// FilterOutput processes a reply before it is returned to the user.
	FilterOutput(ctx context.Context, message string) (*FilterResult, error)
}

// NopMessageFilter passes everything through unchanged.
type NopMessageFilter struct{}

// FilterInput returns message unchanged.
func (f *NopMessageFilter) FilterInput(ctx context.Context, message string) (*FilterResult, error) {
	return &FilterResult{Original: message, Filtered: message}, nil
}

// FilterOutput returns message unchanged.
func (f *NopMessageFilter) FilterOutput(ctx context.Context, message string) (*FilterResult, error) {
	return &FilterResult{Original: message, Filtered: message}, nil
}

// phonePattern matches Turkish mobile and landline numbers written with or
// without a 0 / +90 prefix and with optional separators.
var phonePattern = regexp.MustCompile(`(?:\+?90[\s-]?)?0?[2-5]\d{2}[\s-]?\d{3}[\s-]?\d{2}[\s-]?\d{2}`)

// PhoneRedactor masks phone numbers, keeping the last four digits.
type PhoneRedactor struct{}

// FilterInput implements MessageFilter.
func (f *PhoneRedactor) FilterInput(ctx context.Context, message string) (*FilterResult, error) {
	return redactPhones(message), nil
}

// FilterOutput implements MessageFilter.
func (f *PhoneRedactor) FilterOutput(ctx context.Context, message string) (*FilterResult, error) {
	return redactPhones(message), nil
}

func redactPhones(message string) *FilterResult {
	res := &FilterResult{Original: message}
	res.Filtered = phonePattern.ReplaceAllStringFunc(message, func(m string) string {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, m)
		res.Detections = append(res.Detections, Detection{
			Type:     "phone",
			Location: fmt.Sprintf("digits ending %s", digits[len(digits)-4:]),
			Action:   "masked",
		})
		return "*******" + digits[len(digits)-4:]
	})
	res.WasModified = res.Filtered != message
	return res
}

var (
	_ MessageFilter = (*NopMessageFilter)(nil)
	_ MessageFilter = (*PhoneRedactor)(nil)
)
