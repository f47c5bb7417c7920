// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the assistant's external request and response
// types.
package datatypes

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	// MaxMessageBytes bounds one user message.
	MaxMessageBytes = 4 * 1024

	// MaxSessionIDLength bounds a client-supplied session id.
	MaxSessionIDLength = 128
)

var turnValidate *validator.Validate

func init() {
	turnValidate = validator.New()
	_ = turnValidate.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// TurnRequest is one user message.
//
// # Fields
//
//   - SessionID: Optional. Opaque session key chosen by the client.
//     EnsureDefaults generates a UUID when it is empty.
//   - Message: Required. The user's utterance, at most MaxMessageBytes.
//
// # Examples
//
//	{"session_id":"web-42","message":"Kargom nerede?"}
type TurnRequest struct {
	SessionID string `json:"session_id" validate:"required,max=128,printascii"`
	Message   string `json:"message" validate:"required,nonblank,max=4096"`
}

// Validate checks the request fields. Call EnsureDefaults first when the
// session id may be omitted.
func (r *TurnRequest) Validate() error {
	return turnValidate.Struct(r)
}

// EnsureDefaults assigns a new session id when none was supplied.
func (r *TurnRequest) EnsureDefaults() {
	r.SessionID = strings.TrimSpace(r.SessionID)
	if r.SessionID == "" {
		r.SessionID = uuid.NewString()
	}
}

// TurnResponse is the assistant's reply to one TurnRequest.
//
// AudioRef is reserved for a synthesized speech asset and is always empty.
type TurnResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	AudioRef  string `json:"audio_ref"`
}

// ErrorResponse is written instead of a TurnResponse when a request cannot
// be decoded or validated.
type ErrorResponse struct {
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error"`
}
