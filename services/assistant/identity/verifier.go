// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package identity verifies that a caller is a party to an order.
//
// A caller proves identity with three claims: an order or tracking number,
// a name and a phone number. Verification fails closed: missing claims and
// malformed phones are rejected before the store is touched.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kargohat/assistant/services/assistant/shipping"
	"github.com/kargohat/assistant/services/assistant/textnorm"
)

var tracer = otel.Tracer("kargohat.assistant.identity")

// Reason classifies a failed verification. Reasons are internal and are
// never shown to the user verbatim.
type Reason string

const (
	ReasonMissingFields Reason = "missing-fields"
	ReasonPhoneInvalid  Reason = "phone-format-invalid"
	ReasonNoMatch       Reason = "no-match"
	ReasonNameMismatch  Reason = "name-mismatch"
)

// Field names a claim, used to ask for exactly what is missing.
type Field string

const (
	FieldName   Field = "name"
	FieldNumber Field = "number"
	FieldPhone  Field = "phone"
)

// Claims is what the caller says about themselves.
type Claims struct {
	Number string
	Name   string
	Phone  string
}

// Identity is a verified caller.
type Identity struct {
	TrackingNo  string
	DisplayName string
	Role        shipping.Role
	CustomerID  int64
}

// Outcome is the tagged result of a verification. Exactly one of Identity
// or Reason is set.
type Outcome struct {
	Identity *Identity
	Reason   Reason
	// Missing lists the absent claims when Reason is ReasonMissingFields,
	// in the order they should be asked for.
	Missing []Field
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Identity != nil
}

// Verifier checks claims against the shipping store.
type Verifier struct {
	store  shipping.Store
	logger *slog.Logger
}

// NewVerifier creates a Verifier. A nil logger uses slog.Default().
func NewVerifier(store shipping.Store, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{store: store, logger: logger}
}

// Verify checks the claims.
//
// # Description
//
// Order of checks:
//  1. All three claims present, otherwise ReasonMissingFields.
//  2. Phone normalizes to 10 digits, otherwise ReasonPhoneInvalid.
//  3. The store has an order with that number where the sender or the
//     recipient has that phone, otherwise ReasonNoMatch.
//  4. The claimed and stored names contain one another after folding,
//     otherwise ReasonNameMismatch.
//
// # Outputs
//
//   - Outcome: Success or typed failure.
//   - error: Non-nil only when the store itself fails. Failures of the
//     claims are reported through Outcome, never as errors.
func (v *Verifier) Verify(ctx context.Context, c Claims) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "Verifier.Verify")
	defer span.End()

	if missing := missingFields(c); len(missing) > 0 {
		span.SetAttributes(attribute.String("identity.result", string(ReasonMissingFields)))
		return Outcome{Reason: ReasonMissingFields, Missing: missing}, nil
	}

	phone, ok := NormalizePhone(c.Phone)
	if !ok {
		span.SetAttributes(attribute.String("identity.result", string(ReasonPhoneInvalid)))
		return Outcome{Reason: ReasonPhoneInvalid}, nil
	}

	party, err := v.store.FindParty(ctx, c.Number, phone)
	if errors.Is(err, shipping.ErrNotFound) {
		v.logger.Info("verification failed",
			slog.String("reason", string(ReasonNoMatch)),
			slog.String("phone", MaskPhone(phone)),
		)
		span.SetAttributes(attribute.String("identity.result", string(ReasonNoMatch)))
		return Outcome{Reason: ReasonNoMatch}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store lookup failed")
		return Outcome{}, fmt.Errorf("verify identity: %w", err)
	}

	if !textnorm.Contains(c.Name, party.Name) {
		v.logger.Info("verification failed",
			slog.String("reason", string(ReasonNameMismatch)),
			slog.String("order", party.OrderNumber),
		)
		span.SetAttributes(attribute.String("identity.result", string(ReasonNameMismatch)))
		return Outcome{Reason: ReasonNameMismatch}, nil
	}

	span.SetAttributes(
		attribute.String("identity.result", "success"),
		attribute.String("identity.role", string(party.Role)),
	)
	return Outcome{Identity: &Identity{
		TrackingNo:  party.OrderNumber,
		DisplayName: party.Name,
		Role:        party.Role,
		CustomerID:  party.CustomerID,
	}}, nil
}

func missingFields(c Claims) []Field {
	var missing []Field
	if textnorm.IsBlank(c.Name) || textnorm.Fold(c.Name) == "" {
		missing = append(missing, FieldName)
	}
	if textnorm.IsBlank(c.Number) {
		missing = append(missing, FieldNumber)
	}
	if textnorm.IsBlank(c.Phone) {
		missing = append(missing, FieldPhone)
	}
	return missing
}
