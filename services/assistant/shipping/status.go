// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shipping

import "fmt"

// Status is the lifecycle state of a shipment.
//
// The forward path is PREPARING → IN_TRANSIT → OUT_FOR_DELIVERY → DELIVERED.
// CANCELLED is reachable from every non-terminal state. DELIVERED and
// CANCELLED are terminal.
type Status string

const (
	StatusPreparing      Status = "PREPARING"
	StatusInTransit      Status = "IN_TRANSIT"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

// AllStatuses lists every status in forward-path order.
var AllStatuses = []Status{
	StatusPreparing,
	StatusInTransit,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
}

// transitions holds the permitted moves out of each non-terminal state.
// OUT_FOR_DELIVERY → IN_TRANSIT is a failed delivery attempt returned to
// the hub; only rescheduling uses it.
var transitions = map[Status][]Status{
	StatusPreparing:      {StatusInTransit, StatusCancelled},
	StatusInTransit:      {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered, StatusInTransit, StatusCancelled},
}

// ParseStatus validates a stored status value.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown shipment status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether the state machine permits s → to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// InFlight reports whether the shipment has left preparation but has not
// reached a terminal state.
func (s Status) InFlight() bool {
	return s == StatusInTransit || s == StatusOutForDelivery
}

// Label is the customer-facing name of the status.
func (s Status) Label() string {
	switch s {
	case StatusPreparing:
		return "hazırlanıyor"
	case StatusInTransit:
		return "transfer sürecinde"
	case StatusOutForDelivery:
		return "dağıtımda"
	case StatusDelivered:
		return "teslim edildi"
	case StatusCancelled:
		return "iptal edildi"
	default:
		return string(s)
	}
}

// Role is a customer's relationship to an order.
type Role string

const (
	RoleSender    Role = "sender"
	RoleRecipient Role = "recipient"
)

// Valid reports whether r is sender or recipient.
func (r Role) Valid() bool {
	return r == RoleSender || r == RoleRecipient
}
