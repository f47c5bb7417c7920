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

import (
	"strings"
	"time"

	"github.com/kargohat/assistant/services/assistant/textnorm"
)

// DateLayout is the storage and display format for calendar dates.
const DateLayout = "2006-01-02"

// Customer is a sender or recipient on file.
type Customer struct {
	ID               int64
	Name             string
	Phone            string
	Email            string
	NotificationPref NotificationChannel
}

// Shipment is an order joined with its tracking row and both parties.
type Shipment struct {
	OrderNumber         string
	TrackingNumber      string
	Contents            string
	Status              Status
	DeliveryAddress     string
	EstimatedDelivery   time.Time
	Priority            int
	SenderID            int64
	SenderName          string
	RecipientID         int64
	RecipientName       string
	DestinationBranchID int64
}

// RoleOf returns the customer's role on the shipment, or "" when the
// customer is neither party.
func (s *Shipment) RoleOf(customerID int64) Role {
	switch customerID {
	case s.SenderID:
		return RoleSender
	case s.RecipientID:
		return RoleRecipient
	default:
		return ""
	}
}

// Party is the result of matching an order number and phone to one of
// the order's two customers.
type Party struct {
	OrderNumber string
	CustomerID  int64
	Name        string
	Role        Role
}

// Movement is one hop in a shipment's audit trail.
type Movement struct {
	ID          int64
	OrderNumber string
	OccurredAt  time.Time
	Location    string
	Kind        string
	Description string
}

// Branch is a physical service point.
type Branch struct {
	ID       int64
	Name     string
	City     string
	District string
	Address  string
	Phone    string
	Hours    string
}

// Campaign is a promotion shown to any caller.
type Campaign struct {
	ID          int64
	Title       string
	Description string
}

// Invoice is a recorded charge for an order.
type Invoice struct {
	ID          int64
	CustomerID  int64
	OrderNumber string
	DistanceKm  float64
	Desi        float64
	Origin      string
	Destination string
	Charged     float64
	IssuedAt    time.Time
}

// Record statuses used by the filing tables.
const (
	RecordOpen            = "OPEN"
	RecordUrgent          = "URGENT"
	RecordPendingApproval = "PENDING_APPROVAL"
	RecordUnderReview     = "UNDER_REVIEW"
	RecordWaiting         = "WAITING"
	RecordAutoEscalated   = "AUTO_ESCALATED"
)

// Complaint kinds.
const (
	ComplaintGeneral      = "GENERAL"
	ComplaintDelay        = "DELAY"
	ComplaintCourier      = "COURIER_NO_SHOW"
	ComplaintWrongAddress = "WRONG_ADDRESS"
)

// Complaint is a filed customer complaint.
type Complaint struct {
	OrderNumber string
	CustomerID  int64
	Kind        string
	Subject     string
	Status      string
	CreatedAt   time.Time
}

// ReturnRequest is a recipient-initiated return.
type ReturnRequest struct {
	OrderNumber string
	CustomerID  int64
	Reason      string
	Status      string
	CreatedAt   time.Time
}

// DamageReport is a damage claim on a delivered shipment.
type DamageReport struct {
	OrderNumber string
	CustomerID  int64
	DamageType  string
	Status      string
	CreatedAt   time.Time
}

// Escalation is a request to be called back by a supervisor.
type Escalation struct {
	CustomerID  int64
	Name        string
	Phone       string
	OrderNumber string
	Reason      string
	Status      string
	CreatedAt   time.Time
}

// NotificationChannel is the closed set of notification preferences.
type NotificationChannel string

const (
	NotifySMS   NotificationChannel = "SMS"
	NotifyEmail NotificationChannel = "E-mail"
)

// ParseNotificationChannel normalizes free-form input such as "SMS ile"
// or "e-posta olsun" by containment. Unrecognized input returns false so
// the caller can ask the user to clarify.
func ParseNotificationChannel(s string) (NotificationChannel, bool) {
	f := textnorm.Fold(s)
	switch {
	case strings.Contains(f, "sms"):
		return NotifySMS, true
	case strings.Contains(strings.ReplaceAll(f, "-", ""), "eposta") || strings.Contains(f, "mail"):
		return NotifyEmail, true
	case strings.Contains(f, "mesaj") || f == "text":
		return NotifySMS, true
	default:
		return "", false
	}
}

// RecipientField selects which recipient attribute a sender updates.
type RecipientField string

const (
	RecipientName  RecipientField = "name"
	RecipientPhone RecipientField = "phone"
)
