// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package shipping holds the logistics domain model and its relational store.
//
// The dispatch loop never issues SQL. It consumes the store only through the
// named operations of the Store interface, which makes the store replaceable
// in tests and keeps the shipment state machine (Status) and pricing rules
// (Tariff) next to the data they govern.
package shipping

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store is the persistent store consumed by identity verification and the
// business operations.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// FindParty matches an order or tracking number plus a normalized phone
	// against the order's sender and recipient.
	FindParty(ctx context.Context, number, phone string) (*Party, error)

	// FindCustomerByPhone returns the customer with a normalized phone.
	FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error)

	// FindShipment resolves a tracking number or an order number.
	FindShipment(ctx context.Context, number string) (*Shipment, error)

	UpdateStatus(ctx context.Context, orderNumber string, to Status) error
	UpdateAddress(ctx context.Context, orderNumber, address string) error
	UpdatePriority(ctx context.Context, orderNumber string, priority int) error
	UpdateEstimatedDelivery(ctx context.Context, orderNumber string, date time.Time) error
	UpdateRecipient(ctx context.Context, orderNumber string, field RecipientField, value string) error
	UpdateNotificationPreference(ctx context.Context, customerID int64, channel NotificationChannel) error

	AppendMovement(ctx context.Context, m Movement) error
	LatestMovement(ctx context.Context, orderNumber string) (*Movement, error)

	InsertComplaint(ctx context.Context, c Complaint) (int64, error)
	InsertReturn(ctx context.Context, r ReturnRequest) (int64, error)
	InsertDamageReport(ctx context.Context, d DamageReport) (int64, error)
	InsertEscalation(ctx context.Context, e Escalation) (int64, error)
	IssueTrackingNumber(ctx context.Context, orderNumber, trackingNumber string) error

	ActiveTariff(ctx context.Context) (Tariff, error)
	FindInvoice(ctx context.Context, invoiceID int64, orderNumber string) (*Invoice, error)
	FindInvoicesByOrder(ctx context.Context, orderNumber string) ([]Invoice, error)
	ActiveCampaigns(ctx context.Context) ([]Campaign, error)
	FindBranches(ctx context.Context, locality string) ([]Branch, error)
	AllBranches(ctx context.Context) ([]Branch, error)
	FindBranch(ctx context.Context, id int64) (*Branch, error)

	// InTx runs fn against a store bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Store) error) error
}
