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
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(context.Background(), Config{InMemory: true, Seed: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_RequiresPathForPersistentDB(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
}

func TestOpen_FileDatabaseReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "shipping.db")
	ctx := context.Background()

	s, err := Open(ctx, Config{Path: path, Seed: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Config{Path: path, Seed: true})
	require.NoError(t, err)
	defer s.Close()

	campaigns, err := s.ActiveCampaigns(ctx)
	require.NoError(t, err)
	assert.Len(t, campaigns, 2, "seed must be idempotent")
}

func TestFindParty_SenderAndRecipient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sender, err := s.FindParty(ctx, "123456", "5551112233")
	require.NoError(t, err)
	assert.Equal(t, &Party{OrderNumber: "123456", CustomerID: 1001, Name: "Zeynep Yılmaz", Role: RoleSender}, sender)

	recipient, err := s.FindParty(ctx, "123456", "5554445566")
	require.NoError(t, err)
	assert.Equal(t, RoleRecipient, recipient.Role)
	assert.Equal(t, int64(1002), recipient.CustomerID)
}

func TestFindParty_NoMatch(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FindParty(context.Background(), "123456", "5559998877")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindParty(context.Background(), "000000", "5551112233")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindParty_ByIssuedTrackingNumber(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.IssueTrackingNumber(ctx, "123456", "777111"))

	p, err := s.FindParty(ctx, "777111", "5551112233")
	require.NoError(t, err)
	assert.Equal(t, "123456", p.OrderNumber, "canonical order number is returned")
}

func TestFindShipment(t *testing.T) {
	s := newTestStore(t)

	sh, err := s.FindShipment(context.Background(), " 123456 ")
	require.NoError(t, err)
	assert.Equal(t, StatusOutForDelivery, sh.Status)
	assert.Equal(t, "Zeynep Yılmaz", sh.SenderName)
	assert.Equal(t, "Can Demir", sh.RecipientName)
	assert.Equal(t, "2025-12-10", sh.EstimatedDelivery.Format(DateLayout))
	assert.Equal(t, int64(4), sh.DestinationBranchID)
	assert.Equal(t, RoleSender, sh.RoleOf(1001))
	assert.Equal(t, RoleRecipient, sh.RoleOf(1002))
	assert.Equal(t, Role(""), sh.RoleOf(1003))

	_, err = s.FindShipment(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_EnforcesStateMachine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateStatus(ctx, "456789", StatusCancelled))
	sh, err := s.FindShipment(ctx, "456789")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, sh.Status)

	err = s.UpdateStatus(ctx, "999999", StatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = s.UpdateStatus(ctx, "missing", StatusCancelled)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx Store) error {
		require.NoError(t, tx.UpdateAddress(ctx, "123456", "Somewhere else"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	sh, err := s.FindShipment(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, "Moda Cad. No:10 Kadıköy/İstanbul", sh.DeliveryAddress)
}

func TestInTx_Commits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx Store) error {
		if err := tx.UpdatePriority(ctx, "123456", 3); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, "123456", StatusInTransit)
	})
	require.NoError(t, err)

	sh, err := s.FindShipment(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, 3, sh.Priority)
	assert.Equal(t, StatusInTransit, sh.Status)
}

func TestMovements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, err := s.LatestMovement(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, "Alsancak Şube", m.Location)

	at := time.Date(2025, 12, 11, 10, 30, 0, 0, time.UTC)
	require.NoError(t, s.AppendMovement(ctx, Movement{
		OrderNumber: "123456", OccurredAt: at, Location: "Çağrı Merkezi", Kind: "Adres Düzeltme", Description: "güncellendi",
	}))
	m, err = s.LatestMovement(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, "Adres Düzeltme", m.Kind)
	assert.True(t, at.Equal(m.OccurredAt))

	_, err = s.LatestMovement(ctx, "456789")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertFilings_ReturnIncreasingIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC)

	c1, err := s.InsertComplaint(ctx, Complaint{OrderNumber: "123456", CustomerID: 1001, Kind: ComplaintGeneral, Subject: "late", Status: RecordOpen, CreatedAt: now})
	require.NoError(t, err)
	c2, err := s.InsertComplaint(ctx, Complaint{OrderNumber: "123456", Kind: ComplaintGeneral, Subject: "rude", Status: RecordOpen, CreatedAt: now})
	require.NoError(t, err)
	assert.Greater(t, c2, c1)

	r, err := s.InsertReturn(ctx, ReturnRequest{OrderNumber: "999999", CustomerID: 1001, Reason: "unspecified", Status: RecordPendingApproval, CreatedAt: now})
	require.NoError(t, err)
	assert.Positive(t, r)

	d, err := s.InsertDamageReport(ctx, DamageReport{OrderNumber: "999999", CustomerID: 1001, DamageType: "crushed", Status: RecordUnderReview, CreatedAt: now})
	require.NoError(t, err)
	assert.Positive(t, d)

	e, err := s.InsertEscalation(ctx, Escalation{CustomerID: 1001, Name: "Zeynep", Phone: "5551112233", Status: RecordWaiting, CreatedAt: now})
	require.NoError(t, err)
	assert.Positive(t, e)
}

func TestReferenceData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tariff, err := s.ActiveTariff(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultTariff(), tariff)

	inv, err := s.FindInvoice(ctx, 1, "123456")
	require.NoError(t, err)
	assert.Equal(t, 5350.0, inv.Charged)
	assert.Equal(t, 150.0, inv.DistanceKm)

	_, err = s.FindInvoice(ctx, 1, "999999")
	assert.ErrorIs(t, err, ErrNotFound)

	invoices, err := s.FindInvoicesByOrder(ctx, "999999")
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, int64(1003), invoices[0].CustomerID)
}

func TestFindBranches_FoldsTurkishText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	branches, err := s.FindBranches(ctx, "istanbul")
	require.NoError(t, err)
	assert.Len(t, branches, 2)

	branches, err = s.FindBranches(ctx, "CANKAYA")
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "Çankaya Şube", branches[0].Name)

	branches, err = s.FindBranches(ctx, "Trabzon")
	require.NoError(t, err)
	assert.Empty(t, branches)
}

func TestCustomerUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateNotificationPreference(ctx, 1001, NotifyEmail))
	c, err := s.FindCustomerByPhone(ctx, "5551112233")
	require.NoError(t, err)
	assert.Equal(t, NotifyEmail, c.NotificationPref)

	require.NoError(t, s.UpdateRecipient(ctx, "123456", RecipientName, "Can Demirci"))
	sh, err := s.FindShipment(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, "Can Demirci", sh.RecipientName)

	require.NoError(t, s.UpdateRecipient(ctx, "123456", RecipientPhone, "5320001122"))
	sh, err = s.FindShipment(ctx, "123456")
	require.NoError(t, err)
	assert.NotEqual(t, int64(1002), sh.RecipientID, "order moves to a new recipient record")
	assert.Equal(t, "Can Demirci", sh.RecipientName)
	old, err := s.FindCustomerByPhone(ctx, "5554445566")
	require.NoError(t, err)
	assert.Equal(t, int64(1002), old.ID, "previous recipient is untouched")

	// Zeynep is also the sender of 123456, so renaming her on 999999 would leak.
	assert.ErrorIs(t, s.UpdateRecipient(ctx, "999999", RecipientName, "Zeynep Kaya"), ErrSharedRecipient)

	assert.Error(t, s.UpdateRecipient(ctx, "123456", RecipientField("email"), "x"))
	assert.ErrorIs(t, s.UpdateNotificationPreference(ctx, 42, NotifySMS), ErrNotFound)
}
