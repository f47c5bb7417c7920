// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kargohat/assistant/services/assistant/shipping"
)

// countingStore wraps a real store and counts party lookups.
type countingStore struct {
	shipping.Store
	lookups int
	err     error
}

func (c *countingStore) FindParty(ctx context.Context, number, phone string) (*shipping.Party, error) {
	c.lookups++
	if c.err != nil {
		return nil, c.err
	}
	return c.Store.FindParty(ctx, number, phone)
}

func newVerifier(t *testing.T) (*Verifier, *countingStore) {
	t.Helper()
	s, err := shipping.Open(context.Background(), shipping.Config{InMemory: true, Seed: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	cs := &countingStore{Store: s}
	return NewVerifier(cs, nil), cs
}

func TestNormalizePhone_PrefixVariants(t *testing.T) {
	for _, in := range []string{
		"905051112233",
		"05051112233",
		"5051112233",
		"+90 (505) 111-22-33",
		"0 505 111 22 33",
		"00905051112233",
	} {
		got, ok := NormalizePhone(in)
		assert.True(t, ok, in)
		assert.Equal(t, "5051112233", got, in)
	}
}

func TestNormalizePhone_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "505111223", "12345"} {
		_, ok := NormalizePhone(in)
		assert.False(t, ok, in)
	}
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "******2233", MaskPhone("5551112233"))
	assert.Equal(t, "****", MaskPhone("12"))
}

func TestVerify_Success(t *testing.T) {
	v, _ := newVerifier(t)

	out, err := v.Verify(context.Background(), Claims{Number: "123456", Name: "zeynep", Phone: "0555 111 22 33"})
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, &Identity{TrackingNo: "123456", DisplayName: "Zeynep Yılmaz", Role: shipping.RoleSender, CustomerID: 1001}, out.Identity)
}

func TestVerify_NameMatchingIsBidirectional(t *testing.T) {
	v, _ := newVerifier(t)
	ctx := context.Background()

	for _, name := range []string{"ZEYNEP YILMAZ", "Zeynep Yılmaz Hanım", "zeynep yilmaz", "Yılmaz"} {
		out, err := v.Verify(ctx, Claims{Number: "123456", Name: name, Phone: "5551112233"})
		require.NoError(t, err)
		assert.True(t, out.OK(), name)
	}
}

func TestVerify_RecipientRole(t *testing.T) {
	v, _ := newVerifier(t)

	out, err := v.Verify(context.Background(), Claims{Number: "999999", Name: "Zeynep", Phone: "905551112233"})
	require.NoError(t, err)
	require.True(t, out.OK())
	assert.Equal(t, shipping.RoleRecipient, out.Identity.Role)
}

func TestVerify_MissingFieldsNeverTouchesStore(t *testing.T) {
	v, cs := newVerifier(t)
	ctx := context.Background()

	tests := []struct {
		claims  Claims
		missing []Field
	}{
		{Claims{Number: "123456", Phone: "5551112233"}, []Field{FieldName}},
		{Claims{Name: "Zeynep", Phone: "5551112233"}, []Field{FieldNumber}},
		{Claims{Name: "Zeynep", Number: "123456"}, []Field{FieldPhone}},
		{Claims{Name: "   "}, []Field{FieldName, FieldNumber, FieldPhone}},
	}
	for _, tt := range tests {
		out, err := v.Verify(ctx, tt.claims)
		require.NoError(t, err)
		assert.False(t, out.OK())
		assert.Equal(t, ReasonMissingFields, out.Reason)
		assert.Equal(t, tt.missing, out.Missing)
	}
	assert.Zero(t, cs.lookups)
}

func TestVerify_InvalidPhoneNeverTouchesStore(t *testing.T) {
	v, cs := newVerifier(t)

	out, err := v.Verify(context.Background(), Claims{Number: "123456", Name: "Zeynep", Phone: "555 11"})
	require.NoError(t, err)
	assert.Equal(t, ReasonPhoneInvalid, out.Reason)
	assert.Zero(t, cs.lookups)
}

func TestVerify_NoMatch(t *testing.T) {
	v, _ := newVerifier(t)

	out, err := v.Verify(context.Background(), Claims{Number: "123456", Name: "Elif Kaya", Phone: "5559998877"})
	require.NoError(t, err)
	assert.Equal(t, ReasonNoMatch, out.Reason)
	assert.Nil(t, out.Identity)
}

func TestVerify_NameMismatch(t *testing.T) {
	v, _ := newVerifier(t)

	out, err := v.Verify(context.Background(), Claims{Number: "123456", Name: "Can Demir", Phone: "5551112233"})
	require.NoError(t, err)
	assert.Equal(t, ReasonNameMismatch, out.Reason)
}

func TestVerify_StoreFailureIsAnError(t *testing.T) {
	v, cs := newVerifier(t)
	cs.err = errors.New("disk on fire")

	_, err := v.Verify(context.Background(), Claims{Number: "123456", Name: "Zeynep", Phone: "5551112233"})
	assert.Error(t, err)
}
