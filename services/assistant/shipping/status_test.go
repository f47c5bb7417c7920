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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_ForwardPath(t *testing.T) {
	assert.True(t, StatusPreparing.CanTransition(StatusInTransit))
	assert.True(t, StatusInTransit.CanTransition(StatusOutForDelivery))
	assert.True(t, StatusOutForDelivery.CanTransition(StatusDelivered))

	assert.False(t, StatusPreparing.CanTransition(StatusDelivered), "cannot skip states")
	assert.False(t, StatusInTransit.CanTransition(StatusPreparing))
}

func TestStatus_CancelFromAnyNonTerminal(t *testing.T) {
	for _, s := range AllStatuses {
		if s.IsTerminal() {
			assert.False(t, s.CanTransition(StatusCancelled), "%s is terminal", s)
			continue
		}
		assert.True(t, s.CanTransition(StatusCancelled), "%s should allow cancel", s)
	}
}

func TestStatus_TerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range []Status{StatusDelivered, StatusCancelled} {
		for _, to := range AllStatuses {
			assert.False(t, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_FailedDeliveryReturnsToTransit(t *testing.T) {
	assert.True(t, StatusOutForDelivery.CanTransition(StatusInTransit))
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("OUT_FOR_DELIVERY")
	require.NoError(t, err)
	assert.Equal(t, StatusOutForDelivery, st)

	_, err = ParseStatus("LOST")
	assert.Error(t, err)
}

func TestStatus_InFlight(t *testing.T) {
	assert.False(t, StatusPreparing.InFlight())
	assert.True(t, StatusInTransit.InFlight())
	assert.True(t, StatusOutForDelivery.InFlight())
	assert.False(t, StatusDelivered.InFlight())
}

func TestParseNotificationChannel(t *testing.T) {
	tests := map[string]NotificationChannel{
		"sms":     NotifySMS,
		" SMS ":   NotifySMS,
		"e-posta": NotifyEmail,
		"eposta":  NotifyEmail,
		"Email":   NotifyEmail,

		"SMS ile":            NotifySMS,
		"sms olarak":         NotifySMS,
		"kısa mesaj":         NotifySMS,
		"e-posta ile gelsin": NotifyEmail,
		"E-posta olsun":      NotifyEmail,
		"E-POSTA adresime":   NotifyEmail,
		"mail atın":          NotifyEmail,
	}
	for in, want := range tests {
		got, ok := ParseNotificationChannel(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"carrier pigeon", "", "telefonla arayın"} {
		_, ok := ParseNotificationChannel(in)
		assert.False(t, ok, in)
	}
}
