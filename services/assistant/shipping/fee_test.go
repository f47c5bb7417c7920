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

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTariffQuote_LongHaulUnderBaseWeight(t *testing.T) {
	q := DefaultTariff().Quote(450, 4)

	want := Quote{DistanceKm: 450, Desi: 4, LongHaul: true, RoadFee: 22500, PackageFee: 100, Total: 22600}
	if diff := cmp.Diff(want, q); diff != "" {
		t.Errorf("Quote mismatch (-want +got):\n%s", diff)
	}
}

func TestTariffQuote_ShortHaulWithExtraDesi(t *testing.T) {
	q := DefaultTariff().Quote(150, 8)

	assert.False(t, q.LongHaul)
	assert.Equal(t, 150*35.0, q.RoadFee)
	assert.Equal(t, 100+3*20.0, q.PackageFee)
	assert.Equal(t, 5410.0, q.Total)
}

func TestTariffQuote_ThresholdIsShortHaul(t *testing.T) {
	tariff := DefaultTariff()

	atThreshold := tariff.Quote(200, 5)
	justAbove := tariff.Quote(200.1, 5)

	assert.False(t, atThreshold.LongHaul)
	assert.Equal(t, 200*35.0+100, atThreshold.Total)
	assert.True(t, justAbove.LongHaul)
}

func TestTariffQuote_MatchesSeededInvoices(t *testing.T) {
	tariff := DefaultTariff()
	assert.Equal(t, 5350.0, tariff.Quote(150, 4).Total)
	assert.Equal(t, 30250.0, tariff.Quote(600, 10).Total)
}

func TestTariffQuote_Deterministic(t *testing.T) {
	tariff := DefaultTariff()
	assert.Equal(t, tariff.Quote(321, 7), tariff.Quote(321, 7))
}

func TestParseDesi(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "4", want: 4},
		{in: "10 desi", want: 10},
		{in: "4,5 Desi", want: 4.5},
		{in: " 2.25 ", want: 2.25},
		{in: "", wantErr: true},
		{in: "desi", wantErr: true},
		{in: "heavy", wantErr: true},
		{in: "-3", wantErr: true},
		{in: "0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDesi(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidDesi)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name     string
		charged  float64
		expected float64
		want     Verdict
	}{
		{"exact", 5350, 5350, VerdictCorrect},
		{"within tolerance above", 5350.49, 5350, VerdictCorrect},
		{"within tolerance below", 5349.6, 5350, VerdictCorrect},
		{"at tolerance above", 5350.5, 5350, VerdictOvercharged},
		{"overcharged", 6000, 5350, VerdictOvercharged},
		{"undercharged", 5000, 5350, VerdictUndercharged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, diff := Assess(tt.charged, tt.expected)
			assert.Equal(t, tt.want, got)
			assert.InDelta(t, tt.charged-tt.expected, diff, 1e-9)
		})
	}
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "22600.00 TL", FormatMoney(22600))
	assert.Equal(t, "0.50 TL", FormatMoney(0.5))
}
