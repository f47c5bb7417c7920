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
	"errors"
	"math"
	"strconv"
	"strings"
)

// DisputeTolerance is the absolute currency difference below which a
// charged amount is considered correct.
const DisputeTolerance = 0.5

// ErrInvalidDesi is returned when a desi value cannot be parsed.
var ErrInvalidDesi = errors.New("invalid desi value")

// Tariff holds the pricing parameters for a quote.
type Tariff struct {
	ShortKmRate    float64
	LongKmRate     float64
	BaseFee        float64
	BaseLimitDesi  float64
	ShortExtraRate float64
	LongExtraRate  float64
	ThresholdKm    float64
}

// DefaultTariff returns the tariff seeded into new databases.
func DefaultTariff() Tariff {
	return Tariff{
		ShortKmRate:    35,
		LongKmRate:     50,
		BaseFee:        100,
		BaseLimitDesi:  5,
		ShortExtraRate: 20,
		LongExtraRate:  30,
		ThresholdKm:    200,
	}
}

// Quote is a priced shipment.
type Quote struct {
	DistanceKm float64
	Desi       float64
	LongHaul   bool
	RoadFee    float64
	PackageFee float64
	Total      float64
}

// Quote prices a shipment. Distances strictly above ThresholdKm use the
// long-haul rates.
//
// Example:
//
//	DefaultTariff().Quote(450, 4).Total // 450*50 + 100 = 22600
func (t Tariff) Quote(distanceKm, desi float64) Quote {
	q := Quote{DistanceKm: distanceKm, Desi: desi, LongHaul: distanceKm > t.ThresholdKm}

	kmRate, extraRate := t.ShortKmRate, t.ShortExtraRate
	if q.LongHaul {
		kmRate, extraRate = t.LongKmRate, t.LongExtraRate
	}

	q.RoadFee = distanceKm * kmRate
	q.PackageFee = t.BaseFee
	if desi > t.BaseLimitDesi {
		q.PackageFee += (desi - t.BaseLimitDesi) * extraRate
	}
	q.Total = q.RoadFee + q.PackageFee
	return q
}

// ParseDesi reads a desi value such as "4", "4.5", "4,5" or "10 desi".
func ParseDesi(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSpace(strings.ReplaceAll(s, "desi", ""))
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return 0, ErrInvalidDesi
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, ErrInvalidDesi
	}
	return v, nil
}

// Verdict is the outcome of a fee dispute.
type Verdict int

const (
	VerdictCorrect Verdict = iota
	VerdictOvercharged
	VerdictUndercharged
)

// Assess compares a charged amount with the expected amount. diff is
// charged minus expected.
func Assess(charged, expected float64) (v Verdict, diff float64) {
	diff = charged - expected
	switch {
	case math.Abs(diff) < DisputeTolerance:
		return VerdictCorrect, diff
	case diff > 0:
		return VerdictOvercharged, diff
	default:
		return VerdictUndercharged, diff
	}
}

// FormatMoney renders an amount with two decimals and the currency code.
func FormatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + " TL"
}
