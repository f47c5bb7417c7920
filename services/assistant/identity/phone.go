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
	"strings"

	"github.com/kargohat/assistant/services/assistant/textnorm"
)

const phoneDigits = 10

// NormalizePhone reduces a phone number to the 10-digit national form
// stored in the customers table.
//
// Non-digits are dropped. Above 10 digits a leading "90" country prefix is
// removed, or failing that a leading "0" trunk prefix. Anything still longer
// keeps its last 10 digits. The result is valid only at exactly 10 digits.
//
// Examples:
//
//	NormalizePhone("+90 505 111 22 33") // "5051112233", true
//	NormalizePhone("0505 111 22 33")    // "5051112233", true
//	NormalizePhone("505 111 22")        // "50511122", false
func NormalizePhone(raw string) (string, bool) {
	d := textnorm.Digits(raw)
	switch {
	case len(d) > phoneDigits && strings.HasPrefix(d, "90"):
		d = d[2:]
	case len(d) > phoneDigits && strings.HasPrefix(d, "0"):
		d = d[1:]
	}
	if len(d) > phoneDigits {
		d = d[len(d)-phoneDigits:]
	}
	return d, len(d) == phoneDigits
}

// MaskPhone keeps the last four digits for logging.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
