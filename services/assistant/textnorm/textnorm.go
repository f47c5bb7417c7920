// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package textnorm folds free-form Turkish text into comparable ASCII keys.
//
// Both identity verification and branch lookup compare what a user typed
// (or what a speech recognizer produced) against stored records. Users
// drop diacritics, change case and add honorifics, so comparisons run on
// folded keys and use containment rather than equality.
package textnorm

import (
	"strings"
	"unicode"
)

// turkishFold maps each Turkish-specific letter to its ASCII base form.
// Upper case forms are listed too so the result never depends on how a
// caller or recognizer lowered the dotted capital I.
var turkishFold = strings.NewReplacer(
	"ı", "i", "ğ", "g", "ü", "u", "ş", "s", "ö", "o", "ç", "c",
	"İ", "i", "Ğ", "g", "Ü", "u", "Ş", "s", "Ö", "o", "Ç", "c",
	"\u0307", "",
)

// Fold returns the case-folded, diacritics-normalized form of s with
// runs of whitespace collapsed to one space.
//
// Examples:
//
//	Fold("Zeynep Yılmaz")   // "zeynep yilmaz"
//	Fold("  DOĞA  ECE ")    // "doga ece"
func Fold(s string) string {
	s = turkishFold.Replace(s)
	s = strings.ToLower(s)
	s = turkishFold.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Contains reports whether either folded string contains the other.
// Empty keys never match.
func Contains(a, b string) bool {
	fa, fb := Fold(a), Fold(b)
	if fa == "" || fb == "" {
		return false
	}
	return strings.Contains(fa, fb) || strings.Contains(fb, fa)
}

// Digits strips every non-digit rune from s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsBlank reports whether s has no printable content.
func IsBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
