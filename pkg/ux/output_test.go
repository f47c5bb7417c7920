// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestConsole_PlainWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	if c.Styled() {
		t.Fatal("a buffer must not be styled")
	}

	c.Banner("Kargo Asistanı", "Çıkmak için /q yazın.")
	c.Prompt("Siz")
	c.Reply("Asistan", "Size nasıl yardımcı olabilirim?")
	c.Muted("oturum: web-1")
	c.Warning("yavaş yanıt")
	c.Error(errors.New("bağlantı kesildi"))

	got := buf.String()
	if strings.Contains(got, "\x1b[") {
		t.Errorf("plain output contains escape codes: %q", got)
	}
	for _, want := range []string{
		"Kargo Asistanı\nÇıkmak için /q yazın.\n\n",
		"Siz › ",
		"Asistan: Size nasıl yardımcı olabilirim?\n\n",
		"oturum: web-1\n",
		"! yavaş yanıt\n",
		"✗ bağlantı kesildi\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\ngot: %q", want, got)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("bytes.Buffer reported as terminal")
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	if IsTerminal(w) {
		t.Error("pipe reported as terminal")
	}
}
