// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kargohat/assistant/services/assistant/identity"
	"github.com/kargohat/assistant/services/assistant/session"
	"github.com/kargohat/assistant/services/assistant/shipping"
	"github.com/kargohat/assistant/services/llm"
)

type recordingClient struct {
	reply string
	err   error
	got   []llm.Message
}

func (c *recordingClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return c.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, params)
}

func (c *recordingClient) Chat(_ context.Context, messages []llm.Message, _ llm.GenerationParams) (string, error) {
	c.got = messages
	return c.reply, c.err
}

var fixedNow = func() time.Time { return time.Date(2025, 12, 10, 9, 0, 0, 0, time.UTC) }

func TestParseDecision_Action(t *testing.T) {
	d, err := ParseDecision("```json\n{\"type\":\"action\",\"function\":\"verify_identity\",\"parameters\":{\"name\":\"Ahmet\",\"number\":123456,\"phone\":\"5051112233\",\"extra\":null}}\n```")
	require.NoError(t, err)

	want := Decision{
		Kind:     KindAction,
		Function: "verify_identity",
		Params:   map[string]string{"name": "Ahmet", "number": "123456", "phone": "5051112233"},
	}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Errorf("ParseDecision mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDecision_Chat(t *testing.T) {
	d, err := ParseDecision(`{"type": "chat", "reply": "Adınızı alabilir miyim?"}`)
	require.NoError(t, err)
	assert.Equal(t, KindChat, d.Kind)
	assert.Equal(t, "Adınızı alabilir miyim?", d.Reply)
}

func TestParseDecision_FloatAndBoolParams(t *testing.T) {
	d, err := ParseDecision(`{"type":"action","function":"quote_fee","parameters":{"desi":4.5,"express":true}}`)
	require.NoError(t, err)
	assert.Equal(t, "4.5", d.Param("desi"))
	assert.Equal(t, "true", d.Param("express"))
}

func TestParseDecision_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":               "",
		"prose around json":   `Tabii! İşte cevabım: {"type":"chat","reply":"Merhaba"}`,
		"invalid json":        `{"type":"chat","reply":`,
		"unknown type":        `{"type":"shout","reply":"x"}`,
		"action no function":  `{"type":"action","parameters":{}}`,
		"chat no reply":       `{"type":"chat"}`,
		"nested param":        `{"type":"action","function":"track_shipment","parameters":{"number":{"v":1}}}`,
		"fenced but not json": "```\nmerhaba\n```",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDecision(raw)
			assert.ErrorIs(t, err, ErrUnparseable)
		})
	}
}

func TestResolver_GuestPromptCarriesStatusAndDate(t *testing.T) {
	client := &recordingClient{reply: `{"type":"chat","reply":"Merhaba"}`}
	r := NewResolver(client, Config{Now: fixedNow})
	st := session.NewState("s1", fixedNow())

	d, err := r.Resolve(context.Background(), st, "merhaba")
	require.NoError(t, err)
	assert.Equal(t, KindChat, d.Kind)

	require.Len(t, client.got, 2)
	sys := client.got[0].Content
	assert.Equal(t, llm.RoleSystem, client.got[0].Role)
	assert.Contains(t, sys, "MİSAFİR")
	assert.Contains(t, sys, "10.12.2025")
	assert.Contains(t, sys, "verify_identity")
	assert.Equal(t, "merhaba", client.got[1].Content)
}

func TestResolver_VerifiedPromptNamesActiveNumber(t *testing.T) {
	client := &recordingClient{reply: `{"type":"action","function":"track_shipment","parameters":{"number":"123456"}}`}
	r := NewResolver(client, Config{Now: fixedNow})
	st := session.NewState("s1", fixedNow())
	st.MarkVerified(identity.Identity{TrackingNo: "123456", DisplayName: "Ahmet Yılmaz", Role: shipping.RoleSender, CustomerID: 1001})

	_, err := r.Resolve(context.Background(), st, "kargom nerede")
	require.NoError(t, err)
	sys := client.got[0].Content
	assert.Contains(t, sys, "KULLANICI DOĞRULANDI")
	assert.Contains(t, sys, "Ahmet Yılmaz (Gönderici)")
	assert.Contains(t, sys, "Aktif No: 123456")
}

func TestResolver_PendingIntentAnnotatesUtterance(t *testing.T) {
	client := &recordingClient{reply: `{"type":"chat","reply":"Numaranız?"}`}
	r := NewResolver(client, Config{Now: fixedNow})
	st := session.NewState("s1", fixedNow())
	st.Stash("kargom nerede", fixedNow())

	_, err := r.Resolve(context.Background(), st, "Ahmet Yılmaz")
	require.NoError(t, err)
	last := client.got[len(client.got)-1].Content
	assert.True(t, strings.HasPrefix(last, "Ahmet Yılmaz"))
	assert.Contains(t, last, `"kargom nerede"`)
}

func TestResolver_HistoryWindow(t *testing.T) {
	client := &recordingClient{reply: `{"type":"chat","reply":"ok"}`}
	r := NewResolver(client, Config{Now: fixedNow, Window: 2})
	st := session.NewState("s1", fixedNow())
	for _, u := range []string{"bir", "iki", "üç"} {
		st.AppendTurn(session.Turn{User: u, Assistant: "cevap " + u}, 0)
	}

	_, err := r.Resolve(context.Background(), st, "dört")
	require.NoError(t, err)
	// system + 2 turns x 2 messages + utterance
	require.Len(t, client.got, 6)
	assert.Equal(t, "iki", client.got[1].Content)
	assert.Equal(t, "cevap üç", client.got[4].Content)
}

func TestResolver_Errors(t *testing.T) {
	st := session.NewState("s1", fixedNow())

	boom := errors.New("connection refused")
	_, err := NewResolver(&recordingClient{err: boom}, Config{}).Resolve(context.Background(), st, "x")
	assert.ErrorIs(t, err, boom)

	_, err = NewResolver(&recordingClient{reply: "I think you want tracking"}, Config{}).Resolve(context.Background(), st, "x")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestInstructionFile_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instructions.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	f, err := NewInstructionFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", f.Instructions())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// The watcher registers asynchronously; keep rewriting until it sees one.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("v2"), 0o600)
		return f.Instructions() == "v2"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestInstructionFile_EmptyIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

	_, err := NewInstructionFile(path, nil)
	assert.Error(t, err)
}

func TestStaticInstructions_FallsBackToDefault(t *testing.T) {
	assert.Equal(t, DefaultInstructions(), StaticInstructions("").Instructions())
	assert.Equal(t, "custom", StaticInstructions("custom").Instructions())
}
