// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kargohat/assistant/services/assistant/datatypes"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// echoHandler replies with the message. Messages starting with "slow"
// take a while, messages equal to "reject" fail.
type echoHandler struct {
	mu   sync.Mutex
	seen map[string][]string
}

func (h *echoHandler) HandleTurn(_ context.Context, req datatypes.TurnRequest) (datatypes.TurnResponse, error) {
	if strings.HasPrefix(req.Message, "slow") {
		time.Sleep(50 * time.Millisecond)
	}
	if req.Message == "reject" {
		return datatypes.TurnResponse{}, errors.New("invalid turn request")
	}
	h.mu.Lock()
	if h.seen == nil {
		h.seen = make(map[string][]string)
	}
	h.seen[req.SessionID] = append(h.seen[req.SessionID], req.Message)
	h.mu.Unlock()
	return datatypes.TurnResponse{SessionID: req.SessionID, Reply: "yanıt: " + req.Message}, nil
}

type line struct {
	SessionID string  `json:"session_id"`
	Reply     string  `json:"reply"`
	AudioRef  *string `json:"audio_ref"`
	Error     string  `json:"error"`
}

func serve(t *testing.T, h Handler, input string) []line {
	t.Helper()
	var out bytes.Buffer
	err := NewServer(h, Config{}).Serve(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	var lines []line
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var l line
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l), sc.Text())
		lines = append(lines, l)
	}
	return lines
}

func TestServe_AnswersEveryLine(t *testing.T) {
	h := &echoHandler{}
	lines := serve(t, h, `{"session_id":"a","message":"Merhaba"}
{"session_id":"b","message":"Kargom nerede?"}

{"session_id":"a","message":"Teşekkürler"}
`)

	require.Len(t, lines, 3)
	replies := map[string]bool{}
	for _, l := range lines {
		require.NotNil(t, l.AudioRef)
		assert.Empty(t, *l.AudioRef)
		replies[l.SessionID+"|"+l.Reply] = true
	}
	assert.True(t, replies["a|yanıt: Merhaba"])
	assert.True(t, replies["b|yanıt: Kargom nerede?"])
	assert.True(t, replies["a|yanıt: Teşekkürler"])
}

func TestServe_KeepsSessionOrder(t *testing.T) {
	h := &echoHandler{}
	serve(t, h, `{"session_id":"a","message":"slow 1"}
{"session_id":"b","message":"slow x"}
{"session_id":"a","message":"2"}
{"session_id":"a","message":"3"}
`)

	assert.Equal(t, []string{"slow 1", "2", "3"}, h.seen["a"])
	assert.Equal(t, []string{"slow x"}, h.seen["b"])
}

func TestServe_MissingSessionIDIsGenerated(t *testing.T) {
	lines := serve(t, &echoHandler{}, `{"message":"Merhaba"}`+"\n")

	require.Len(t, lines, 1)
	_, err := uuid.Parse(lines[0].SessionID)
	assert.NoError(t, err)
	assert.Equal(t, "yanıt: Merhaba", lines[0].Reply)
}

func TestServe_BadLines(t *testing.T) {
	lines := serve(t, &echoHandler{}, `not json
{"session_id":"a","message":"reject"}
{"session_id":"a","message":"Merhaba"}
`)

	require.Len(t, lines, 3)
	assert.Contains(t, lines[0].Error, "malformed request")
	assert.Empty(t, lines[0].SessionID)

	var rejected, answered bool
	for _, l := range lines[1:] {
		if l.Error != "" {
			rejected = true
			assert.Equal(t, "a", l.SessionID)
		}
		if l.Reply == "yanıt: Merhaba" {
			answered = true
		}
	}
	assert.True(t, rejected, "a rejected turn gets an error line")
	assert.True(t, answered, "later lines are still served")
}

func TestServe_LineTooLong(t *testing.T) {
	input := `{"session_id":"a","message":"` + strings.Repeat("x", maxLineBytes) + `"}` + "\n"
	err := NewServer(&echoHandler{}, Config{}).Serve(context.Background(), strings.NewReader(input), io.Discard)
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}

func TestServe_StopsWhenInputClosedOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	var out bytes.Buffer
	var mu sync.Mutex
	done := make(chan error, 1)
	go func() {
		done <- NewServer(&echoHandler{}, Config{}).Serve(ctx, pr, &syncWriter{w: &out, mu: &mu})
	}()

	_, err := io.WriteString(pw, `{"session_id":"a","message":"Merhaba"}`+"\n")
	require.NoError(t, err)

	cancel()
	pr.CloseWithError(io.ErrClosedPipe)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

type syncWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
