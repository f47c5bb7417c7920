// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyClient fails a fixed number of times before answering.
type flakyClient struct {
	failures int32
	calls    atomic.Int32
	delay    time.Duration
}

func (f *flakyClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return f.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, params)
}

func (f *flakyClient) Chat(ctx context.Context, messages []Message, _ GenerationParams) (string, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if n <= f.failures {
		return "", errors.New("transient")
	}
	return "ok:" + messages[len(messages)-1].Content, nil
}

func TestSplitSystem(t *testing.T) {
	sys, rest := splitSystem([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "hi"},
		{Role: "SYSTEM", Content: "b"},
	})
	assert.Equal(t, "a\n\nb", sys)
	assert.Equal(t, []Message{{Role: RoleUser, Content: "hi"}}, rest)
}

func TestResolveSecret(t *testing.T) {
	assert.Equal(t, "explicit", ResolveSecret("explicit", "KARGOHAT_TEST_KEY", ""))

	t.Setenv("KARGOHAT_TEST_KEY", "from-env")
	assert.Equal(t, "from-env", ResolveSecret("", "KARGOHAT_TEST_KEY", ""))

	t.Setenv("KARGOHAT_TEST_KEY", "")
	assert.Equal(t, "", ResolveSecret("", "KARGOHAT_TEST_KEY", ""))
}

func TestResilient_RetriesTransientFailures(t *testing.T) {
	inner := &flakyClient{failures: 1}
	r := NewResilient(inner, ResilienceConfig{Timeout: time.Second, Attempts: 3, BaseDelay: time.Millisecond})

	got, err := r.Generate(context.Background(), "ping", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "ok:ping", got)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestResilient_GivesUpAfterAttempts(t *testing.T) {
	inner := &flakyClient{failures: 10}
	r := NewResilient(inner, ResilienceConfig{Timeout: time.Second, Attempts: 2, BaseDelay: time.Millisecond})

	_, err := r.Generate(context.Background(), "ping", GenerationParams{})
	assert.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestResilient_TimeoutIsAFailure(t *testing.T) {
	inner := &flakyClient{delay: 500 * time.Millisecond}
	r := NewResilient(inner, ResilienceConfig{Timeout: 20 * time.Millisecond, Attempts: 1})

	start := time.Now()
	_, err := r.Generate(context.Background(), "ping", GenerationParams{})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestOllamaClient_Chat(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Message: Message{Role: RoleAssistant, Content: "merhaba"}, Done: true})
	}))
	defer srv.Close()

	c, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL + "/", Model: "test-model"})
	require.NoError(t, err)

	reply, err := c.Chat(context.Background(), []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "hi"}},
		GenerationParams{Temperature: Float32(0), MaxTokens: Int(64)})
	require.NoError(t, err)
	assert.Equal(t, "merhaba", reply)
	assert.Equal(t, "test-model", got.Model)
	assert.Len(t, got.Messages, 2)
	assert.False(t, got.Stream)
	assert.EqualValues(t, 64, got.Options["num_predict"])
}

func TestOllamaClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "hi", GenerationParams{})
	assert.Error(t, err)
}

func TestNewOllamaClient_RequiresURL(t *testing.T) {
	_, err := NewOllamaClient(OllamaConfig{})
	assert.Error(t, err)
}

func TestAnthropicClient_Chat(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{{Type: "text", Text: "part one "}, {Type: "text", Text: "part two"}},
		})
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	reply, err := c.Chat(context.Background(), []Message{{Role: RoleSystem, Content: "be brief"}, {Role: RoleUser, Content: "hi"}}, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "part one part two", reply)
	assert.Equal(t, "be brief", got.System)
	assert.Equal(t, []anthropicMessage{{Role: "user", Content: "hi"}}, got.Messages)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
}

func TestAnthropicClient_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(anthropicResponse{})
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "hi", GenerationParams{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.Error(t, err)

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, defaultOpenAIModel, c.model)
}
