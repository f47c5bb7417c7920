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
	"fmt"
	"time"

	"github.com/zoobzio/pipz"
)

// ResilienceConfig bounds every call made through a Resilient client.
type ResilienceConfig struct {
	// Timeout is the budget for all attempts of one call.
	Timeout time.Duration
	// Attempts is the total number of tries, including the first.
	Attempts int
	// BaseDelay is the first backoff delay; it doubles per attempt.
	BaseDelay time.Duration
}

// DefaultResilienceConfig returns a 20s budget with two attempts.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		Timeout:   20 * time.Second,
		Attempts:  2,
		BaseDelay: 250 * time.Millisecond,
	}
}

// chatCall carries one request through the pipeline.
type chatCall struct {
	messages []Message
	params   GenerationParams
	reply    string
}

// Resilient wraps an LLMClient with a timeout and retry-with-backoff
// pipeline. A timeout is reported as an error like any other failure.
//
// # Thread Safety
//
// Safe for concurrent use if the wrapped client is.
type Resilient struct {
	inner    LLMClient
	pipeline pipz.Chainable[*chatCall]
}

var (
	llmCallID = pipz.NewIdentity("llm-call", "single chat call to the wrapped backend")
	backoffID = pipz.NewIdentity("backoff", "retries failed chat calls with exponential delay")
	timeoutID = pipz.NewIdentity("timeout", "bounds the whole chat call including retries")
)

// NewResilient builds the pipeline: backoff retries inside an overall
// timeout.
func NewResilient(inner LLMClient, cfg ResilienceConfig) *Resilient {
	def := DefaultResilienceConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}

	terminal := pipz.Apply(llmCallID, func(ctx context.Context, call *chatCall) (*chatCall, error) {
		reply, err := inner.Chat(ctx, call.messages, call.params)
		if err != nil {
			return call, err
		}
		call.reply = reply
		return call, nil
	})

	var pipeline pipz.Chainable[*chatCall] = terminal
	if cfg.Attempts > 1 {
		pipeline = pipz.NewBackoff(backoffID, pipeline, cfg.Attempts, cfg.BaseDelay)
	}
	pipeline = pipz.NewTimeout(timeoutID, pipeline, cfg.Timeout)

	return &Resilient{inner: inner, pipeline: pipeline}
}

// Generate implements the LLMClient interface
func (r *Resilient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return r.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, params)
}

// Chat implements the LLMClient interface
func (r *Resilient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	out, err := r.pipeline.Process(ctx, &chatCall{messages: messages, params: params})
	if err != nil {
		return "", fmt.Errorf("llm call failed: %w", err)
	}
	return out.reply, nil
}

var _ LLMClient = (*Resilient)(nil)
