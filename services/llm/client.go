// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the text-generation backends used by the assistant:
// the intent classifier, the response phraser and the distance estimator all
// talk to an LLMClient.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("llm returned an empty response")

// Message is one entry of a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// Float32 returns a pointer to v, for GenerationParams literals.
func Float32(v float32) *float32 { return &v }

// Int returns a pointer to v, for GenerationParams literals.
func Int(v int) *int { return &v }

// splitSystem separates the system prompt from the conversational messages.
// Multiple system messages are joined in order.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if strings.EqualFold(m.Role, RoleSystem) {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// ResolveSecret returns value when set, otherwise the named environment
// variable, otherwise the trimmed contents of /run/secrets/<secretName>.
func ResolveSecret(value, envKey, secretName string) string {
	if value != "" {
		return value
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if secretName == "" {
		return ""
	}
	secretPath := "/run/secrets/" + secretName
	if content, err := os.ReadFile(secretPath); err == nil {
		slog.Info("read API key from secrets file", "path", secretPath)
		return strings.TrimSpace(string(content))
	}
	return ""
}
