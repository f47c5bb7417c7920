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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

const (
	anthropicAPIVersion = "2023-06-01"
	defaultBaseURL      = "https://api.anthropic.com/v1/messages"
	defaultMaxTokens    = 1024
)

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`

	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	StopSeqs    []string `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicConfig configures the Anthropic backend.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// --- Client Implementation ---

type AnthropicClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	url        string
}

func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	apiKey := ResolveSecret(cfg.APIKey, "ANTHROPIC_API_KEY", "anthropic_api_key")
	if apiKey == "" {
		slog.Warn("Anthropic API Key is missing.")
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is missing")
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-latest"
		slog.Info("Anthropic model not set, defaulting to", "model", model)
	}
	url := cfg.BaseURL
	if url == "" {
		url = defaultBaseURL
	}

	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		url:        url,
	}, nil
}

// Generate implements the LLMClient interface
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return a.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, params)
}

// Chat implements the LLMClient interface
func (a *AnthropicClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "AnthropicClient.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", a.model))

	systemPrompt, rest := splitSystem(messages)
	apiMessages := make([]anthropicMessage, 0, len(rest))
	for _, msg := range rest {
		apiMessages = append(apiMessages, anthropicMessage{Role: strings.ToLower(msg.Role), Content: msg.Content})
	}

	reqPayload := anthropicRequest{
		Model:       a.model,
		Messages:    apiMessages,
		System:      systemPrompt,
		MaxTokens:   defaultMaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
		StopSeqs:    params.Stop,
	}
	if params.MaxTokens != nil {
		reqPayload.MaxTokens = *params.MaxTokens
	}

	reqBodyBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	slog.Debug("Sending REST request to Anthropic", "model", a.model)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		recordSpanError(span, err)
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		recordSpanError(span, err)
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(bodyBytes))
		recordSpanError(span, err)
		return "", err
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("anthropic API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	var finalText strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			finalText.WriteString(block.Text)
		}
	}
	if finalText.Len() == 0 {
		recordSpanError(span, ErrEmptyResponse)
		return "", ErrEmptyResponse
	}
	return finalText.String(), nil
}

var _ LLMClient = (*AnthropicClient)(nil)
