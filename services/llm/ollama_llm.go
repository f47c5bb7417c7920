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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kargohat.llm")

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// OllamaConfig configures the Ollama backend.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message   Message `json:"message"`
	CreatedAt string  `json:"created_at"`
	Done      bool    `json:"done"`
}

func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ollama base URL not set")
	}
	model := cfg.Model
	if model == "" {
		slog.Warn("Ollama model not set, defaulting to llama3.1")
		model = "llama3.1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "default_model", model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		model:      model,
	}, nil
}

// Generate implements the LLMClient interface
func (o *OllamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return o.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, params)
}

// Chat implements the LLMClient interface
func (o *OllamaClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", o.model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	options := make(map[string]interface{})
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	} else {
		options["temperature"] = float32(0.2)
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}

	reqBody, err := json.Marshal(ollamaChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   false,
		Options:  options,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request to Ollama: %w", err)
	}

	chatURL := o.baseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatURL, bytes.NewBuffer(reqBody))
	if err != nil {
		recordSpanError(span, err)
		return "", fmt.Errorf("failed to create chat request to Ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		recordSpanError(span, err)
		return "", fmt.Errorf("failed to send the request to %s: %w", chatURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		recordSpanError(span, err)
		return "", fmt.Errorf("failed to read Ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("ollama chat failed with status %d: %s", resp.StatusCode, string(respBody))
		slog.Error("Ollama chat returned an error", "status_code", resp.StatusCode)
		recordSpanError(span, err)
		return "", err
	}

	var ollamaResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		recordSpanError(span, err)
		return "", fmt.Errorf("failed to parse Ollama chat response: %w", err)
	}
	if ollamaResp.Message.Content == "" {
		recordSpanError(span, ErrEmptyResponse)
		return "", ErrEmptyResponse
	}
	return ollamaResp.Message.Content, nil
}

var _ LLMClient = (*OllamaClient)(nil)
