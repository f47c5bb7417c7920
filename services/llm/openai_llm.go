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
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI backend.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI client. An empty APIKey falls back to
// OPENAI_API_KEY and then /run/secrets/openai_api_key.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	apiKey := ResolveSecret(cfg.APIKey, "OPENAI_API_KEY", "openai_api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is missing")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
		slog.Warn("OpenAI model not set, defaulting", "model", model)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Generate implements the LLMClient interface
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return o.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, params)
}

// Chat implements the LLMClient interface
func (o *OpenAIClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Chat")
	defer span.End()

	req := openai.ChatCompletionRequest{Model: o.model}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		recordSpanError(span, err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		recordSpanError(span, ErrEmptyResponse)
		return "", ErrEmptyResponse
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

var _ LLMClient = (*OpenAIClient)(nil)
