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
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiClient talks to the Gemini API through the Google GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini client. An empty APIKey falls back to
// GEMINI_API_KEY and then /run/secrets/gemini_api_key.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	apiKey := ResolveSecret(cfg.APIKey, "GEMINI_API_KEY", "gemini_api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is missing")
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	slog.Info("Initializing Gemini client", "model", model)
	return &GeminiClient{client: client, model: model}, nil
}

// Generate implements the LLMClient interface
func (g *GeminiClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return g.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, params)
}

// Chat implements the LLMClient interface
func (g *GeminiClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "GeminiClient.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", g.model))

	systemPrompt, rest := splitSystem(messages)
	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.Role(genai.RoleUser)
		if strings.EqualFold(m.Role, RoleAssistant) {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature:   params.Temperature,
		TopP:          params.TopP,
		StopSequences: params.Stop,
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if params.TopK != nil {
		topK := float32(*params.TopK)
		config.TopK = &topK
	}
	if params.MaxTokens != nil {
		config.MaxOutputTokens = int32(*params.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		recordSpanError(span, err)
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		recordSpanError(span, ErrEmptyResponse)
		return "", ErrEmptyResponse
	}
	return text, nil
}

var _ LLMClient = (*GeminiClient)(nil)
