// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package phrasing turns raw operation results into the sentence a user
// reads.
//
// Results are rephrased by a model for tone. Results carrying a template
// are rendered locally, and verbatim results are only scrubbed. Every reply
// leaves this package as one plain paragraph without markup or emoji.
package phrasing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kargohat/assistant/services/assistant/observability"
	"github.com/kargohat/assistant/services/assistant/operations"
	"github.com/kargohat/assistant/services/llm"
)

var tracer = otel.Tracer("kargohat.assistant.phrasing")

const instructions = `Sen KargoHat müşteri hizmetleri asistanısın.
Sana bir KULLANICI MESAJI ve sistemin ürettiği bir SİSTEM SONUCU verilecek.
SİSTEM SONUCU'nu kullanıcıya kibar, kısa ve doğal bir Türkçe ile ilet.
Kurallar:
- Numaraları, tarihleri, tutarları ve talep numaralarını aynen koru.
- Sonuçta olmayan bilgi ekleme, sonuçtaki bilgiyi çıkarma.
- Sonuç bir soru içeriyorsa soruyu koru.
- Markdown, madde işareti, başlık veya emoji kullanma. Tek paragraf yaz.`

// Config configures a Phraser.
type Config struct {
	// Temperature for the rephrasing call. Zero uses 0.3.
	Temperature float32
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Phraser rephrases operation results.
//
// # Thread Safety
//
// Safe for concurrent use when the LLMClient is.
type Phraser struct {
	client      llm.LLMClient
	temperature float32
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// New creates a Phraser. A nil client disables rephrasing; results are
// then only scrubbed.
func New(client llm.LLMClient, cfg Config) *Phraser {
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Phraser{
		client:      client,
		temperature: cfg.Temperature,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Phrase returns the user-facing reply for res.
//
// # Description
//
// Template results are rendered locally. Verbatim results and results
// produced while the model is unavailable fall back to the scrubbed raw
// text, so Phrase always returns something the user can read.
//
// # Inputs
//
//   - utterance: the user's message, given to the model for tone only.
//   - res: the operation result.
func (p *Phraser) Phrase(ctx context.Context, utterance string, res operations.Result) string {
	switch {
	case res.Template == operations.TemplateNewTrackingNumber && res.NewTrackingNo != "":
		return newTrackingNumber(res.NewTrackingNo)
	case res.Verbatim || p.client == nil:
		return Scrub(res.Text)
	}
	return p.Rephrase(ctx, utterance, res.Text)
}

// Rephrase asks the model to restate raw. Failures and empty answers
// return the scrubbed raw text.
func (p *Phraser) Rephrase(ctx context.Context, utterance, raw string) string {
	if p.client == nil {
		return Scrub(raw)
	}
	ctx, span := tracer.Start(ctx, "phrasing.Rephrase")
	defer span.End()

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: instructions},
		{Role: llm.RoleUser, Content: fmt.Sprintf("KULLANICI MESAJI: %s\nSİSTEM SONUCU: %s", utterance, raw)},
	}

	start := time.Now()
	out, err := p.client.Chat(ctx, messages, llm.GenerationParams{Temperature: llm.Float32(p.temperature)})
	p.metrics.ObserveCall(observability.CollaboratorPhraser, start)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("phrasing.fallback", true))
		p.logger.Warn("phraser failed, using raw result", "error", err)
		return Scrub(raw)
	}

	phrased := Scrub(out)
	if phrased == "" {
		span.SetAttributes(attribute.Bool("phrasing.fallback", true))
		p.logger.Warn("phraser returned empty text, using raw result")
		return Scrub(raw)
	}
	return phrased
}
