// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent turns a user utterance into a Decision by asking an LLM
// classifier.
//
// The classifier sees the system instructions, the session's verification
// status, the current date, the trailing history and the utterance. Its
// output must be a single JSON object; anything else is ErrUnparseable.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kargohat/assistant/services/assistant/observability"
	"github.com/kargohat/assistant/services/assistant/session"
	"github.com/kargohat/assistant/services/assistant/shipping"
	"github.com/kargohat/assistant/services/llm"
)

var tracer = otel.Tracer("kargohat.assistant.intent")

// DefaultWindow is how many history turns the prompt carries.
const DefaultWindow = 10

// Config configures a Resolver.
type Config struct {
	Instructions InstructionSource
	Window       int
	Now          func() time.Time
	Metrics      *observability.Metrics
	Logger       *slog.Logger
}

// Resolver classifies utterances.
//
// # Thread Safety
//
// Safe for concurrent use when the LLMClient is.
type Resolver struct {
	client       llm.LLMClient
	instructions InstructionSource
	window       int
	now          func() time.Time
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewResolver creates a resolver over client.
func NewResolver(client llm.LLMClient, cfg Config) *Resolver {
	if cfg.Instructions == nil {
		cfg.Instructions = StaticInstructions("")
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		client:       client,
		instructions: cfg.Instructions,
		window:       cfg.Window,
		now:          cfg.Now,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
}

// Resolve asks the classifier what to do with utterance.
//
// # Description
//
// When the session is unverified and holds a pending intent, the utterance
// is annotated so the classifier finishes collecting identity fields for
// that goal instead of asking for the goal again.
//
// # Outputs
//
//   - Decision: the parsed verdict.
//   - error: the classifier's transport error, or one wrapping
//     ErrUnparseable. Callers treat both as a failed turn.
func (r *Resolver) Resolve(ctx context.Context, st *session.State, utterance string) (Decision, error) {
	ctx, span := tracer.Start(ctx, "intent.Resolve")
	defer span.End()

	messages := r.BuildMessages(st, utterance)

	start := time.Now()
	raw, err := r.client.Chat(ctx, messages, llm.GenerationParams{Temperature: llm.Float32(0)})
	r.metrics.ObserveCall(observability.CollaboratorClassifier, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classifier call failed")
		return Decision{}, fmt.Errorf("classifier: %w", err)
	}

	d, err := ParseDecision(raw)
	if err != nil {
		r.logger.Warn("classifier output rejected",
			"session_id", st.ID,
			"error", err,
			"raw", truncate(raw, 300),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable decision")
		return Decision{}, err
	}

	span.SetAttributes(
		attribute.String("decision.kind", d.Kind.String()),
		attribute.String("decision.function", d.Function),
	)
	r.logger.Debug("classifier decision",
		"session_id", st.ID,
		"kind", d.Kind.String(),
		"function", d.Function,
	)
	return d, nil
}

// BuildMessages assembles the classifier conversation for one utterance.
func (r *Resolver) BuildMessages(st *session.State, utterance string) []llm.Message {
	var sys strings.Builder
	sys.WriteString(strings.TrimSpace(r.instructions.Instructions()))
	sys.WriteString("\n\n")
	sys.WriteString(statusLine(st))
	sys.WriteString("\n")
	now := r.now()
	fmt.Fprintf(&sys, "BUGÜNÜN TARİHİ: %s. Göreli tarihleri (bugün, yarın) bu tarihe göre yorumla.", now.Format("02.01.2006"))

	recent := st.Recent(r.window)
	messages := make([]llm.Message, 0, 2+2*len(recent))
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: sys.String()})
	for _, t := range recent {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: t.User},
			llm.Message{Role: llm.RoleAssistant, Content: t.Assistant},
		)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: annotate(st, utterance)})
	return messages
}

func statusLine(st *session.State) string {
	if !st.Verified {
		return "DURUM: MİSAFİR. Kimlik doğrulanmadı."
	}
	role := "Alıcı"
	if st.Role == shipping.RoleSender {
		role = "Gönderici"
	}
	return fmt.Sprintf("DURUM: KULLANICI DOĞRULANDI. Müşteri: %s (%s). Aktif No: %s.", st.UserName, role, st.TrackingNo)
}

func annotate(st *session.State, utterance string) string {
	if st.Verified || !st.HasPending() {
		return utterance
	}
	return fmt.Sprintf("%s\n\n(NOT: Kullanıcı daha önce %q isteğini belirtti ve kimlik bilgilerini parça parça veriyor. "+
		"Bu isteği tekrar sorma; geçmişteki parçaları birleştir, eksik alanı iste ve ad, numara, telefon tamamsa verify_identity çağır.)",
		utterance, st.PendingIntent)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
