// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch runs one conversational turn end to end.
//
// A turn loads the session, asks the resolver what the user wants, runs
// either identity verification or a business operation, phrases the
// result and writes the session back. When verification succeeds while a
// request is pending, that request is resolved and answered in the same
// turn.
//
// # Thread Safety
//
// Turns for one session are serialized. Turns for different sessions run
// in parallel.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/kargohat/assistant/pkg/extensions"
	"github.com/kargohat/assistant/services/assistant/datatypes"
	"github.com/kargohat/assistant/services/assistant/identity"
	"github.com/kargohat/assistant/services/assistant/intent"
	"github.com/kargohat/assistant/services/assistant/observability"
	"github.com/kargohat/assistant/services/assistant/operations"
	"github.com/kargohat/assistant/services/assistant/phrasing"
	"github.com/kargohat/assistant/services/assistant/session"
	"github.com/kargohat/assistant/services/assistant/textnorm"
)

var tracer = otel.Tracer("kargohat.assistant.dispatch")

// ErrInvalidRequest is returned by HandleTurn for requests that fail
// validation. It is the only error HandleTurn returns.
var ErrInvalidRequest = errors.New("invalid turn request")

const (
	DefaultPendingTTL = 10 * time.Minute
	DefaultHistoryCap = 50
	DefaultLimiterTTL = 30 * time.Minute
)

// Resolver classifies an utterance in the context of a session.
type Resolver interface {
	Resolve(ctx context.Context, st *session.State, utterance string) (intent.Decision, error)
}

// Operations runs business operations.
type Operations interface {
	Dispatch(ctx context.Context, req operations.Request) (operations.Result, error)
}

// Verifier checks identity claims.
type Verifier interface {
	Verify(ctx context.Context, c identity.Claims) (identity.Outcome, error)
}

// Phraser turns operation results into replies.
type Phraser interface {
	Phrase(ctx context.Context, utterance string, res operations.Result) string
}

// Config wires an Engine. Sessions, Resolver, Operations, Verifier and
// Phraser are required.
type Config struct {
	Sessions   session.Store
	Resolver   Resolver
	Operations Operations
	Verifier   Verifier
	Phraser    Phraser

	// Extensions supplies the audit logger and message filter. Nil fields
	// get no-op defaults.
	Extensions extensions.ServiceOptions

	// PendingTTL discards a pending request older than this at the start
	// of a turn. Default: 10 minutes.
	PendingTTL time.Duration

	// HistoryCap bounds the stored history. Default: 50 turns.
	HistoryCap int

	// RateLimit is the sustained number of turns per second one session
	// may send, with RateBurst on top. Zero disables throttling.
	RateLimit float64
	RateBurst int

	// LimiterTTL drops the throttle state of sessions idle this long.
	// Default: 30 minutes.
	LimiterTTL time.Duration

	Metrics *observability.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Engine processes turns.
type Engine struct {
	sessions session.Store
	resolver Resolver
	ops      Operations
	verifier Verifier
	phraser  Phraser
	audit    extensions.AuditLogger
	filter   extensions.MessageFilter

	pendingTTL time.Duration
	historyCap int
	rateLimit  rate.Limit
	rateBurst  int
	limiterTTL time.Duration

	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time

	locks *session.Locks

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Sessions == nil:
		return nil, errors.New("dispatch: session store is required")
	case cfg.Resolver == nil:
		return nil, errors.New("dispatch: resolver is required")
	case cfg.Operations == nil:
		return nil, errors.New("dispatch: operations are required")
	case cfg.Verifier == nil:
		return nil, errors.New("dispatch: verifier is required")
	case cfg.Phraser == nil:
		return nil, errors.New("dispatch: phraser is required")
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = DefaultHistoryCap
	}
	if cfg.LimiterTTL <= 0 {
		cfg.LimiterTTL = DefaultLimiterTTL
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ext := cfg.Extensions.Normalize()

	return &Engine{
		sessions:   cfg.Sessions,
		resolver:   cfg.Resolver,
		ops:        cfg.Operations,
		verifier:   cfg.Verifier,
		phraser:    cfg.Phraser,
		audit:      ext.AuditLogger,
		filter:     ext.MessageFilter,
		pendingTTL: cfg.PendingTTL,
		historyCap: cfg.HistoryCap,
		rateLimit:  rate.Limit(cfg.RateLimit),
		rateBurst:  cfg.RateBurst,
		limiterTTL: cfg.LimiterTTL,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		now:        cfg.Now,
		locks:      session.NewLocks(),
		limiters:   make(map[string]*limiterEntry),
	}, nil
}

// HandleTurn answers one user message.
//
// # Description
//
// The session is loaded under its lock and the turn works on that copy.
// The copy is saved only after a reply has been produced, so a failed
// turn leaves the stored session untouched. Upstream failures (resolver,
// store, unparseable classifier output) are logged and answered with
// phrasing.Fallback.
//
// # Outputs
//
//   - TurnResponse: always carries a reply when error is nil.
//   - error: wraps ErrInvalidRequest when the request fails validation.
func (e *Engine) HandleTurn(ctx context.Context, req datatypes.TurnRequest) (datatypes.TurnResponse, error) {
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		return datatypes.TurnResponse{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	resp := datatypes.TurnResponse{SessionID: req.SessionID}

	ctx, span := tracer.Start(ctx, "dispatch.HandleTurn")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", req.SessionID))

	unlock := e.locks.Lock(req.SessionID)
	defer unlock()

	start := time.Now()
	if !e.allow(req.SessionID) {
		e.metrics.RecordTurn(observability.OutcomeRateLimited)
		e.logger.Warn("turn rate limited", "session_id", req.SessionID)
		resp.Reply = phrasing.RateLimitedText
		return resp, nil
	}

	reply, replayed, err := e.process(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		e.metrics.RecordTurn(observability.OutcomeFallback)
		e.logger.Error("turn failed", "session_id", req.SessionID, "error", err)
		resp.Reply = phrasing.Fallback
		return resp, nil
	}

	e.metrics.RecordTurn(observability.OutcomeOK)
	e.logger.Info("turn completed",
		"session_id", req.SessionID,
		"message_len", len(req.Message),
		"reply_len", len(reply),
		"replayed", replayed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	resp.Reply = reply
	return resp, nil
}

func (e *Engine) process(ctx context.Context, req datatypes.TurnRequest) (string, bool, error) {
	st, err := e.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return "", false, fmt.Errorf("load session: %w", err)
	}
	now := e.now()
	if st.ExpirePending(now, e.pendingTTL) {
		e.logger.Debug("pending request expired", "session_id", st.ID)
	}

	in, err := e.filter.FilterInput(ctx, req.Message)
	if err != nil {
		return "", false, fmt.Errorf("filter input: %w", err)
	}
	if in.WasBlocked {
		e.logger.Warn("message blocked", "session_id", st.ID, "reason", in.BlockReason)
		return phrasing.BlockedText, false, nil
	}
	e.logger.Debug("turn received", "session_id", st.ID, "message", in.Filtered)

	t := &turn{st: st, utterance: req.Message}
	reply, err := e.run(ctx, t)
	if err != nil {
		return "", false, err
	}

	out, err := e.filter.FilterOutput(ctx, reply)
	if err != nil {
		return "", false, fmt.Errorf("filter output: %w", err)
	}
	if out.WasBlocked {
		return "", false, fmt.Errorf("filter output: %w: %s", extensions.ErrMessageBlocked, out.BlockReason)
	}
	reply = out.Filtered

	st.AppendTurn(session.Turn{User: req.Message, Assistant: reply, At: now}, e.historyCap)
	st.LastActive = now
	if err := e.sessions.Save(ctx, st); err != nil {
		return "", false, fmt.Errorf("save session: %w", err)
	}
	return reply, t.replayed, nil
}

// turn is the mutable context of one HandleTurn call.
type turn struct {
	st        *session.State
	utterance string
	replayed  bool
}

// run is the first phase: resolve the utterance and answer it. A
// successful verification may trigger the second phase through replay.
func (e *Engine) run(ctx context.Context, t *turn) (string, error) {
	wasVerified := t.st.Verified

	d, err := e.resolver.Resolve(ctx, t.st, t.utterance)
	if err != nil {
		return "", err
	}
	if isVerification(d) {
		return e.verify(ctx, t, d)
	}

	reply, err := e.respond(ctx, t.st, t.utterance, d)
	if err != nil {
		return "", err
	}
	if !wasVerified && stashable(t.utterance, d) && t.st.Stash(t.utterance, e.now()) {
		e.logger.Debug("pending request stored", "session_id", t.st.ID)
	}
	return reply, nil
}

// verify runs identity verification and, on success, the pending request.
func (e *Engine) verify(ctx context.Context, t *turn, d intent.Decision) (string, error) {
	claims := identity.Claims{
		Number: d.Param("number"),
		Name:   d.Param("name"),
		Phone:  d.Param("phone"),
	}
	outcome, err := e.verifier.Verify(ctx, claims)
	if err != nil {
		return "", fmt.Errorf("verify identity: %w", err)
	}
	e.recordVerification(ctx, t.st, claims, outcome)

	if !outcome.OK() {
		hint := operations.Result{Kind: operations.KindNeedsInput, Text: phrasing.VerificationHint(outcome)}
		return e.phraser.Phrase(ctx, t.utterance, hint), nil
	}

	id := *outcome.Identity
	t.st.MarkVerified(id)
	if !t.st.HasPending() {
		welcome := operations.Result{Kind: operations.KindOK, Text: phrasing.Welcome(id)}
		return e.phraser.Phrase(ctx, t.utterance, welcome), nil
	}

	// Cleared before the replay so the replayed request can never be
	// stashed again.
	pending := t.st.TakePending()
	t.replayed = true
	e.metrics.RecordReplay()
	reply, err := e.replay(ctx, t.st, pending)
	if err != nil {
		return "", err
	}
	return phrasing.WelcomePrefix(id) + " " + reply, nil
}

// replay is the second phase. It runs at most once per turn and never
// verifies or stashes.
func (e *Engine) replay(ctx context.Context, st *session.State, utterance string) (string, error) {
	ctx, span := tracer.Start(ctx, "dispatch.Replay")
	defer span.End()
	e.logger.Info("replaying pending request", "session_id", st.ID)

	d, err := e.resolver.Resolve(ctx, st, utterance)
	if err != nil {
		return "", fmt.Errorf("replay: %w", err)
	}
	if isVerification(d) {
		return "Size nasıl yardımcı olabilirim?", nil
	}
	return e.respond(ctx, st, utterance, d)
}

// respond answers a chat decision or runs an operation.
func (e *Engine) respond(ctx context.Context, st *session.State, utterance string, d intent.Decision) (string, error) {
	if d.Kind == intent.KindChat {
		if reply := phrasing.Scrub(d.Reply); reply != "" {
			return reply, nil
		}
		return d.Reply, nil
	}

	res, err := e.ops.Dispatch(ctx, operations.Request{
		Function: d.Function,
		Params:   d.Params,
		Caller:   callerOf(st),
	})
	if errors.Is(err, operations.ErrUnroutable) {
		e.logger.Warn("unroutable decision", "session_id", st.ID, "function", d.Function)
		return phrasing.UnroutableText, nil
	}
	if err != nil {
		return "", err
	}
	if res.NewTrackingNo != "" && st.Verified {
		st.TrackingNo = res.NewTrackingNo
	}
	return e.phraser.Phrase(ctx, utterance, res), nil
}

func (e *Engine) recordVerification(ctx context.Context, st *session.State, c identity.Claims, o identity.Outcome) {
	result, user := string(o.Reason), "anonymous"
	if o.OK() {
		result = "success"
		user = strconv.FormatInt(o.Identity.CustomerID, 10)
	}
	e.metrics.RecordVerification(result)

	meta := map[string]any{"session_id": st.ID}
	if phone, valid := identity.NormalizePhone(c.Phone); valid {
		meta["phone"] = identity.MaskPhone(phone)
	}
	err := e.audit.Log(ctx, extensions.AuditEvent{
		EventType:    "identity.verify",
		Timestamp:    e.now().UTC(),
		UserID:       user,
		Action:       string(operations.OpVerifyIdentity),
		ResourceType: "shipment",
		ResourceID:   textnorm.Digits(c.Number),
		Outcome:      result,
		Metadata:     meta,
	})
	if err != nil {
		e.logger.Warn("audit write failed", "session_id", st.ID, "error", err)
	}
	e.logger.Info("identity verification", "session_id", st.ID, "result", result)
}

// allow reports whether the session may run a turn now.
func (e *Engine) allow(sessionID string) bool {
	if e.rateLimit <= 0 {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.limiters[sessionID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(e.rateLimit, e.rateBurst)}
		e.limiters[sessionID] = entry
	}
	entry.seen = e.now()
	return entry.limiter.Allow()
}

// Sweep expires idle sessions and drops their throttle state. Together
// with Count it lets the engine be driven by ttl.Scheduler.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	now := e.now()
	e.mu.Lock()
	for id, entry := range e.limiters {
		if now.Sub(entry.seen) > e.limiterTTL {
			delete(e.limiters, id)
		}
	}
	e.mu.Unlock()
	return e.sessions.Sweep(ctx)
}

// Count returns the number of live sessions.
func (e *Engine) Count(ctx context.Context) (int, error) {
	return e.sessions.Count(ctx)
}

func callerOf(st *session.State) operations.Caller {
	return operations.Caller{
		SessionID:   st.ID,
		Verified:    st.Verified,
		CustomerID:  st.UserID,
		DisplayName: st.UserName,
		Role:        st.Role,
		TrackingNo:  st.TrackingNo,
	}
}

func isVerification(d intent.Decision) bool {
	if d.Kind != intent.KindAction {
		return false
	}
	op, known := operations.Parse(d.Function)
	return known && op == operations.OpVerifyIdentity
}

var greetings = map[string]bool{
	"merhaba":      true,
	"merhabalar":   true,
	"slm":          true,
	"selam":        true,
	"selamlar":     true,
	"nasilsin":     true,
	"gunaydin":     true,
	"iyi gunler":   true,
	"iyi aksamlar": true,
}

// stashable reports whether an unverified user's message should wait for
// verification: personal operations and open-ended chat do, greetings
// and public operations do not.
func stashable(utterance string, d intent.Decision) bool {
	key := strings.Trim(textnorm.Fold(utterance), " .,!?")
	if greetings[key] {
		return false
	}
	if d.Kind == intent.KindChat {
		return true
	}
	op, known := operations.Parse(d.Function)
	return known && op.Access() == operations.AccessPersonal
}
