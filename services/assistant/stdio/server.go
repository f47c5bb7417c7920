// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stdio serves turns as JSON lines over a reader/writer pair.
//
// Each input line is one datatypes.TurnRequest; each output line is a
// datatypes.TurnResponse or, for a line that cannot be handled, a
// datatypes.ErrorResponse. Responses are written as turns complete, so
// lines for different sessions may be answered out of order. Lines for
// the same session are answered in the order they were read.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kargohat/assistant/services/assistant/datatypes"
)

const (
	// DefaultMaxConcurrent bounds turns in flight.
	DefaultMaxConcurrent = 16

	// maxLineBytes leaves room for JSON escaping of a maximal message.
	maxLineBytes = 8 * datatypes.MaxMessageBytes

	// pruneThreshold is the number of tracked sessions above which
	// finished ones are forgotten.
	pruneThreshold = 1024
)

// Handler answers one turn. *dispatch.Engine implements it.
type Handler interface {
	HandleTurn(ctx context.Context, req datatypes.TurnRequest) (datatypes.TurnResponse, error)
}

// Config configures a Server.
type Config struct {
	// MaxConcurrent bounds turns in flight. Default: DefaultMaxConcurrent.
	MaxConcurrent int
	Logger        *slog.Logger
}

// Server reads requests and writes responses.
//
// # Thread Safety
//
// Serve may be called once at a time per Server.
type Server struct {
	handler       Handler
	maxConcurrent int
	logger        *slog.Logger
}

// NewServer creates a Server for h.
func NewServer(h Handler, cfg Config) *Server {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{handler: h, maxConcurrent: cfg.MaxConcurrent, logger: cfg.Logger}
}

// Serve handles lines from r until r is exhausted or ctx is cancelled.
//
// # Description
//
// Lines are read on the calling goroutine and handled on an errgroup
// bounded by MaxConcurrent. Serve waits for every accepted turn before
// returning. A Read blocked inside r is not interrupted by ctx; callers
// that need prompt shutdown close r when ctx is done.
//
// # Outputs
//
//   - error: Non-nil when reading or writing fails. Cancellation and EOF
//     return nil.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	out := &lineWriter{enc: json.NewEncoder(w)}

	// tails[id] is closed when the latest accepted turn for id finishes.
	tails := make(map[string]chan struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4*1024), maxLineBytes)

	var readErr error
	for scanner.Scan() {
		if gctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req datatypes.TurnRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.logger.Warn("malformed request line", "error", err)
			if err := out.write(datatypes.ErrorResponse{Error: "malformed request: " + err.Error()}); err != nil {
				readErr = err
				break
			}
			continue
		}
		req.EnsureDefaults()

		prev := tails[req.SessionID]
		done := make(chan struct{})
		tails[req.SessionID] = done
		if len(tails) > pruneThreshold {
			pruneFinished(tails)
		}

		g.Go(func() error {
			defer close(done)
			if prev != nil {
				select {
				case <-prev:
				case <-gctx.Done():
					return nil
				}
			}
			return s.handle(gctx, req, out)
		})
	}
	if err := scanner.Err(); err != nil && readErr == nil && ctx.Err() == nil {
		readErr = fmt.Errorf("read requests: %w", err)
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return readErr
}

func (s *Server) handle(ctx context.Context, req datatypes.TurnRequest, out *lineWriter) error {
	resp, err := s.handler.HandleTurn(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("turn rejected", "session_id", req.SessionID, "error", err)
		return out.write(datatypes.ErrorResponse{SessionID: req.SessionID, Error: err.Error()})
	}
	return out.write(resp)
}

func pruneFinished(tails map[string]chan struct{}) {
	for id, ch := range tails {
		select {
		case <-ch:
			delete(tails, id)
		default:
		}
	}
}

// lineWriter serializes whole lines onto a shared writer.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (l *lineWriter) write(v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(v); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

