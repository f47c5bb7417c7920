// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"time"

	"github.com/kargohat/assistant/services/assistant/identity"
	"github.com/kargohat/assistant/services/assistant/shipping"
)

// Turn is one user utterance and the reply it produced.
type Turn struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	At        time.Time `json:"at"`
}

// State is the conversational state of one session.
//
// Verified, TrackingNo, UserName, Role and UserID change together, only
// through MarkVerified. PendingIntent holds at most one utterance and is
// only meaningful while Verified is false.
type State struct {
	ID            string        `json:"id"`
	History       []Turn        `json:"history"`
	Verified      bool          `json:"verified"`
	TrackingNo    string        `json:"tracking_no,omitempty"`
	UserName      string        `json:"user_name,omitempty"`
	Role          shipping.Role `json:"role,omitempty"`
	UserID        int64         `json:"user_id,omitempty"`
	PendingIntent string        `json:"pending_intent,omitempty"`
	PendingSince  time.Time     `json:"pending_since,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	LastActive    time.Time     `json:"last_active"`
}

// NewState returns a default-initialized state.
func NewState(id string, now time.Time) *State {
	return &State{ID: id, CreatedAt: now, LastActive: now}
}

// Clone returns a deep copy so a turn can work on its own copy and only
// publish it on success.
func (s *State) Clone() *State {
	c := *s
	c.History = append([]Turn(nil), s.History...)
	return &c
}

// MarkVerified records a successful verification.
func (s *State) MarkVerified(id identity.Identity) {
	s.Verified = true
	s.TrackingNo = id.TrackingNo
	s.UserName = id.DisplayName
	s.Role = id.Role
	s.UserID = id.CustomerID
}

// HasPending reports whether an utterance is waiting for verification.
func (s *State) HasPending() bool {
	return s.PendingIntent != ""
}

// Stash stores utterance as the pending intent. It is a no-op when the
// session is verified or already has a pending intent.
func (s *State) Stash(utterance string, now time.Time) bool {
	if s.Verified || s.HasPending() || utterance == "" {
		return false
	}
	s.PendingIntent = utterance
	s.PendingSince = now
	return true
}

// TakePending clears and returns the pending intent.
func (s *State) TakePending() string {
	p := s.PendingIntent
	s.PendingIntent = ""
	s.PendingSince = time.Time{}
	return p
}

// ExpirePending drops a pending intent older than ttl. A non-positive ttl
// disables expiry.
func (s *State) ExpirePending(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 || !s.HasPending() || now.Sub(s.PendingSince) < ttl {
		return false
	}
	s.TakePending()
	return true
}

// AppendTurn adds a turn and keeps at most max turns. A non-positive max
// keeps everything.
func (s *State) AppendTurn(t Turn, max int) {
	s.History = append(s.History, t)
	if max > 0 && len(s.History) > max {
		s.History = append([]Turn(nil), s.History[len(s.History)-max:]...)
	}
}

// Recent returns the last n turns, oldest first.
func (s *State) Recent(n int) []Turn {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// IdleSince reports how long the session has been inactive.
func (s *State) IdleSince(now time.Time) time.Duration {
	return now.Sub(s.LastActive)
}
