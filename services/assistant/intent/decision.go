// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnparseable is returned when the classifier output is not a valid
// decision, even after code fences are removed.
var ErrUnparseable = errors.New("classifier output is not a valid decision")

// Kind tags a Decision.
type Kind int

const (
	KindChat Kind = iota
	KindAction
)

func (k Kind) String() string {
	if k == KindAction {
		return "action"
	}
	return "chat"
}

// Decision is the classifier's verdict for one utterance. Exactly one of
// Function (KindAction) or Reply (KindChat) is meaningful.
type Decision struct {
	Kind     Kind
	Function string
	Params   map[string]string
	Reply    string
}

// Param returns the trimmed value of a parameter, or "".
func (d Decision) Param(name string) string {
	return strings.TrimSpace(d.Params[name])
}

// wireDecision is the JSON shape the classifier is instructed to emit.
type wireDecision struct {
	Type       string         `json:"type"`
	Function   string         `json:"function"`
	Parameters map[string]any `json:"parameters"`
	Reply      string         `json:"reply"`
}

// StripFences removes markdown code fences (``` and ```json) and
// surrounding whitespace. Prose around the JSON is left in place.
func StripFences(raw string) string {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// ParseDecision parses classifier output into a Decision.
//
// # Description
//
// Strips code fences, then requires the remainder to be one JSON object
// with "type" of "action" (and a non-empty "function") or "chat" (and a
// non-empty "reply"). Parameter values of any JSON scalar type are
// stringified; nulls are dropped.
//
// # Outputs
//
//   - error: wraps ErrUnparseable on any deviation.
func ParseDecision(raw string) (Decision, error) {
	text := StripFences(raw)
	if text == "" {
		return Decision{}, fmt.Errorf("%w: empty output", ErrUnparseable)
	}

	var w wireDecision
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	switch strings.ToLower(strings.TrimSpace(w.Type)) {
	case "action":
		fn := strings.TrimSpace(w.Function)
		if fn == "" {
			return Decision{}, fmt.Errorf("%w: action without function", ErrUnparseable)
		}
		params, err := stringifyParams(w.Parameters)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Kind: KindAction, Function: fn, Params: params}, nil
	case "chat":
		reply := strings.TrimSpace(w.Reply)
		if reply == "" {
			return Decision{}, fmt.Errorf("%w: chat without reply", ErrUnparseable)
		}
		return Decision{Kind: KindChat, Reply: reply}, nil
	default:
		return Decision{}, fmt.Errorf("%w: unknown type %q", ErrUnparseable, w.Type)
	}
}

func stringifyParams(in map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			return nil, fmt.Errorf("%w: parameter %q is not a scalar", ErrUnparseable, k)
		}
	}
	return out, nil
}
