// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kargohat/assistant/services/llm"
)

// Session backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendBadger = "badger"
)

// Config holds assistant service configuration.
//
// # Description
//
// Config is usually loaded from a YAML file with LoadConfig. Every field is
// optional; New applies defaults to zero values.
//
// # Examples
//
//	llm_backend: gemini
//	llm_model: gemini-2.5-flash
//	db_path: ./data/kargo.db
//	seed: true
//	session_backend: badger
//	badger_path: ./data/sessions
//	session_idle_ttl: 30m
//	metrics_addr: 127.0.0.1:9464
type Config struct {
	// LLMBackend selects the model provider.
	// Valid values: "gemini", "openai", "anthropic" (or "claude"), "ollama".
	// Default: "gemini"
	LLMBackend string `yaml:"llm_backend"`

	// LLMModel is the provider's model name. Empty uses the client default.
	LLMModel string `yaml:"llm_model"`

	// LLMBaseURL overrides the provider endpoint. Required for ollama.
	LLMBaseURL string `yaml:"llm_base_url"`

	// DBPath is the SQLite database file. Default: "./data/kargo.db"
	DBPath string `yaml:"db_path"`

	// Seed loads demo data into the database on startup.
	Seed bool `yaml:"seed"`

	// SessionBackend is "memory" or "badger". Default: "memory"
	SessionBackend string `yaml:"session_backend"`

	// BadgerPath is the badger directory. Default: "./data/sessions"
	BadgerPath string `yaml:"badger_path"`

	// SessionIdleTTL expires sessions idle this long. Default: 30m
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`

	// PendingTTL discards stored requests older than this. Default: 10m
	PendingTTL time.Duration `yaml:"pending_ttl"`

	// HistoryCap bounds stored turns per session. Default: 50
	HistoryCap int `yaml:"history_cap"`

	// PromptWindow is the number of turns shown to the classifier. Default: 10
	PromptWindow int `yaml:"prompt_window"`

	// CallTimeout bounds every model call including retries. Default: 20s
	CallTimeout time.Duration `yaml:"call_timeout"`

	// RetryAttempts is the number of tries per model call. Default: 2
	RetryAttempts int `yaml:"retry_attempts"`

	// SweepInterval is how often idle sessions are swept. Default: 1m
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// RateLimit is turns per second per session; zero disables throttling.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// MaxConcurrent bounds turns in flight on the line protocol. Default: 16
	MaxConcurrent int `yaml:"max_concurrent"`

	// MetricsAddr serves /metrics when set, e.g. "127.0.0.1:9464".
	MetricsAddr string `yaml:"metrics_addr"`

	// OTelEndpoint is the OTLP gRPC collector. Tracing is off when empty.
	OTelEndpoint string `yaml:"otel_endpoint"`

	// InstructionFile replaces the built-in classifier instructions and is
	// reloaded on change.
	InstructionFile string `yaml:"instruction_file"`

	// RedactPhones masks phone numbers in replies.
	RedactPhones bool `yaml:"redact_phones"`

	// Client replaces backend selection. Used by tests and embedders.
	Client llm.LLMClient `yaml:"-"`
}

// LoadConfig reads path (when non-empty) and applies environment
// overrides.
//
// # Description
//
// Recognized variables: ASSISTANT_LLM_BACKEND, ASSISTANT_LLM_MODEL,
// OLLAMA_URL, ASSISTANT_DB_PATH, ASSISTANT_SESSION_BACKEND,
// ASSISTANT_METRICS_ADDR, ASSISTANT_RATE_LIMIT and
// OTEL_EXPORTER_OTLP_ENDPOINT. API keys are never stored in the file;
// each client resolves its own key from the environment or
// /run/secrets.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return applyEnv(cfg)
}

func applyEnv(cfg Config) (Config, error) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.LLMBackend, "ASSISTANT_LLM_BACKEND")
	setString(&cfg.LLMModel, "ASSISTANT_LLM_MODEL")
	setString(&cfg.DBPath, "ASSISTANT_DB_PATH")
	setString(&cfg.SessionBackend, "ASSISTANT_SESSION_BACKEND")
	setString(&cfg.MetricsAddr, "ASSISTANT_METRICS_ADDR")
	setString(&cfg.OTelEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	if strings.EqualFold(cfg.LLMBackend, "ollama") {
		setString(&cfg.LLMBaseURL, "OLLAMA_URL")
	}
	if v := os.Getenv("ASSISTANT_RATE_LIMIT"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("ASSISTANT_RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = rate
	}
	return cfg, nil
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	cfg.LLMBackend = strings.ToLower(strings.TrimSpace(cfg.LLMBackend))
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "gemini"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./data/kargo.db"
	}
	if cfg.SessionBackend == "" {
		cfg.SessionBackend = SessionBackendMemory
	}
	if cfg.BadgerPath == "" {
		cfg.BadgerPath = "./data/sessions"
	}
	if cfg.SessionIdleTTL <= 0 {
		cfg.SessionIdleTTL = 30 * time.Minute
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 10 * time.Minute
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 50
	}
	if cfg.PromptWindow <= 0 {
		cfg.PromptWindow = 10
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 20 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 2
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 16
	}
	return cfg
}
