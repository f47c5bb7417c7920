// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assistant wires the customer-service assistant together.
//
// The service owns the shipping database, the session store, the model
// client and the turn engine, and runs the line protocol next to the
// session sweep, the instruction watcher and an optional metrics
// listener.
//
// # Usage
//
//	cfg, err := assistant.LoadConfig("assistant.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := assistant.New(ctx, cfg, nil, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//	err = svc.Run(ctx, os.Stdin, os.Stdout)
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kargohat/assistant/pkg/extensions"
	"github.com/kargohat/assistant/services/assistant/dispatch"
	"github.com/kargohat/assistant/services/assistant/distance"
	"github.com/kargohat/assistant/services/assistant/identity"
	"github.com/kargohat/assistant/services/assistant/intent"
	"github.com/kargohat/assistant/services/assistant/observability"
	"github.com/kargohat/assistant/services/assistant/operations"
	"github.com/kargohat/assistant/services/assistant/phrasing"
	"github.com/kargohat/assistant/services/assistant/session"
	"github.com/kargohat/assistant/services/assistant/shipping"
	"github.com/kargohat/assistant/services/assistant/stdio"
	badgerdb "github.com/kargohat/assistant/services/assistant/storage/badger"
	"github.com/kargohat/assistant/services/assistant/ttl"
	"github.com/kargohat/assistant/services/llm"
)

const serviceName = "kargo-assistant"

// Service is a fully wired assistant.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Run should be called at most once,
// and Close after Run has returned.
type Service struct {
	config  Config
	opts    extensions.ServiceOptions
	logger  *slog.Logger
	metrics *observability.Metrics
	reg     *prometheus.Registry

	store        *shipping.SQLiteStore
	sessions     session.Store
	client       llm.LLMClient
	instructions *intent.InstructionFile
	engine       *dispatch.Engine
	scheduler    *ttl.Scheduler

	tracerCleanup func(context.Context)
}

// New creates a Service.
//
// # Description
//
// New initializes, in order: tracing (when an endpoint is configured),
// metrics, the shipping database, the session store, the model client,
// the classifier instructions and the turn engine. On failure every
// component opened so far is closed again.
//
// If opts is nil, audit events go to the logger and no message filter
// runs unless RedactPhones is set.
//
// # Outputs
//
//   - *Service: Ready to Run. Caller must Close it.
//   - error: Non-nil if any component fails to initialize.
func New(ctx context.Context, cfg Config, opts *extensions.ServiceOptions, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{config: applyConfigDefaults(cfg), logger: logger}

	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions().WithAudit(extensions.NewSlogAuditLogger(logger))
		if s.config.RedactPhones {
			s.opts = s.opts.WithFilter(&extensions.PhoneRedactor{})
		}
	}

	if err := s.init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) init(ctx context.Context) error {
	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	s.reg = prometheus.NewRegistry()
	s.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.metrics = observability.NewMetrics(s.reg)

	var err error
	s.store, err = shipping.Open(ctx, shipping.Config{Path: s.config.DBPath, Seed: s.config.Seed, Logger: s.logger})
	if err != nil {
		return fmt.Errorf("failed to open shipping store: %w", err)
	}

	if err := s.initSessions(); err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}

	if err := s.initLLMClient(ctx); err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	var source intent.InstructionSource = intent.StaticInstructions(intent.DefaultInstructions())
	if s.config.InstructionFile != "" {
		s.instructions, err = intent.NewInstructionFile(s.config.InstructionFile, s.logger)
		if err != nil {
			return fmt.Errorf("failed to load instruction file: %w", err)
		}
		source = s.instructions
	}

	registry := operations.NewRegistry(operations.Config{
		Store:    s.store,
		Distance: distance.NewCached(distance.NewLLMEstimator(s.client, s.metrics, s.logger)),
		Advisor:  s.client,
		Audit:    s.opts.Normalize().AuditLogger,
		Metrics:  s.metrics,
		Logger:   s.logger,
	})

	s.engine, err = dispatch.New(dispatch.Config{
		Sessions: s.sessions,
		Resolver: intent.NewResolver(s.client, intent.Config{
			Instructions: source,
			Window:       s.config.PromptWindow,
			Metrics:      s.metrics,
			Logger:       s.logger,
		}),
		Operations: registry,
		Verifier:   identity.NewVerifier(s.store, s.logger),
		Phraser:    phrasing.New(s.client, phrasing.Config{Metrics: s.metrics, Logger: s.logger}),
		Extensions: s.opts,
		PendingTTL: s.config.PendingTTL,
		HistoryCap: s.config.HistoryCap,
		RateLimit:  s.config.RateLimit,
		RateBurst:  s.config.RateBurst,
		Metrics:    s.metrics,
		Logger:     s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create turn engine: %w", err)
	}

	s.scheduler = ttl.NewScheduler(s.engine, s.metrics, s.logger, ttl.SchedulerConfig{Interval: s.config.SweepInterval})
	return nil
}

// Engine returns the turn engine.
func (s *Service) Engine() *dispatch.Engine {
	return s.engine
}

// Store returns the shipping database.
func (s *Service) Store() *shipping.SQLiteStore {
	return s.store
}

// Run serves the line protocol on in/out and blocks until in is exhausted
// or ctx is cancelled.
//
// # Description
//
// The session sweep, the instruction watcher and the metrics listener run
// next to the line protocol and stop with it. When ctx is cancelled and
// in is an io.Closer, in is closed so a blocked read returns.
//
// # Outputs
//
//   - error: The first failure of any member, or nil on a clean stop.
func (s *Service) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if c, ok := in.(io.Closer); ok {
		stop := context.AfterFunc(gctx, func() { _ = c.Close() })
		defer stop()
	}

	server := stdio.NewServer(s.engine, stdio.Config{MaxConcurrent: s.config.MaxConcurrent, Logger: s.logger})
	g.Go(func() error {
		defer cancel()
		return server.Serve(gctx, in, out)
	})
	g.Go(func() error {
		return s.scheduler.Run(gctx)
	})
	if s.instructions != nil {
		g.Go(func() error {
			return s.instructions.Watch(gctx)
		})
	}
	if s.config.MetricsAddr != "" {
		g.Go(func() error {
			return s.serveMetrics(gctx)
		})
	}

	s.logger.Info("assistant started",
		"llm_backend", s.config.LLMBackend,
		"session_backend", s.config.SessionBackend,
		"metrics_addr", s.config.MetricsAddr,
	)
	err := g.Wait()
	s.logger.Info("assistant stopped")
	return err
}

// Close releases every resource held by the service. It is safe to call
// on a partially initialized service.
func (s *Service) Close() error {
	var errs []error
	if s.sessions != nil {
		if err := s.sessions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sessions: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close shipping store: %w", err))
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
	return errors.Join(errs...)
}

func (s *Service) initSessions() error {
	switch s.config.SessionBackend {
	case SessionBackendMemory:
		s.sessions = session.NewMemoryStore(s.config.SessionIdleTTL, time.Now)
	case SessionBackendBadger:
		db, err := badgerdb.Open(badgerdb.Config{
			Path:           s.config.BadgerPath,
			SyncWrites:     true,
			Logger:         s.logger,
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		})
		if err != nil {
			return err
		}
		s.sessions = session.NewBadgerStore(db, s.config.SessionIdleTTL, time.Now)
	default:
		return fmt.Errorf("unknown session backend %q", s.config.SessionBackend)
	}
	s.logger.Info("session store ready", "backend", s.config.SessionBackend, "idle_ttl", s.config.SessionIdleTTL.String())
	return nil
}

// initLLMClient creates the model client for the configured backend and
// wraps it with the call timeout and retry policy.
func (s *Service) initLLMClient(ctx context.Context) error {
	client := s.config.Client
	if client == nil {
		var err error
		switch s.config.LLMBackend {
		case "gemini":
			client, err = llm.NewGeminiClient(ctx, llm.GeminiConfig{Model: s.config.LLMModel})
		case "openai":
			client, err = llm.NewOpenAIClient(llm.OpenAIConfig{Model: s.config.LLMModel, BaseURL: s.config.LLMBaseURL})
		case "anthropic", "claude":
			client, err = llm.NewAnthropicClient(llm.AnthropicConfig{Model: s.config.LLMModel, BaseURL: s.config.LLMBaseURL})
		case "ollama":
			client, err = llm.NewOllamaClient(llm.OllamaConfig{BaseURL: s.config.LLMBaseURL, Model: s.config.LLMModel, Timeout: s.config.CallTimeout})
		default:
			return fmt.Errorf("unknown LLM backend %q", s.config.LLMBackend)
		}
		if err != nil {
			return err
		}
		s.logger.Info("using LLM backend", "backend", s.config.LLMBackend)
	}

	rc := llm.DefaultResilienceConfig()
	rc.Timeout = s.config.CallTimeout
	rc.Attempts = s.config.RetryAttempts
	s.client = llm.NewResilient(client, rc)
	return nil
}

// initTracer sets up OTLP export to the configured collector.
//
// # Limitations
//
//   - Uses an insecure gRPC connection (appropriate for a local collector)
func (s *Service) initTracer(ctx context.Context) (func(context.Context), error) {
	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter))

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown tracer provider", "error", err)
		}
		conn.Close()
	}
	return cleanup, nil
}

// serveMetrics exposes the Prometheus registry until ctx is cancelled.
func (s *Service) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{Registry: s.reg}))
	srv := &http.Server{
		Addr:              s.config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("metrics listener started", "addr", s.config.MetricsAddr)

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics listener: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics listener shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return nil
}
