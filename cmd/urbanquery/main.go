// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command urbanquery starts the UrbanQuery API server.
//
// UrbanQuery answers natural language questions about Barcelona urban
// data through a three stage resolution pipeline:
//   - Precompiled pattern matching (instant, deterministic)
//   - Bounded LRU response cache with TTL expiry
//   - Reasoning engine fallback (OpenAI or Ollama)
//
// Usage:
//
//	go run ./cmd/urbanquery
//	go run ./cmd/urbanquery -port 9090
//
// With OpenAI:
//
//	OPENAI_API_KEY=sk-... OPENAI_MODEL=gpt-4o-mini go run ./cmd/urbanquery
//
// With Ollama:
//
//	UQ_ENGINE_PROVIDER=ollama OLLAMA_BASE_URL=http://localhost:11434 go run ./cmd/urbanquery
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/health
//
//	# Ask a question
//	curl -X POST http://localhost:8080/v1/query \
//	  -H "Content-Type: application/json" \
//	  -d '{"question": "What is the population of Barcelona?"}'
//
//	# Cache statistics
//	curl http://localhost:8080/v1/cache/stats | jq
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/UrbanQuery/services/urbanquery"
	"github.com/AleutianAI/UrbanQuery/services/urbanquery/config"
	"github.com/AleutianAI/UrbanQuery/services/urbanquery/engine"
	"github.com/AleutianAI/UrbanQuery/services/urbanquery/journal"
)

// WarmupGuardMiddleware returns 503 Service Unavailable for the query
// endpoint while the reasoning engine warmup is still in progress.
//
// Description:
//
//	Without this guard, early requests that miss the fast paths would
//	hit a cold model and receive slow or empty responses. Health,
//	status, and admin endpoints are not affected (different routes).
//
// Thread Safety: This middleware is safe for concurrent use.
func WarmupGuardMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !urbanquery.IsWarmupComplete() {
			ctx := c.Request.Context()
			_, span := otel.Tracer("aleutian.urbanquery").Start(ctx, "warmup_guard.reject",
				oteltrace.WithAttributes(
					attribute.String("path", c.Request.URL.Path),
					attribute.String("method", c.Request.Method),
					attribute.Int("http.status_code", http.StatusServiceUnavailable),
				),
			)
			defer span.End()

			slog.Warn("Query rejected: engine warmup in progress",
				slog.String("path", c.Request.URL.Path))

			span.SetStatus(codes.Error, "service unavailable during warmup")

			c.Header("Retry-After", "30")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "Engine warmup in progress",
				"code":    "SERVICE_WARMING_UP",
				"message": "The reasoning engine is still loading. Please retry in 30 seconds.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// unavailableEngine stands in when no reasoning backend could be
// configured. Precompiled and cached resolutions keep working; engine
// fallbacks fail with a clear message.
type unavailableEngine struct {
	reason error
}

func (u unavailableEngine) Resolve(ctx context.Context, input string) (*engine.Result, error) {
	return nil, fmt.Errorf("reasoning engine unavailable: %w", u.reason)
}

func (u unavailableEngine) Model() string { return "unavailable" }

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
		slog.SetLogLoggerLevel(slog.LevelDebug)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so trace context flows from incoming
	// headers through all handlers and the warmup guard.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	settings := config.Load()

	eng, err := engine.NewFromEnv()
	engineReady := err == nil
	if err != nil {
		slog.Warn("Reasoning engine not available, serving precompiled and cached answers only",
			slog.String("error", err.Error()))
		eng = unavailableEngine{reason: err}
	}

	// Query journal with graceful degradation: resolution works without it.
	var store *journal.Store
	if settings.JournalDir != "" {
		store, err = journal.Open(settings.JournalDir, settings.JournalTTL, slog.Default())
		if err != nil {
			slog.Warn("Query journal unavailable, auditing disabled",
				slog.String("dir", settings.JournalDir),
				slog.String("error", err.Error()))
			store = nil
		}
	}

	processor := urbanquery.NewProcessor(settings, eng, urbanquery.WithJournal(store))
	handlers := urbanquery.NewHandlers(processor)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutian-urbanquery"))
	if *debug {
		router.Use(gin.Logger())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	urbanquery.RegisterRoutes(v1, handlers, WarmupGuardMiddleware())

	startWarmup(eng, engineReady)
	printBanner(*port, engineReady)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting UrbanQuery server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down UrbanQuery server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Server shutdown error", slog.String("error", err.Error()))
		}
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close query journal", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// startWarmup probes the engine in the background and flips the warmup
// registry when done. Engines without a warmup hook are ready
// immediately.
func startWarmup(eng engine.ReasoningEngine, engineReady bool) {
	warmer, ok := eng.(engine.Warmer)
	if !engineReady || !ok {
		urbanquery.MarkWarmupComplete()
		return
	}

	slog.Info("Server starting, engine warmup in progress", slog.String("model", eng.Model()))

	go func() {
		// Panic recovery ensures MarkWarmupComplete is always called.
		// Without it, a panic here would leave the server permanently
		// in "warming up" state.
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				slog.Error("Panic in warmup goroutine recovered",
					slog.Any("panic", r),
					slog.String("stack", string(buf[:n])),
				)
				urbanquery.MarkWarmupComplete()
			}
		}()

		warmupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		start := time.Now()
		if err := warmer.Warm(warmupCtx); err != nil {
			slog.Warn("Engine warmup failed, first queries may be slow",
				slog.String("model", eng.Model()),
				slog.String("error", err.Error()),
				slog.Duration("duration", time.Since(start)))
		} else {
			slog.Info("Engine warmup completed",
				slog.String("model", eng.Model()),
				slog.Duration("duration", time.Since(start)))
		}

		urbanquery.MarkWarmupComplete()
		slog.Info("Server ready to accept queries", slog.String("model", eng.Model()))
	}()
}

func printBanner(port int, engineReady bool) {
	engineStatus := "DISABLED (set OPENAI_API_KEY or UQ_ENGINE_PROVIDER=ollama)"
	if engineReady {
		engineStatus = "ENABLED"
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                       URBANQUERY SERVER                           ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Natural language questions over Barcelona urban data.            ║
║  Reasoning Engine: %-46s ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/health                     │  ║
║  │                                                             │  ║
║  │ # Ask a question                                            │  ║
║  │ curl -X POST http://localhost:%d/v1/query \            │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"question": "What is the population of Barcelona?"}' │  ║
║  │                                                             │  ║
║  │ # Cache statistics                                          │  ║
║  │ curl http://localhost:%d/v1/cache/stats | jq           │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Core: /v1/query, /v1/status, /v1/config                     ║
║  ├── Cache: /v1/cache/stats, /v1/cache/clear                     ║
║  ├── Debug: /v1/debug/cache, /v1/debug/journal                   ║
║  └── Ops: /v1/health, /v1/ready, /metrics                        ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, engineStatus, port, port, port)
}
