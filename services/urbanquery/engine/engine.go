// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine provides the reasoning backends that resolve natural
// language questions the fast paths could not answer. Backends speak to
// their model providers over raw net/http without third-party SDKs.
package engine

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "urbanquery",
		Subsystem: "engine",
		Name:      "request_duration_seconds",
		Help:      "Latency of reasoning engine resolutions.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"provider"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "urbanquery",
		Subsystem: "engine",
		Name:      "request_failures_total",
		Help:      "Reasoning engine resolutions that returned an error.",
	}, []string{"provider"})
)

// =============================================================================
// System Prompt
// =============================================================================

// systemPrompt instructs the model on the urban data schema and the
// querying conventions the validator later checks.
//
//go:embed system_prompt.txt
var systemPrompt string

// =============================================================================
// Interfaces
// =============================================================================

// Step is one intermediate reasoning action taken while resolving a
// question, surfaced for transparency in the response envelope.
type Step struct {
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of a reasoning engine resolution.
type Result struct {
	// Output is the final natural language answer.
	Output string

	// IntermediateSteps records the reasoning trace when the provider
	// exposes one. May be empty.
	IntermediateSteps []Step
}

// ReasoningEngine resolves a natural language question against the
// urban data schema.
//
// Description:
//
//	Implementations are opaque to the caller: the processor hands over
//	the question plus any conversation context and receives a final
//	answer. A nil *Result with a nil error is a contract violation.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ReasoningEngine interface {
	// Resolve answers the question. The input already carries any
	// conversation context the caller wants the engine to see.
	Resolve(ctx context.Context, input string) (*Result, error)

	// Model reports the provider model identifier for the response
	// envelope and logs.
	Model() string
}

// Warmer is implemented by engines that benefit from a readiness probe
// before serving traffic.
type Warmer interface {
	Warm(ctx context.Context) error
}

// =============================================================================
// Factory
// =============================================================================

// NewFromEnv constructs the reasoning engine selected by
// UQ_ENGINE_PROVIDER ("openai" or "ollama", default "openai").
//
// Outputs:
//   - ReasoningEngine: The configured backend.
//   - error: Non-nil if the provider is unknown or its required
//     configuration is missing.
func NewFromEnv() (ReasoningEngine, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("UQ_ENGINE_PROVIDER")))
	if provider == "" {
		provider = "openai"
	}

	switch provider {
	case "openai":
		return NewOpenAIEngine()
	case "ollama":
		return NewOllamaEngine()
	default:
		return nil, fmt.Errorf("engine: unknown provider %q (want openai or ollama)", provider)
	}
}

// composeMessages builds the provider-neutral message list: the schema
// system prompt followed by the caller's contextualized question.
func composeMessages(input string) []chatMessage {
	return []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: input},
	}
}

// chatMessage is the provider-neutral message shape both backends
// translate to their wire format.
type chatMessage struct {
	Role    string
	Content string
}

func logResolveStart(provider, model string, inputLen int) {
	slog.Debug("Resolving question via reasoning engine",
		slog.String("provider", provider),
		slog.String("model", model),
		slog.Int("input_len", inputLen),
	)
}
