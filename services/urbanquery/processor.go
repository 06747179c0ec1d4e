// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package urbanquery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/UrbanQuery/services/urbanquery/cache"
	"github.com/AleutianAI/UrbanQuery/services/urbanquery/config"
	"github.com/AleutianAI/UrbanQuery/services/urbanquery/engine"
	"github.com/AleutianAI/UrbanQuery/services/urbanquery/journal"
	"github.com/AleutianAI/UrbanQuery/services/urbanquery/precompiled"
	"github.com/AleutianAI/UrbanQuery/services/urbanquery/validate"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "urbanquery",
		Subsystem: "processor",
		Name:      "resolutions_total",
		Help:      "Query resolutions by terminal outcome.",
	}, []string{"outcome"})

	resolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "urbanquery",
		Subsystem: "processor",
		Name:      "resolution_duration_seconds",
		Help:      "End to end latency of query resolution.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)

// tracerName identifies processor spans in traces.
const tracerName = "aleutian.urbanquery"

// sqlStatementRe pulls a SELECT statement out of reasoning traces and
// answers so the safety gate can inspect it.
var sqlStatementRe = regexp.MustCompile(`(?is)\bselect\b[^;` + "`" + `]+`)

// =============================================================================
// Processor
// =============================================================================

// Processor coordinates the three stage resolution pipeline.
//
// # Description
//
// One Processor instance is constructed at startup and shared by all
// request handlers. Resolution is strictly sequential short-circuiting:
// precompiled pattern match, then response cache, then reasoning
// engine. The engine call is the only slow step; everything before it
// is in-memory. Engine results pass through validation (non-blocking)
// and are cached only on success.
//
// # Thread Safety
//
// Safe for concurrent use. The cache guards its own state; all other
// components are stateless or read-only after construction.
type Processor struct {
	settings  config.Settings
	cache     *cache.QueryCache
	matcher   *precompiled.Matcher
	validator *validate.Validator
	engine    engine.ReasoningEngine
	journal   *journal.Store
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes a Processor. Used by tests to inject fakes.
type Option func(*Processor)

// WithLogger sets the processor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithCache replaces the response cache.
func WithCache(c *cache.QueryCache) Option {
	return func(p *Processor) { p.cache = c }
}

// WithMatcher replaces the pattern matcher.
func WithMatcher(m *precompiled.Matcher) Option {
	return func(p *Processor) { p.matcher = m }
}

// WithJournal attaches a query journal. A nil store disables
// journaling.
func WithJournal(j *journal.Store) Option {
	return func(p *Processor) { p.journal = j }
}

// WithClock replaces the wall clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates the shared pipeline instance.
//
// # Description
//
// Stages disabled in settings are left nil and skipped during
// resolution. The matcher loads the embedded catalog; a catalog error
// disables the precompiled stage with a warning rather than failing
// startup.
//
// # Inputs
//
//   - settings: Runtime configuration.
//   - eng: The reasoning engine fallback. Must not be nil.
//   - opts: Optional overrides.
//
// # Outputs
//
//   - *Processor: Ready-to-use pipeline. Never nil.
func NewProcessor(settings config.Settings, eng engine.ReasoningEngine, opts ...Option) *Processor {
	p := &Processor{
		settings: settings,
		engine:   eng,
		logger:   slog.Default(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	if settings.CacheEnabled && p.cache == nil {
		p.cache = cache.New(settings.CacheMaxSize, settings.CacheTTL, p.logger)
	}
	if settings.ValidationEnabled {
		p.validator = validate.NewValidator()
	}
	if settings.PrecompiledEnabled && p.matcher == nil {
		catalog, err := precompiled.GetCatalog()
		if err != nil {
			p.logger.Warn("Precompiled catalog unavailable, disabling pattern matching", "error", err)
		} else {
			p.matcher = precompiled.NewMatcher(catalog, p.logger)
		}
	}
	return p
}

// Process resolves one question through the pipeline.
//
// # Description
//
// Never returns an error: every outcome, including engine failure and
// internal panic, is reported through the uniform response envelope.
// Cancellation of ctx surfaces as an engine failure and is never
// cached.
//
// # Inputs
//
//   - ctx: Context for cancellation; honored by the engine call.
//   - req: The question plus optional context and conversation history.
//
// # Outputs
//
//   - QueryResponse: The uniform envelope. ProcessingTime covers the
//     whole resolution from pipeline entry.
//
// # Thread Safety
//
// Safe for concurrent use.
func (p *Processor) Process(ctx context.Context, req QueryRequest) (resp QueryResponse) {
	start := p.now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "urbanquery.Process",
		oteltrace.WithAttributes(attribute.Int("question_len", len(req.Question))))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic during query resolution", "panic", r)
			resp = p.errorResponse(req.Question, req.Context, fmt.Sprintf("internal error: %v", r), start)
			resolutionsTotal.WithLabelValues("error").Inc()
		}
		resolutionDuration.Observe(p.now().Sub(start).Seconds())
	}()

	p.logger.Info("Processing query", slog.Int("question_len", len(req.Question)))

	fullContext := p.buildContext(req.Context, req.ConversationHistory)

	// Stage 1: precompiled pattern match.
	if p.matcher != nil {
		if match := p.matcher.FindMatch(req.Question); match != nil {
			p.logger.Info("Precompiled query match found", slog.String("name", match.Name))
			span.SetAttributes(attribute.String("outcome", "precompiled"))
			resolutionsTotal.WithLabelValues("precompiled").Inc()

			answer := fmt.Sprintf("Found precompiled query for: %s. SQL: %s", req.Question, match.SQL)
			resp := p.successResponse(req.Question, fullContext, answer, start)
			resp.Cached = true
			resp.Precompiled = true
			p.journalRecord(ctx, req, resp, "precompiled")
			return resp
		}
	}

	// Stage 2: response cache.
	if p.cache != nil {
		if payload, ok := p.cache.Get(req.Question, fullContext); ok {
			p.logger.Info("Cache hit - returning cached result")
			span.SetAttributes(attribute.String("outcome", "cached"))
			resolutionsTotal.WithLabelValues("cached").Inc()

			answer, _ := payload.(string)
			resp := p.successResponse(req.Question, fullContext, answer, start)
			resp.Cached = true
			p.journalRecord(ctx, req, resp, "cache")
			return resp
		}
	}

	// Stage 3: reasoning engine.
	p.logger.Info("Cache miss - delegating to reasoning engine")
	result, err := p.engine.Resolve(ctx, p.buildEngineInput(req.Question, fullContext))
	if err != nil {
		p.logger.Error("Reasoning engine failed", "error", err)
		span.SetAttributes(attribute.String("outcome", "error"))
		resolutionsTotal.WithLabelValues("error").Inc()

		resp := p.errorResponse(req.Question, fullContext, err.Error(), start)
		p.journalRecord(ctx, req, resp, "engine")
		return resp
	}

	warnings := p.validateAnswer(result)

	if p.cache != nil {
		p.cache.Set(req.Question, result.Output, fullContext)
		p.logger.Info("Result cached for future queries")
	}

	span.SetAttributes(attribute.String("outcome", "engine"))
	resolutionsTotal.WithLabelValues("engine").Inc()

	resp = p.successResponse(req.Question, fullContext, result.Output, start)
	resp.ValidationWarnings = warnings
	resp.IntermediateSteps = result.IntermediateSteps
	p.journalRecord(ctx, req, resp, "engine")
	return resp
}

// =============================================================================
// Pipeline Helpers
// =============================================================================

// buildContext concatenates the caller-supplied context with a
// transcript of the most recent conversation turns. The result is used
// both as the cache fingerprint's context component and as the engine
// input augmentation.
func (p *Processor) buildContext(context string, history []ConversationTurn) string {
	var parts []string

	if context != "" {
		parts = append(parts, context)
	}

	if len(history) > 0 {
		maxHistory := p.settings.MaxConversationHistory
		if maxHistory > 0 && len(history) > maxHistory {
			history = history[len(history)-maxHistory:]
		}

		var b strings.Builder
		b.WriteString("Previous conversation:\n")
		for i, turn := range history {
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, turn.Role, turn.Content)
		}
		parts = append(parts, b.String())
	}

	return strings.Join(parts, "\n\n")
}

// buildEngineInput augments the question with the enriched context.
func (p *Processor) buildEngineInput(question, fullContext string) string {
	if fullContext == "" {
		return question
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", fullContext, question)
}

// validateAnswer runs the safety gate over any SQL the engine surfaced
// in its reasoning trace or answer. Hard errors are attached as
// warnings rather than vetoing the answer; enforcement is deliberately
// soft pending a product decision (see DESIGN.md).
func (p *Processor) validateAnswer(result *engine.Result) []string {
	if p.validator == nil {
		return nil
	}

	var warnings []string
	var results []validate.Result
	for _, sql := range extractSQL(result) {
		vr := p.validator.SQL(sql)
		results = append(results, vr)
		warnings = append(warnings, vr.Warnings...)
		for _, e := range vr.Errors {
			warnings = append(warnings, "validation error: "+e)
		}
	}
	if len(warnings) > 0 {
		p.logger.Warn("Validation issues on engine result",
			slog.Int("count", len(warnings)),
			slog.String("report", validate.Report(results)))
	}
	return warnings
}

// extractSQL collects query text for the safety gate. Reasoning trace
// details are inspected whole so a mutating statement chained after a
// SELECT cannot slip past; the answer text is only scanned when the
// trace carries nothing.
func extractSQL(result *engine.Result) []string {
	var statements []string
	for _, step := range result.IntermediateSteps {
		if strings.TrimSpace(step.Detail) != "" {
			statements = append(statements, step.Detail)
		}
	}
	if len(statements) == 0 {
		statements = sqlStatementRe.FindAllString(result.Output, -1)
	}
	return statements
}

func (p *Processor) successResponse(question, fullContext, answer string, start time.Time) QueryResponse {
	return QueryResponse{
		Success:        true,
		Answer:         answer,
		Question:       question,
		Context:        fullContext,
		ProcessingTime: roundSeconds(p.now().Sub(start)),
		Timestamp:      float64(p.now().UnixNano()) / 1e9,
		Model:          p.engine.Model(),
	}
}

func (p *Processor) errorResponse(question, fullContext, errMsg string, start time.Time) QueryResponse {
	return QueryResponse{
		Success:        false,
		Question:       question,
		Context:        fullContext,
		Error:          errMsg,
		ProcessingTime: roundSeconds(p.now().Sub(start)),
		Timestamp:      float64(p.now().UnixNano()) / 1e9,
		Model:          p.engine.Model(),
	}
}

// journalRecord writes the resolution to the audit journal. Failure is
// logged and never affects the response.
func (p *Processor) journalRecord(ctx context.Context, req QueryRequest, resp QueryResponse, source string) {
	if p.journal == nil {
		return
	}
	rec := journal.Record{
		RequestID:      RequestIDFromContext(ctx),
		Question:       req.Question,
		Context:        resp.Context,
		Answer:         resp.Answer,
		Source:         source,
		Success:        resp.Success,
		Model:          resp.Model,
		Warnings:       resp.ValidationWarnings,
		ProcessingTime: resp.ProcessingTime,
		Timestamp:      p.now(),
	}
	if err := p.journal.Append(ctx, rec); err != nil {
		p.logger.Warn("Journal write failed", "error", err)
	}
}

// roundSeconds reports elapsed wall-clock time rounded to milliseconds.
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

// =============================================================================
// Administrative Surface
// =============================================================================

// GetCacheStats reports cache statistics for the admin endpoint. A
// disabled cache reports Enabled=false with zero counts.
func (p *Processor) GetCacheStats() CacheStats {
	if p.cache == nil {
		return CacheStats{Enabled: false}
	}
	stats := p.cache.GetStats()
	return CacheStats{
		TotalEntries:   stats.Total,
		ValidEntries:   stats.Valid,
		ExpiredEntries: stats.Expired,
		MaxSize:        stats.MaxSize,
		TTLSeconds:     int(stats.TTLSeconds),
		Enabled:        true,
	}
}

// ClearCache empties the response cache. No-op when the cache is
// disabled.
func (p *Processor) ClearCache() {
	if p.cache != nil {
		p.cache.Clear()
		p.logger.Info("Response cache cleared")
	}
}

// Status reports service health and stage configuration.
func (p *Processor) Status() StatusResponse {
	precompiledCount := 0
	if p.matcher != nil {
		precompiledCount = p.matcher.Size()
	}
	return StatusResponse{
		Status:             "operational",
		Model:              p.engine.Model(),
		CacheEnabled:       p.cache != nil,
		PrecompiledEnabled: p.matcher != nil,
		ValidationEnabled:  p.validator != nil,
		PrecompiledQueries: precompiledCount,
		CacheStats:         p.GetCacheStats(),
	}
}

// Config reports the non-secret runtime configuration.
func (p *Processor) Config() ConfigResponse {
	return ConfigResponse{
		Model:                  p.engine.Model(),
		CacheEnabled:           p.cache != nil,
		CacheMaxSize:           p.settings.CacheMaxSize,
		CacheTTLSeconds:        int(p.settings.CacheTTL.Seconds()),
		PrecompiledEnabled:     p.matcher != nil,
		ValidationEnabled:      p.validator != nil,
		MaxConversationHistory: p.settings.MaxConversationHistory,
		JournalEnabled:         p.journal != nil,
	}
}

// Journal exposes the audit store for the debug surface. May be nil.
func (p *Processor) Journal() *journal.Store {
	return p.journal
}
