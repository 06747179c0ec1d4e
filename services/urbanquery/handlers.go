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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDHeader carries the caller-supplied request correlation ID.
const requestIDHeader = "X-Request-ID"

type contextKey string

const requestIDContextKey contextKey = "urbanquery.request_id"

// getOrCreateRequestID returns the caller's X-Request-ID header or
// generates a fresh UUID when absent.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader(requestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

// ContextWithRequestID attaches a request correlation ID to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext retrieves the request correlation ID, or "" when
// none was attached.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// =============================================================================
// Handlers
// =============================================================================

// Handlers wires the shared Processor to the HTTP surface.
//
// Thread Safety: Handlers is safe for concurrent use; it holds only the
// long-lived processor.
type Handlers struct {
	processor *Processor
}

// NewHandlers creates the handler set around the shared processor.
func NewHandlers(p *Processor) *Handlers {
	return &Handlers{processor: p}
}

// HandleQuery handles POST /v1/query.
//
// Description:
//
//	Resolves a natural language question through the pipeline. Always
//	returns 200 with the uniform envelope for pipeline outcomes,
//	including engine failure; only a malformed request body produces
//	400.
//
// Response:
//
//	200 OK: QueryResponse
//	400 Bad Request: missing or malformed question
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleQuery(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleQuery")

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Rejecting malformed query request", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "question is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	ctx := ContextWithRequestID(c.Request.Context(), requestID)
	resp := h.processor.Process(ctx, req)

	logger.Info("Query resolved",
		slog.Bool("success", resp.Success),
		slog.Bool("cached", resp.Cached),
		slog.Bool("precompiled", resp.Precompiled),
		slog.Float64("processing_time_seconds", resp.ProcessingTime),
	)

	c.Header(requestIDHeader, requestID)
	c.JSON(http.StatusOK, resp)
}

// HandleStatus handles GET /v1/status.
func (h *Handlers) HandleStatus(c *gin.Context) {
	status := h.processor.Status()
	if !IsWarmupComplete() {
		status.Status = "warming_up"
	}
	c.JSON(http.StatusOK, status)
}

// HandleConfig handles GET /v1/config. Secrets are never exposed here.
func (h *Handlers) HandleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.processor.Config())
}

// HandleCacheStats handles GET /v1/cache/stats.
func (h *Handlers) HandleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.processor.GetCacheStats())
}

// HandleCacheClear handles POST /v1/cache/clear.
func (h *Handlers) HandleCacheClear(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	h.processor.ClearCache()
	slog.Info("Cache cleared via admin endpoint", slog.String("request_id", requestID))
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared successfully"})
}

// HandleHealth handles GET /v1/health. Liveness only; readiness is
// HandleReady.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /v1/ready. Reports 503 until engine warmup
// has completed.
func (h *Handlers) HandleReady(c *gin.Context) {
	if !IsWarmupComplete() {
		c.Header("Retry-After", "30")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "warming_up",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// HandleDebugCache handles GET /v1/debug/cache. Same payload as the
// admin stats endpoint plus the raw entry count, for operator
// inspection.
func (h *Handlers) HandleDebugCache(c *gin.Context) {
	stats := h.processor.GetCacheStats()
	c.JSON(http.StatusOK, gin.H{
		"stats": stats,
	})
}

// HandleDebugJournal handles GET /v1/debug/journal.
//
// Query Parameters:
//
//	limit: Maximum records to return, default 20 (optional)
//
// Response:
//
//	200 OK: recent journal records, newest first
//	404 Not Found: journaling disabled
func (h *Handlers) HandleDebugJournal(c *gin.Context) {
	store := h.processor.Journal()
	if store == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "query journal is not enabled",
			Code:  "JOURNAL_DISABLED",
		})
		return
	}

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := store.Recent(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Journal read failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "failed to read journal",
			Code:  "JOURNAL_READ_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(records),
		"records": records,
	})
}
