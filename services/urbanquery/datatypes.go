// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package urbanquery resolves natural language questions about urban
// data through a three stage pipeline: precompiled pattern matching,
// a bounded response cache, and a reasoning engine fallback.
package urbanquery

import "github.com/AleutianAI/UrbanQuery/services/urbanquery/engine"

// =============================================================================
// Request Types
// =============================================================================

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	// Question is the natural language question. Required.
	Question string `json:"question" binding:"required"`

	// Context carries free-form disambiguation text appended to the
	// question for engine resolution and cache identity.
	Context string `json:"context,omitempty"`

	// ConversationHistory holds prior turns for follow-up questions.
	ConversationHistory []ConversationTurn `json:"conversation_history,omitempty"`
}

// ConversationTurn is one prior exchange in a multi-turn conversation.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// =============================================================================
// Response Types
// =============================================================================

// QueryResponse is the uniform envelope for every query outcome,
// including failures.
type QueryResponse struct {
	Success            bool          `json:"success"`
	Answer             string        `json:"answer"`
	Question           string        `json:"question"`
	Context            string        `json:"context,omitempty"`
	Cached             bool          `json:"cached"`
	Precompiled        bool          `json:"precompiled"`
	ProcessingTime     float64       `json:"processing_time_seconds"`
	ValidationWarnings []string      `json:"validation_warnings,omitempty"`
	IntermediateSteps  []engine.Step `json:"intermediate_steps,omitempty"`
	Timestamp          float64       `json:"timestamp"`
	Model              string        `json:"model,omitempty"`
	Error              string        `json:"error,omitempty"`
}

// StatusResponse reports service health and stage configuration for
// GET /status.
type StatusResponse struct {
	Status             string     `json:"status"`
	Model              string     `json:"model"`
	CacheEnabled       bool       `json:"cache_enabled"`
	PrecompiledEnabled bool       `json:"precompiled_enabled"`
	ValidationEnabled  bool       `json:"validation_enabled"`
	PrecompiledQueries int        `json:"precompiled_queries"`
	CacheStats         CacheStats `json:"cache_stats"`
}

// CacheStats is the wire shape of cache statistics for GET /cache/stats
// and the status envelope.
type CacheStats struct {
	TotalEntries   int  `json:"total_entries"`
	ValidEntries   int  `json:"valid_entries"`
	ExpiredEntries int  `json:"expired_entries"`
	MaxSize        int  `json:"max_size"`
	TTLSeconds     int  `json:"ttl_seconds"`
	Enabled        bool `json:"enabled"`
}

// ConfigResponse exposes the non-secret runtime configuration for
// GET /config.
type ConfigResponse struct {
	Model                  string `json:"model"`
	CacheEnabled           bool   `json:"cache_enabled"`
	CacheMaxSize           int    `json:"cache_max_size"`
	CacheTTLSeconds        int    `json:"cache_ttl_seconds"`
	PrecompiledEnabled     bool   `json:"precompiled_enabled"`
	ValidationEnabled      bool   `json:"validation_enabled"`
	MaxConversationHistory int    `json:"max_conversation_history"`
	JournalEnabled         bool   `json:"journal_enabled"`
}

// ErrorResponse is the envelope for transport-level failures such as
// malformed request bodies.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
