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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/UrbanQuery/services/urbanquery/engine"
)

func setupTestRouter(t *testing.T, p *Processor) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(p), nil)
	return router
}

func postQuery(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest("POST", "/v1/query", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleQuerySuccess(t *testing.T) {
	p := NewProcessor(testSettings(), &stubEngine{})
	router := setupTestRouter(t, p)

	w := postQuery(t, router, `{"question": "how many libraries are in Sant Andreu?"}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "stub answer", resp.Answer)
	assert.Equal(t, "how many libraries are in Sant Andreu?", resp.Question)
	assert.False(t, resp.Cached)
	assert.False(t, resp.Precompiled)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHandleQueryPrecompiled(t *testing.T) {
	p := NewProcessor(testSettings(), &stubEngine{})
	router := setupTestRouter(t, p)

	w := postQuery(t, router, `{"question": "population of barcelona"}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Precompiled)
	assert.True(t, resp.Cached)
}

func TestHandleQueryMissingQuestion(t *testing.T) {
	p := NewProcessor(testSettings(), &stubEngine{})
	router := setupTestRouter(t, p)

	for _, body := range []string{`{}`, `{"question": ""}`, `not json`} {
		w := postQuery(t, router, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", body)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "INVALID_REQUEST", resp.Code)
	}
}

func TestHandleQueryPropagatesRequestID(t *testing.T) {
	p := NewProcessor(testSettings(), &stubEngine{})
	router := setupTestRouter(t, p)

	req, err := http.NewRequest("POST", "/v1/query",
		bytes.NewBufferString(`{"question": "anything at all"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-42")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestHandleQueryEngineFailureStill200(t *testing.T) {
	eng := &stubEngine{
		resolve: func(ctx context.Context, input string) (*engine.Result, error) {
			return nil, errors.New("engine offline")
		},
	}
	p := NewProcessor(testSettings(), eng)
	router := setupTestRouter(t, p)

	w := postQuery(t, router, `{"question": "is anything running?"}`)

	// Pipeline failures keep the transport-level contract: 200 with a
	// failure envelope.
	require.Equal(t, http.StatusOK, w.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "engine offline")
}

func TestHandleStatus(t *testing.T) {
	MarkWarmupComplete()
	t.Cleanup(resetWarmupForTest)

	p := NewProcessor(testSettings(), &stubEngine{})
	router := setupTestRouter(t, p)

	req, _ := http.NewRequest("GET", "/v1/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "operational", resp.Status)
	assert.Equal(t, "stub-model", resp.Model)
	assert.Equal(t, 3, resp.PrecompiledQueries)
	assert.True(t, resp.CacheStats.Enabled)
}

func TestHandleStatusDuringWarmup(t *testing.T) {
	resetWarmupForTest()
	t.Cleanup(resetWarmupForTest)

	p := NewProcessor(testSettings(), &stubEngine{})
	router := setupTestRouter(t, p)

	req, _ := http.NewRequest("GET", "/v1/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "warming_up", resp.Status)
}

func TestHandleConfig(t *testing.T) {
	p := NewProcessor(testSettings(), &stubEngine{})
	router := setupTestRouter(t, p)

	req, _ := http.NewRequest("GET", "/v1/config", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp ConfigResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 10, resp.CacheMaxSize)
	assert.Equal(t, 3600, resp.CacheTTLSeconds)
	assert.False(t, resp.JournalEnabled)
}

func TestHandleCacheStatsAndClear(t *testing.T) {
	p := NewProcessor(testSettings(), &stubEngine{})
	router := setupTestRouter(t, p)

	postQuery(t, router, `{"question": "fill the cache with this"}`)

	req, _ := http.NewRequest("GET", "/v1/cache/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var stats CacheStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalEntries)

	req, _ = http.NewRequest("POST", "/v1/cache/clear", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req, _ = http.NewRequest("GET", "/v1/cache/stats", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.TotalEntries)
}

func TestHandleHealthAndReady(t *testing.T) {
	resetWarmupForTest()
	t.Cleanup(resetWarmupForTest)

	p := NewProcessor(testSettings(), &stubEngine{})
	router := setupTestRouter(t, p)

	req, _ := http.NewRequest("GET", "/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "health is liveness only")

	req, _ = http.NewRequest("GET", "/v1/ready", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	MarkWarmupComplete()
	req, _ = http.NewRequest("GET", "/v1/ready", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleDebugJournalDisabled(t *testing.T) {
	p := NewProcessor(testSettings(), &stubEngine{})
	router := setupTestRouter(t, p)

	req, _ := http.NewRequest("GET", "/v1/debug/journal", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
