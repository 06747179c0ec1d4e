// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// =============================================================================
// Ollama Wire Types
// =============================================================================

const defaultOllamaBaseURL = "http://localhost:11434"

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// =============================================================================
// Engine Implementation
// =============================================================================

// OllamaEngine implements ReasoningEngine against a local Ollama server
// using raw net/http.
//
// Thread Safety: OllamaEngine is safe for concurrent use.
type OllamaEngine struct {
	httpClient *http.Client
	model      string
	baseURL    string
}

// NewOllamaEngine creates an OllamaEngine from environment variables.
//
// Description:
//
//	Reads OLLAMA_BASE_URL and OLLAMA_MODEL from the environment.
//	Defaults to http://localhost:11434 and "llama3.1" respectively.
//
// Outputs:
//   - *OllamaEngine: The configured engine.
//   - error: Always nil; present for factory symmetry.
func NewOllamaEngine() (*OllamaEngine, error) {
	baseURL := strings.TrimRight(os.Getenv("OLLAMA_BASE_URL"), "/")
	model := os.Getenv("OLLAMA_MODEL")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if model == "" {
		model = "llama3.1"
		slog.Warn("OLLAMA_MODEL not set, defaulting to llama3.1")
	}
	slog.Info("Initializing Ollama reasoning engine",
		slog.String("model", model),
		slog.String("base_url", baseURL),
	)
	return &OllamaEngine{
		httpClient: &http.Client{Timeout: 300 * time.Second},
		model:      model,
		baseURL:    baseURL,
	}, nil
}

// NewOllamaEngineWithConfig creates an OllamaEngine with explicit
// configuration. Useful for testing with mock servers.
func NewOllamaEngineWithConfig(model, baseURL string) *OllamaEngine {
	return &OllamaEngine{
		httpClient: &http.Client{Timeout: 300 * time.Second},
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Model implements the ReasoningEngine interface.
func (o *OllamaEngine) Model() string {
	return o.model
}

// Resolve implements ReasoningEngine.Resolve via the Ollama chat API.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OllamaEngine) Resolve(ctx context.Context, input string) (*Result, error) {
	logResolveStart("ollama", o.model, len(input))
	timer := prometheus.NewTimer(requestDuration.WithLabelValues("ollama"))
	defer timer.ObserveDuration()

	msgs := make([]ollamaMessage, 0, 2)
	for _, msg := range composeMessages(input) {
		msgs = append(msgs, ollamaMessage{Role: msg.Role, Content: msg.Content})
	}

	reqBody, err := json.Marshal(ollamaRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   false,
		Options:  ollamaOptions{Temperature: 0},
	})
	if err != nil {
		requestFailures.WithLabelValues("ollama").Inc()
		return nil, fmt.Errorf("ollama: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/chat", bytes.NewBuffer(reqBody))
	if err != nil {
		requestFailures.WithLabelValues("ollama").Inc()
		return nil, fmt.Errorf("ollama: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		requestFailures.WithLabelValues("ollama").Inc()
		return nil, fmt.Errorf("ollama: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		requestFailures.WithLabelValues("ollama").Inc()
		return nil, fmt.Errorf("ollama: reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		requestFailures.WithLabelValues("ollama").Inc()
		return nil, fmt.Errorf("ollama: API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp ollamaResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		requestFailures.WithLabelValues("ollama").Inc()
		return nil, fmt.Errorf("ollama: parsing response JSON: %w", err)
	}

	if apiResp.Error != "" {
		requestFailures.WithLabelValues("ollama").Inc()
		return nil, fmt.Errorf("ollama: API error: %s", apiResp.Error)
	}

	return &Result{Output: apiResp.Message.Content}, nil
}

// Warm implements the Warmer interface by probing the Ollama version
// endpoint. Local model servers can take noticeable time to come up, so
// the service checks before reporting ready.
func (o *OllamaEngine) Warm(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", o.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("ollama: creating warmup request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: warmup probe failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: warmup probe returned status %d", resp.StatusCode)
	}
	slog.Info("Ollama warmup probe succeeded", slog.String("base_url", o.baseURL))
	return nil
}
