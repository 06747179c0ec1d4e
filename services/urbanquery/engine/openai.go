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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// =============================================================================
// OpenAI Wire Types
// =============================================================================

const defaultOpenAIBaseURL = "https://api.openai.com/v1/chat/completions"

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float32         `json:"temperature"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Choices []openaiChoice `json:"choices"`
	Error   *openaiError   `json:"error,omitempty"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// =============================================================================
// Engine Implementation
// =============================================================================

// OpenAIEngine implements ReasoningEngine against the OpenAI Chat
// Completions REST API using raw net/http.
//
// Thread Safety: OpenAIEngine is safe for concurrent use.
type OpenAIEngine struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewOpenAIEngine creates an OpenAIEngine from environment variables.
//
// Description:
//
//	Reads OPENAI_API_KEY and OPENAI_MODEL from the environment.
//	Defaults to "gpt-4o-mini" if OPENAI_MODEL is not set.
//
// Outputs:
//   - *OpenAIEngine: The configured engine.
//   - error: Non-nil if OPENAI_API_KEY is missing.
func NewOpenAIEngine() (*OpenAIEngine, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL")
	if apiKey == "" {
		slog.Warn("OpenAI API Key is empty. OpenAI engine will not function.")
		return nil, fmt.Errorf("openai: API key is missing (OPENAI_API_KEY)")
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI reasoning engine", "model", model)
	return &OpenAIEngine{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultOpenAIBaseURL,
	}, nil
}

// NewOpenAIEngineWithConfig creates an OpenAIEngine with explicit
// configuration. Useful for testing with mock servers.
func NewOpenAIEngineWithConfig(apiKey, model, baseURL string) *OpenAIEngine {
	return &OpenAIEngine{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// Model implements the ReasoningEngine interface.
func (o *OpenAIEngine) Model() string {
	return o.model
}

// Resolve implements ReasoningEngine.Resolve via the chat completions
// API.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - input: The contextualized question.
//
// Outputs:
//   - *Result: The final answer. OpenAI exposes no reasoning trace, so
//     IntermediateSteps is always empty.
//   - error: Non-nil if the request fails.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OpenAIEngine) Resolve(ctx context.Context, input string) (*Result, error) {
	logResolveStart("openai", o.model, len(input))
	timer := prometheus.NewTimer(requestDuration.WithLabelValues("openai"))
	defer timer.ObserveDuration()

	oaiMessages := make([]openaiMessage, 0, 2)
	for _, msg := range composeMessages(input) {
		oaiMessages = append(oaiMessages, openaiMessage{Role: msg.Role, Content: msg.Content})
	}

	reqBody, err := json.Marshal(openaiRequest{
		Model:       o.model,
		Messages:    oaiMessages,
		Temperature: 0,
	})
	if err != nil {
		requestFailures.WithLabelValues("openai").Inc()
		return nil, fmt.Errorf("openai: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL, bytes.NewBuffer(reqBody))
	if err != nil {
		requestFailures.WithLabelValues("openai").Inc()
		return nil, fmt.Errorf("openai: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		requestFailures.WithLabelValues("openai").Inc()
		return nil, fmt.Errorf("openai: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		requestFailures.WithLabelValues("openai").Inc()
		return nil, fmt.Errorf("openai: reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		requestFailures.WithLabelValues("openai").Inc()
		return nil, fmt.Errorf("openai: API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp openaiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		requestFailures.WithLabelValues("openai").Inc()
		return nil, fmt.Errorf("openai: parsing response JSON: %w", err)
	}

	if apiResp.Error != nil {
		requestFailures.WithLabelValues("openai").Inc()
		return nil, fmt.Errorf("openai: API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	if len(apiResp.Choices) == 0 {
		requestFailures.WithLabelValues("openai").Inc()
		return nil, fmt.Errorf("openai: returned no choices")
	}

	slog.Debug("Received OpenAI response",
		slog.String("finish_reason", apiResp.Choices[0].FinishReason),
		slog.Int("response_len", len(apiResp.Choices[0].Message.Content)),
	)

	return &Result{Output: apiResp.Choices[0].Message.Content}, nil
}
