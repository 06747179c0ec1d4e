// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the service configuration from environment
// variables with safe defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

// Settings holds all runtime configuration for the query service.
//
// Description:
//
//	Loaded from environment variables at startup via Load(). All fields
//	have safe defaults (all resolution stages enabled, cache bounded at
//	1000 entries with a one hour TTL).
//
// Thread Safety: Settings is a value type. Safe to copy and share after loading.
type Settings struct {
	// CacheEnabled controls the response cache stage.
	// Env: UQ_CACHE_ENABLED (default: "true")
	CacheEnabled bool

	// CacheMaxSize bounds the number of cached responses.
	// Env: UQ_CACHE_MAX_SIZE (default: 1000)
	CacheMaxSize int

	// CacheTTL is the cached response lifetime.
	// Env: UQ_CACHE_TTL_SECONDS (default: 3600)
	CacheTTL time.Duration

	// PrecompiledEnabled controls the pattern matching stage.
	// Env: UQ_PRECOMPILED_ENABLED (default: "true")
	PrecompiledEnabled bool

	// ValidationEnabled controls result validation after engine
	// resolution.
	// Env: UQ_VALIDATION_ENABLED (default: "true")
	ValidationEnabled bool

	// MaxConversationHistory is the number of recent turns folded into
	// the engine context.
	// Env: UQ_MAX_CONVERSATION_HISTORY (default: 4)
	MaxConversationHistory int

	// JournalDir is the on-disk location of the query journal. Empty
	// disables journaling.
	// Env: UQ_JOURNAL_DIR (default: "")
	JournalDir string

	// JournalTTL is how long journal records are retained.
	// Env: UQ_JOURNAL_TTL_HOURS (default: 168 = 7 days)
	JournalTTL time.Duration
}

// Load reads configuration from environment variables.
//
// Outputs:
//   - Settings: Fully populated configuration.
func Load() Settings {
	return Settings{
		CacheEnabled:           envBool("UQ_CACHE_ENABLED", true),
		CacheMaxSize:           envInt("UQ_CACHE_MAX_SIZE", 1000),
		CacheTTL:               time.Duration(envInt("UQ_CACHE_TTL_SECONDS", 3600)) * time.Second,
		PrecompiledEnabled:     envBool("UQ_PRECOMPILED_ENABLED", true),
		ValidationEnabled:      envBool("UQ_VALIDATION_ENABLED", true),
		MaxConversationHistory: envInt("UQ_MAX_CONVERSATION_HISTORY", 4),
		JournalDir:             os.Getenv("UQ_JOURNAL_DIR"),
		JournalTTL:             time.Duration(envInt("UQ_JOURNAL_TTL_HOURS", 168)) * time.Hour,
	}
}

// envBool reads a boolean environment variable with a default value.
func envBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// envInt reads an integer environment variable with a default value.
func envInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
