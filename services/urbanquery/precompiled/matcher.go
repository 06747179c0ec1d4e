// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package precompiled

import (
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	matcherHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "urbanquery",
		Subsystem: "precompiled",
		Name:      "hits_total",
		Help:      "Precompiled catalog matches by entry name",
	}, []string{"entry"})

	matcherMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "urbanquery",
		Subsystem: "precompiled",
		Name:      "misses_total",
		Help:      "Questions that matched no precompiled entry",
	})
)

// =============================================================================
// Matcher
// =============================================================================

// Matcher resolves questions against the precompiled catalog.
//
// # Description
//
// Normalization is lowercasing plus whitespace trim, with no stemming, no
// tokenization. Matching is substring containment, first structural
// match wins by catalog order. A miss is a normal outcome (fall through
// to the next resolution tier), never an error.
//
// # Thread Safety
//
// Safe for concurrent use; all state is read-only after construction.
type Matcher struct {
	catalog *Catalog
	logger  *slog.Logger

	// lowered holds each entry's patterns pre-lowercased, indexed in
	// catalog order.
	lowered [][]string
}

// NewMatcher creates a Matcher over the given catalog.
//
// # Inputs
//
//   - catalog: The ordered query catalog. Must not be nil.
//   - logger: Logger for match diagnostics. May be nil.
//
// # Thread Safety
//
// The returned Matcher is safe for concurrent use.
func NewMatcher(catalog *Catalog, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}

	lowered := make([][]string, len(catalog.Queries))
	for i, q := range catalog.Queries {
		lowered[i] = make([]string, len(q.Patterns))
		for j, p := range q.Patterns {
			lowered[i][j] = strings.ToLower(p)
		}
	}

	return &Matcher{catalog: catalog, logger: logger, lowered: lowered}
}

// FindMatch returns the first catalog entry whose pattern set contains a
// substring of the normalized question, or nil on a miss.
//
// # Description
//
// Pure function over catalog + input: no side effects beyond metrics
// and debug logging. Order-stable: a fixed catalog always yields the
// same entry for the same question.
//
// # Thread Safety
//
// Safe for concurrent use.
func (m *Matcher) FindMatch(question string) *Query {
	normalized := strings.ToLower(strings.TrimSpace(question))
	if normalized == "" {
		matcherMissesTotal.Inc()
		return nil
	}

	for i := range m.catalog.Queries {
		for _, pattern := range m.lowered[i] {
			if strings.Contains(normalized, pattern) {
				q := &m.catalog.Queries[i]
				matcherHitsTotal.WithLabelValues(q.Name).Inc()
				m.logger.Debug("precompiled match",
					slog.String("entry", q.Name),
					slog.String("pattern", pattern),
				)
				return q
			}
		}
	}

	matcherMissesTotal.Inc()
	return nil
}

// Size returns the number of catalog entries, for the status endpoint.
func (m *Matcher) Size() int {
	return len(m.catalog.Queries)
}
