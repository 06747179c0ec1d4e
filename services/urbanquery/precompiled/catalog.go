// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package precompiled maps known question shapes to canned SQL and
// response templates, bypassing the reasoning engine entirely.
//
// The catalog is a small, ordered list of pattern sets evaluated by a
// deterministic substring scan, with no trie, no fuzzy matcher. At this
// scale (a handful of entries, each with a handful of phrasings) an
// ordered loop is both the fastest and the most predictable option:
// catalog order is the tie-break, and it is stable across restarts
// because the catalog ships embedded in the binary.
package precompiled

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Catalog
// =============================================================================

//go:embed queries.yaml
var defaultCatalogYAML []byte

// =============================================================================
// Catalog Types
// =============================================================================

// Query is one precompiled question shape.
//
// Immutable after catalog construction.
type Query struct {
	// Name identifies the entry in logs and metrics.
	Name string `yaml:"name"`

	// Patterns are case-insensitive substrings that trigger a match.
	// Any one pattern contained in the normalized question matches.
	Patterns []string `yaml:"patterns"`

	// SQL is the canned query associated with the match.
	SQL string `yaml:"sql"`

	// ResponseTemplate renders the final answer from a raw result.
	// Placeholders: {value}, {district_count}, {formatted_results}.
	ResponseTemplate string `yaml:"response_template"`
}

// Catalog is the ordered set of precompiled queries.
//
// # Thread Safety
//
// Immutable after loading; safe for concurrent use.
type Catalog struct {
	Queries []Query `yaml:"queries"`
}

// =============================================================================
// Singleton Loader
// =============================================================================

var (
	catalogOnce sync.Once
	catalog     *Catalog
	catalogErr  error
)

// GetCatalog returns the embedded default catalog, parsed once per
// process.
//
// # Outputs
//
//   - *Catalog: The parsed catalog. Nil only when error is non-nil.
//   - error: Non-nil if the embedded YAML fails to parse or validate.
//
// # Thread Safety
//
// Safe for concurrent use.
func GetCatalog() (*Catalog, error) {
	catalogOnce.Do(func() {
		catalog, catalogErr = ParseCatalog(defaultCatalogYAML)
	})
	return catalog, catalogErr
}

// ParseCatalog parses and validates a catalog from YAML bytes.
//
// # Description
//
// Validation is structural only: every entry needs a name, at least one
// pattern, and a response template. Entry order in the YAML is the
// match precedence order and is preserved.
//
// # Thread Safety
//
// Stateless. Safe for concurrent use.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse precompiled catalog: %w", err)
	}

	for i, q := range c.Queries {
		if q.Name == "" {
			return nil, fmt.Errorf("precompiled catalog entry %d: missing name", i)
		}
		if len(q.Patterns) == 0 {
			return nil, fmt.Errorf("precompiled catalog entry %q: no patterns", q.Name)
		}
		if q.ResponseTemplate == "" {
			return nil, fmt.Errorf("precompiled catalog entry %q: no response template", q.Name)
		}
	}

	return &c, nil
}
