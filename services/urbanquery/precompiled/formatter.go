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
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
)

// maxListRows bounds list-style responses to the leading rows in result
// order.
const maxListRows = 10

// placeholderRe finds unfilled {name} placeholders after substitution.
var placeholderRe = regexp.MustCompile(`\{[a-z_]+\}`)

// scalarFieldOrder names the positional columns of a single-row result,
// in the order the canned SQL selects them.
var scalarFieldOrder = []string{"name", "value", "district_count"}

// FormatResponse renders a raw result through a response template.
//
// # Description
//
// Leniency contract: a formatting failure (missing placeholder, wrong
// result shape, non-numeric cell) must never abort the response. On any
// failure the raw result is returned as a stringified dump, and the
// degradation is logged as a quality signal for operators.
//
// Shapes handled, in priority order:
//   - Template with {formatted_results}: bulleted name/value list of the
//     first 10 rows; numeric values thousands-grouped, others verbatim.
//   - Multi-column first row: positional columns bound to named
//     placeholders (name, value, district_count).
//   - Scalar result (or first cell of first row): fills {value} or
//     {district_count} as a single number.
//
// # Inputs
//
//   - template: The entry's response template.
//   - results: Raw result: a scalar, a row list, or anything else
//     (anything else degrades to the dump).
//   - logger: Logger for the degradation signal. May be nil.
//
// # Outputs
//
//   - string: The rendered answer, or the fallback dump. Never empty.
//
// # Thread Safety
//
// Stateless. Safe for concurrent use.
func FormatResponse(template string, results any, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}

	if out, ok := tryFormat(template, results); ok {
		return out
	}

	logger.Warn("precompiled response formatting degraded to raw dump",
		slog.String("template", template),
	)
	return fallbackDump(results)
}

// tryFormat attempts template substitution. Returns ("", false) on any
// shape or placeholder failure.
func tryFormat(template string, results any) (string, bool) {
	rows, isRows := asRows(results)

	if strings.Contains(template, "{formatted_results}") {
		if !isRows || len(rows) == 0 {
			return "", false
		}
		out := strings.ReplaceAll(template, "{formatted_results}", formatRowList(rows))
		return finish(out)
	}

	if isRows && len(rows) > 0 && len(rows[0]) > 1 {
		out := template
		for i, field := range scalarFieldOrder {
			if i >= len(rows[0]) {
				break
			}
			out = strings.ReplaceAll(out, "{"+field+"}", formatCell(rows[0][i]))
		}
		return finish(out)
	}

	// Single value: a bare scalar, or the first cell of the first row.
	if v, ok := asNumber(results); ok {
		return finish(fillScalar(template, groupThousands(v)))
	}
	if isRows && len(rows) > 0 && len(rows[0]) > 0 {
		return finish(fillScalar(template, formatCell(rows[0][0])))
	}

	return "", false
}

// fillScalar binds a single rendered value to whichever scalar
// placeholder the template carries.
func fillScalar(template, rendered string) string {
	out := strings.ReplaceAll(template, "{value}", rendered)
	return strings.ReplaceAll(out, "{district_count}", rendered)
}

// finish rejects output that still contains unfilled placeholders, so a
// template/result mismatch degrades instead of leaking braces to users.
func finish(out string) (string, bool) {
	if placeholderRe.MatchString(out) {
		return "", false
	}
	return out, true
}

// formatRowList renders rows as a bulleted name/value list, truncated to
// the first maxListRows rows in result order.
func formatRowList(rows [][]any) string {
	var b strings.Builder
	for i, row := range rows {
		if i >= maxListRows {
			break
		}
		if i > 0 {
			b.WriteString("\n")
		}
		name := ""
		if len(row) > 0 {
			name = fmt.Sprintf("%v", row[0])
		}
		value := ""
		if len(row) > 1 {
			value = formatCell(row[1])
		}
		fmt.Fprintf(&b, "• %s: %s", name, value)
	}
	return b.String()
}

// formatCell renders a cell: numeric values thousands-grouped, anything
// else verbatim.
func formatCell(cell any) string {
	if v, ok := asNumber(cell); ok {
		return groupThousands(v)
	}
	return fmt.Sprintf("%v", cell)
}

// fallbackDump is the defaults-safe stringification of a raw result.
func fallbackDump(results any) string {
	return fmt.Sprintf("Results: %v", results)
}

// =============================================================================
// Shape Helpers
// =============================================================================

// asRows normalizes a result into a row list. Accepts [][]any and
// []any-of-[]any (the shape JSON decoding produces).
func asRows(results any) ([][]any, bool) {
	switch v := results.(type) {
	case [][]any:
		return v, true
	case []any:
		rows := make([][]any, 0, len(v))
		for _, item := range v {
			row, ok := item.([]any)
			if !ok {
				return nil, false
			}
			rows = append(rows, row)
		}
		return rows, true
	default:
		return nil, false
	}
}

// asNumber extracts a float64 from the numeric types a SQL driver or
// JSON decoder produces.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// groupThousands renders a number rounded to an integer with comma
// grouping (1234567.4 → "1,234,567").
func groupThousands(v float64) string {
	n := int64(math.Round(v))
	neg := n < 0
	if neg {
		n = -n
	}

	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
