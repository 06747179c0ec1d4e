// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate inspects query results and generated SQL against
// domain plausibility rules before they reach a user.
//
// All functions are pure inspection: they never mutate their input and
// never panic on malformed input; bad shapes are caught and reported
// as errors inside the returned Result. Hard errors (negative counts,
// mutating SQL) set IsValid=false; soft anomalies (out-of-band values,
// unrecognized entity names) are warnings and never block the pipeline.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// Geo Levels
// =============================================================================

// Geo levels mirror the geographical_unit_view hierarchy.
const (
	GeoLevelCity         = 1
	GeoLevelDistrict     = 2
	GeoLevelNeighborhood = 3
)

// =============================================================================
// Domain Constants
// =============================================================================

// knownDistricts is the fixed set of valid Barcelona districts.
var knownDistricts = map[string]bool{
	"Ciutat Vella":        true,
	"Eixample":            true,
	"Sants-Montjuïc":      true,
	"Les Corts":           true,
	"Sarrià-Sant Gervasi": true,
	"Gràcia":              true,
	"Horta-Guinardó":      true,
	"Nou Barris":          true,
	"Sant Andreu":         true,
	"Sant Martí":          true,
}

// populationBand is the plausible [min, max] population range for one
// geo level.
type populationBand struct {
	min float64
	max float64
}

// populationBands holds the plausibility band per geo level. A value
// outside its band is a warning, not an error, since census anomalies exist;
// only negatives are impossible.
var populationBands = map[int]populationBand{
	GeoLevelCity:         {1_500_000, 2_000_000},
	GeoLevelDistrict:     {50_000, 400_000},
	GeoLevelNeighborhood: {5_000, 80_000},
}

// knownFeatureTypes enumerates the point-feature categories with
// plausibility rules.
var knownFeatureTypes = map[string]bool{
	"school":          true,
	"hospital":        true,
	"park":            true,
	"metro_station":   true,
	"bus_stop":        true,
	"library":         true,
	"market":          true,
	"sports_center":   true,
	"cultural_center": true,
}

// highCountThreshold flags any count above it as suspicious regardless
// of feature type.
const highCountThreshold = 1000

// featureCeilings are per-type soft ceilings above which a count is
// implausible for a single city.
var featureCeilings = map[string]float64{
	"school":   100,
	"hospital": 20,
}

// mutatingKeywords are SQL tokens that must never appear in a
// read-only analytics query.
var mutatingKeywords = []string{"drop", "delete", "truncate", "alter", "update", "insert"}

// similarityThreshold is the minimum Jaccard token overlap for a name
// suggestion.
const similarityThreshold = 0.6

// maxSuggestions bounds the suggestion list; best-effort, first found,
// not ranked.
const maxSuggestions = 3

// whitespaceRe collapses runs of whitespace during name cleaning.
var whitespaceRe = regexp.MustCompile(`\s+`)

// honorificReplacements expands abbreviated honorific prefixes to their
// canonical form.
var honorificReplacements = []struct{ old, new string }{
	{"St. ", "Sant "},
	{"St ", "Sant "},
}

// =============================================================================
// Result
// =============================================================================

// Result is the outcome of one validation call.
//
// Ephemeral: constructed per call, never persisted. The caller decides
// whether to surface or suppress; the validator itself never raises.
type Result struct {
	// IsValid is false only on hard errors.
	IsValid bool

	// Warnings are soft anomalies, in detection order. Never block
	// response delivery.
	Warnings []string

	// Errors are hard failures, in detection order.
	Errors []string

	// Suggestions holds up to 3 alternative entity names, populated by
	// EntityName on an unrecognized name.
	Suggestions []string

	// CleanedName is the normalized entity name when cleaning changed
	// it, populated by EntityName.
	CleanedName string
}

func newResult() Result {
	return Result{IsValid: true}
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.IsValid = false
}

// =============================================================================
// Validator
// =============================================================================

// Validator applies the domain plausibility rules. One shared instance
// serves all requests.
//
// # Thread Safety
//
// Stateless. Safe for concurrent use.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Population validates (name, value) population rows for a geo level.
//
// # Description
//
// Per row: a negative value is a hard error; a value outside the geo
// level's plausibility band is a warning; at district level, a name
// outside the known-district set is a warning (no suggestion computed
// here; use EntityName for suggestions). Rows too short to carry a
// (name, value) pair are skipped, and non-numeric values only trigger
// the district-name check.
//
// # Inputs
//
//   - rows: Result rows; tolerates nil, empty, and malformed shapes.
//   - geoLevel: One of the GeoLevel constants. Unknown levels skip the
//     band check.
//
// # Outputs
//
//   - Result: Never panics; malformed input yields warnings/errors, not
//     faults.
//
// # Thread Safety
//
// Safe for concurrent use.
func (v *Validator) Population(rows [][]any, geoLevel int) Result {
	result := newResult()

	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		name := fmt.Sprintf("%v", row[0])

		if value, ok := toFloat(row[1]); ok {
			if value < 0 {
				result.errorf("Negative population for %s: %v", name, row[1])
			} else if band, known := populationBands[geoLevel]; known {
				if value < band.min || value > band.max {
					result.warnf("Population %s for %s seems unusual (expected range: %s-%s)",
						groupInt(value), name, groupInt(band.min), groupInt(band.max))
				}
			}
		}

		if geoLevel == GeoLevelDistrict && !knownDistricts[name] {
			result.warnf("Unknown district name: %s", name)
		}
	}

	return result
}

// EntityName validates a geographic entity name for a geo level.
//
// # Description
//
// An empty name is a hard error. At district level, a name outside the
// known set produces a warning plus up to 3 suggested alternatives via
// token-overlap similarity (Jaccard over whitespace-split tokens,
// threshold 0.6) with a substring-containment shortcut. Suggestions are
// best-effort: first 3 found, not ranked, not guaranteed complete.
// When cleaning normalizes the name, the cleaned form is reported as a
// warning and returned in CleanedName.
//
// # Thread Safety
//
// Safe for concurrent use.
func (v *Validator) EntityName(name string, geoLevel int) Result {
	result := newResult()

	if strings.TrimSpace(name) == "" {
		result.errorf("Invalid entity name")
		return result
	}

	if geoLevel == GeoLevelDistrict && !knownDistricts[name] {
		result.warnf("'%s' is not a known Barcelona district", name)
		result.Suggestions = findSimilarNames(name, knownDistricts)
	}

	cleaned := CleanName(name)
	if cleaned != name {
		result.warnf("Name normalized from '%s' to '%s'", name, cleaned)
		result.CleanedName = cleaned
	}

	return result
}

// Count validates a counting result (schools, hospitals, ...).
//
// # Description
//
// The count is extracted from scalar, single-row, or nested-row shapes
// in that priority order: direct scalar → first row scalar → first cell
// of first row. A negative count is a hard error; a count above the
// global high-count threshold is a warning; recognized feature types
// add per-type ceiling warnings; an unknown feature type is itself a
// warning, never a blocker. An inextractable count is reported as a
// warning (shape unknown), not an error, since the answer may be
// non-numeric prose.
//
// # Thread Safety
//
// Safe for concurrent use.
func (v *Validator) Count(result any, featureType string) Result {
	out := newResult()

	count, ok := extractCount(result)
	if !ok {
		out.warnf("Could not extract a count from result: %v", result)
		return out
	}

	if count < 0 {
		out.errorf("Negative count: %v", count)
		return out
	}

	if count > highCountThreshold {
		out.warnf("Very high count (%s) - please verify this is correct", groupInt(count))
	}

	if featureType != "" {
		if !knownFeatureTypes[featureType] {
			out.warnf("Unknown feature type: %s", featureType)
		}
		if ceiling, has := featureCeilings[featureType]; has && count > ceiling {
			out.warnf("Unusually high %s count: %s", featureType, groupInt(count))
		}
	}

	return out
}

// SQL validates generated query text against the safety gate and the
// querying conventions for the urban schema.
//
// # Description
//
// Any mutating keyword (drop, delete, truncate, alter, update, insert)
// appearing as a leading or standalone token is a hard error. This is a
// heuristic gate, not a parser: casing and whitespace are normalized
// first, and it deliberately errs toward flagging over-broadly rather
// than missing a mutating statement. Soft warnings cover spatial-table
// access outside the unified view, a missing geo_level_id
// disambiguation filter, and unrestricted column selection.
//
// # Thread Safety
//
// Safe for concurrent use.
func (v *Validator) SQL(query string) Result {
	result := newResult()

	// Normalize casing and collapse all whitespace runs so unusual
	// formatting cannot hide a keyword.
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	if normalized == "" {
		return result
	}

	padded := " " + normalized + " "
	for _, kw := range mutatingKeywords {
		if strings.HasPrefix(normalized, kw) || strings.Contains(padded, " "+kw+" ") {
			result.errorf("Dangerous SQL operation detected: %s", kw)
		}
	}

	if !strings.Contains(normalized, "geographical_unit_view") {
		for _, table := range []string{"districts", "neighborhoods", "cities"} {
			if strings.Contains(normalized, table) {
				result.warnf("Consider using geographical_unit_view instead of individual spatial tables")
				break
			}
		}
	}

	if strings.Contains(normalized, "geographical_unit_view") &&
		!strings.Contains(normalized, "geo_level_id") {
		result.warnf("Missing geo_level_id filter - results may be ambiguous")
	}

	if strings.Contains(normalized, "select *") || strings.Contains(padded, " * ") {
		result.warnf("SELECT * may return unnecessary data - consider selecting specific columns")
	}

	return result
}

// Report renders a batch of validation results as a human-readable
// summary for the debug surface and operator logs.
func Report(results []Result) string {
	valid := 0
	for _, r := range results {
		if r.IsValid {
			valid++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Validation Report: %d/%d passed\n", valid, len(results))

	for i, r := range results {
		if len(r.Errors) > 0 {
			fmt.Fprintf(&b, "\nErrors in validation %d:\n", i+1)
			for _, e := range r.Errors {
				fmt.Fprintf(&b, "  [error] %s\n", e)
			}
		}
		if len(r.Warnings) > 0 {
			fmt.Fprintf(&b, "\nWarnings in validation %d:\n", i+1)
			for _, w := range r.Warnings {
				fmt.Fprintf(&b, "  [warn] %s\n", w)
			}
		}
	}

	return b.String()
}

// =============================================================================
// Name Cleaning & Similarity
// =============================================================================

// CleanName collapses repeated whitespace and expands the abbreviated
// honorific prefix ("St " / "St. " → "Sant "). Used by entity
// validation only, never by the cache fingerprint, which must not
// change identity under cleaning.
func CleanName(name string) string {
	cleaned := whitespaceRe.ReplaceAllString(strings.TrimSpace(name), " ")
	for _, rep := range honorificReplacements {
		cleaned = strings.ReplaceAll(cleaned, rep.old, rep.new)
	}
	return cleaned
}

// findSimilarNames returns up to maxSuggestions known names similar to
// the input, via substring containment or Jaccard token overlap.
func findSimilarNames(name string, validNames map[string]bool) []string {
	nameLower := strings.ToLower(name)
	var suggestions []string

	for valid := range validNames {
		if len(suggestions) >= maxSuggestions {
			break
		}
		validLower := strings.ToLower(valid)

		if strings.Contains(validLower, nameLower) || strings.Contains(nameLower, validLower) {
			suggestions = append(suggestions, valid)
			continue
		}
		if jaccardSimilarity(nameLower, validLower) > similarityThreshold {
			suggestions = append(suggestions, valid)
		}
	}

	return suggestions
}

// jaccardSimilarity computes token-set overlap over whitespace-split
// tokens. Two empty strings are fully similar.
func jaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

// =============================================================================
// Shape Helpers
// =============================================================================

// extractCount pulls a scalar count out of the shapes the reasoning
// engine and canned SQL produce: direct scalar, first-row scalar, or
// first cell of the first nested row.
func extractCount(result any) (float64, bool) {
	if n, ok := toFloat(result); ok {
		return n, true
	}

	items, ok := result.([]any)
	if !ok {
		if rows, isRows := result.([][]any); isRows && len(rows) > 0 && len(rows[0]) > 0 {
			return toFloat(rows[0][0])
		}
		return 0, false
	}
	if len(items) == 0 {
		return 0, false
	}

	if n, ok := toFloat(items[0]); ok {
		return n, true
	}
	if row, ok := items[0].([]any); ok && len(row) > 0 {
		return toFloat(row[0])
	}
	return 0, false
}

// toFloat extracts a float64 from the numeric types a SQL driver or
// JSON decoder produces.
func toFloat(v any) (float64, bool) {
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

// groupInt renders a number as a thousands-grouped integer for warning
// text.
func groupInt(v float64) string {
	n := int64(v)
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
