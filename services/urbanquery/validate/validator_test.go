// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"strings"
	"testing"
)

func TestPopulationNegativeValueIsError(t *testing.T) {
	v := NewValidator()

	result := v.Population([][]any{{"Eixample", float64(-5)}}, GeoLevelDistrict)

	if result.IsValid {
		t.Fatal("expected IsValid=false for a negative population")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected exactly one error, got %d: %v", len(result.Errors), result.Errors)
	}
	if !strings.Contains(result.Errors[0], "Negative population") {
		t.Errorf("unexpected error text: %s", result.Errors[0])
	}
}

func TestPopulationOutOfBandIsWarning(t *testing.T) {
	v := NewValidator()

	result := v.Population([][]any{{"Gràcia", float64(120000)}}, GeoLevelDistrict)

	if !result.IsValid {
		t.Fatalf("expected IsValid=true, got errors: %v", result.Errors)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %d: %v", len(result.Warnings), result.Warnings)
	}
	if !strings.Contains(result.Warnings[0], "seems unusual") {
		t.Errorf("unexpected warning text: %s", result.Warnings[0])
	}
}

func TestPopulationBands(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name      string
		value     float64
		geoLevel  int
		wantWarns int
	}{
		{"city in band", 1_620_343, GeoLevelCity, 0},
		{"city below band", 900_000, GeoLevelCity, 1},
		{"district in band", 266_000, GeoLevelDistrict, 0},
		{"district above band", 500_000, GeoLevelDistrict, 1},
		{"neighborhood in band", 30_000, GeoLevelNeighborhood, 0},
		{"neighborhood below band", 1_000, GeoLevelNeighborhood, 1},
		{"unknown geo level skips band", 7, 9, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := v.Population([][]any{{"Eixample", tc.value}}, tc.geoLevel)
			if !result.IsValid {
				t.Fatalf("expected valid result, got errors: %v", result.Errors)
			}
			if len(result.Warnings) != tc.wantWarns {
				t.Errorf("warnings = %v, want %d", result.Warnings, tc.wantWarns)
			}
		})
	}
}

func TestPopulationUnknownDistrictName(t *testing.T) {
	v := NewValidator()

	result := v.Population([][]any{{"Atlantis", float64(100000)}}, GeoLevelDistrict)

	if !result.IsValid {
		t.Fatalf("unknown name must not invalidate, got errors: %v", result.Errors)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "Unknown district name") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an unknown-district warning, got %v", result.Warnings)
	}
}

func TestPopulationToleratesMalformedRows(t *testing.T) {
	v := NewValidator()

	result := v.Population([][]any{
		nil,
		{},
		{"only-name"},
		{"Eixample", "not-a-number"},
	}, GeoLevelDistrict)

	if !result.IsValid {
		t.Fatalf("malformed rows must not invalidate, got errors: %v", result.Errors)
	}
}

func TestPopulationNilRows(t *testing.T) {
	v := NewValidator()

	result := v.Population(nil, GeoLevelCity)

	if !result.IsValid || len(result.Warnings) != 0 {
		t.Errorf("empty input should validate cleanly, got %+v", result)
	}
}

func TestEntityNameEmptyIsError(t *testing.T) {
	v := NewValidator()

	for _, name := range []string{"", "   "} {
		result := v.EntityName(name, GeoLevelDistrict)
		if result.IsValid {
			t.Errorf("EntityName(%q) = valid, want invalid", name)
		}
	}
}

func TestEntityNameKnownDistrict(t *testing.T) {
	v := NewValidator()

	result := v.EntityName("Gràcia", GeoLevelDistrict)

	if !result.IsValid || len(result.Warnings) != 0 {
		t.Errorf("known district should validate cleanly, got %+v", result)
	}
}

func TestEntityNameSuggestions(t *testing.T) {
	v := NewValidator()

	result := v.EntityName("Gracia", GeoLevelDistrict)

	if !result.IsValid {
		t.Fatalf("unrecognized name must stay valid, got errors: %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a not-a-known-district warning")
	}
	if len(result.Suggestions) > 3 {
		t.Errorf("suggestions must be capped at 3, got %v", result.Suggestions)
	}
}

func TestEntityNameSubstringSuggestion(t *testing.T) {
	v := NewValidator()

	result := v.EntityName("Eixam", GeoLevelDistrict)

	found := false
	for _, s := range result.Suggestions {
		if s == "Eixample" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Eixample in suggestions, got %v", result.Suggestions)
	}
}

func TestEntityNameCleaning(t *testing.T) {
	v := NewValidator()

	result := v.EntityName("St.  Andreu", GeoLevelDistrict)

	if result.CleanedName != "Sant Andreu" {
		t.Errorf("CleanedName = %q, want %q", result.CleanedName, "Sant Andreu")
	}
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sant Martí", "Sant Martí"},
		{"St Martí", "Sant Martí"},
		{"St. Andreu", "Sant Andreu"},
		{"  Les   Corts  ", "Les Corts"},
		{"St.   Andreu", "Sant Andreu"},
	}
	for _, tc := range tests {
		if got := CleanName(tc.in); got != tc.want {
			t.Errorf("CleanName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCountShapes(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name   string
		result any
	}{
		{"scalar", float64(42)},
		{"int scalar", 42},
		{"single-element list", []any{float64(42)}},
		{"nested row", []any{[]any{float64(42), "extra"}}},
		{"typed rows", [][]any{{float64(42)}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := v.Count(tc.result, "school")
			if !got.IsValid || len(got.Warnings) != 0 {
				t.Errorf("Count(%v) = %+v, want clean pass", tc.result, got)
			}
		})
	}
}

func TestCountNegativeIsError(t *testing.T) {
	v := NewValidator()

	result := v.Count(float64(-3), "school")

	if result.IsValid {
		t.Fatal("negative count must invalidate")
	}
}

func TestCountThresholds(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name        string
		count       float64
		featureType string
		wantWarns   int
	}{
		{"high global count", 1500, "park", 1},
		{"school above ceiling", 150, "school", 1},
		{"hospital above ceiling", 25, "hospital", 1},
		{"school below ceiling", 80, "school", 0},
		{"unknown feature type", 5, "spaceport", 1},
		{"high count of unknown type", 1500, "spaceport", 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := v.Count(tc.count, tc.featureType)
			if !got.IsValid {
				t.Fatalf("expected valid result, got errors: %v", got.Errors)
			}
			if len(got.Warnings) != tc.wantWarns {
				t.Errorf("warnings = %v, want %d", got.Warnings, tc.wantWarns)
			}
		})
	}
}

func TestCountInextractableIsWarning(t *testing.T) {
	v := NewValidator()

	result := v.Count("forty-two", "school")

	if !result.IsValid {
		t.Fatal("inextractable count must stay valid")
	}
	if len(result.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", result.Warnings)
	}
}

func TestSQLMutatingKeywords(t *testing.T) {
	v := NewValidator()

	tests := []string{
		"DROP TABLE districts",
		"delete from geographical_unit_view",
		"SELECT name FROM x; TRUNCATE y",
		"  UpDaTe   geographical_unit_view SET value = 0",
		"select name from t where 1=1 union insert into z values (1)",
		"ALTER\n\tTABLE districts ADD COLUMN x int",
	}

	for _, q := range tests {
		result := v.SQL(q)
		if result.IsValid {
			t.Errorf("SQL(%q) passed, want hard error", q)
		}
	}
}

func TestSQLSafeQueriesPass(t *testing.T) {
	v := NewValidator()

	tests := []string{
		"SELECT name, value FROM geographical_unit_view WHERE geo_level_id = 2",
		"select count(name) from geographical_unit_view where geo_level_id = 3",
	}

	for _, q := range tests {
		result := v.SQL(q)
		if !result.IsValid {
			t.Errorf("SQL(%q) rejected: %v", q, result.Errors)
		}
		if len(result.Warnings) != 0 {
			t.Errorf("SQL(%q) warnings = %v, want none", q, result.Warnings)
		}
	}
}

func TestSQLKeywordAsSubstringAllowed(t *testing.T) {
	v := NewValidator()

	// "updated_at" contains "update" but is not a standalone token.
	result := v.SQL("SELECT name, updated_at FROM geographical_unit_view WHERE geo_level_id = 2")

	if !result.IsValid {
		t.Errorf("column name containing a keyword must pass, got %v", result.Errors)
	}
}

func TestSQLConventionWarnings(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			"raw spatial table",
			"SELECT name FROM districts",
			"geographical_unit_view",
		},
		{
			"missing geo level filter",
			"SELECT name, value FROM geographical_unit_view",
			"geo_level_id",
		},
		{
			"select star",
			"SELECT * FROM geographical_unit_view WHERE geo_level_id = 2",
			"SELECT *",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := v.SQL(tc.query)
			if !result.IsValid {
				t.Fatalf("convention issues must stay valid, got errors: %v", result.Errors)
			}
			found := false
			for _, w := range result.Warnings {
				if strings.Contains(w, tc.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("warnings %v missing %q", result.Warnings, tc.want)
			}
		})
	}
}

func TestSQLEmptyQuery(t *testing.T) {
	v := NewValidator()

	result := v.SQL("   ")

	if !result.IsValid || len(result.Warnings) != 0 {
		t.Errorf("empty query should pass cleanly, got %+v", result)
	}
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"sant andreu", "sant andreu", 1.0},
		{"sant andreu", "sant martí", 1.0 / 3.0},
		{"eixample", "gràcia", 0.0},
		{"", "", 1.0},
	}
	for _, tc := range tests {
		if got := jaccardSimilarity(tc.a, tc.b); got != tc.want {
			t.Errorf("jaccardSimilarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestReport(t *testing.T) {
	ok := newResult()
	bad := newResult()
	bad.errorf("Negative count: -3")
	bad.warnf("Unknown feature type: spaceport")

	report := Report([]Result{ok, bad})

	if !strings.Contains(report, "1/2 passed") {
		t.Errorf("report missing pass summary: %s", report)
	}
	if !strings.Contains(report, "[error] Negative count: -3") {
		t.Errorf("report missing error line: %s", report)
	}
	if !strings.Contains(report, "[warn] Unknown feature type: spaceport") {
		t.Errorf("report missing warning line: %s", report)
	}
}
