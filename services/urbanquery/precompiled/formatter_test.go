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
	"strings"
	"testing"
)

func TestFormatResponseScalar(t *testing.T) {
	got := FormatResponse("The population of Barcelona is {value} inhabitants.", 1620343.0, nil)
	want := "The population of Barcelona is 1,620,343 inhabitants."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatResponseSingleRowScalar(t *testing.T) {
	got := FormatResponse("Barcelona has {district_count} districts.", []any{[]any{10}}, nil)
	want := "Barcelona has 10 districts."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatResponseMultiColumnRow(t *testing.T) {
	rows := [][]any{{"Barcelona", 1620343.0}}
	got := FormatResponse("The population of {name} is {value} inhabitants.", rows, nil)
	want := "The population of Barcelona is 1,620,343 inhabitants."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatResponseList(t *testing.T) {
	rows := [][]any{
		{"Eixample", 266416.0},
		{"Sant Martí", 243867.0},
		{"Old Town", "n/a"},
	}
	got := FormatResponse("Districts:\n{formatted_results}", rows, nil)

	if !strings.Contains(got, "• Eixample: 266,416") {
		t.Errorf("missing thousands-grouped row: %q", got)
	}
	if !strings.Contains(got, "• Old Town: n/a") {
		t.Errorf("non-numeric value should pass through verbatim: %q", got)
	}
}

func TestFormatResponseListTruncatesToTen(t *testing.T) {
	rows := make([][]any, 15)
	for i := range rows {
		rows[i] = []any{fmt.Sprintf("row-%d", i), i}
	}
	got := FormatResponse("{formatted_results}", rows, nil)

	if n := strings.Count(got, "•"); n != 10 {
		t.Errorf("expected 10 rows, got %d:\n%s", n, got)
	}
	if !strings.Contains(got, "row-0") || strings.Contains(got, "row-10") {
		t.Errorf("truncation must keep the leading rows: %q", got)
	}
}

// Formatting failures degrade to a stringified dump, never an error.
func TestFormatResponseDegradesOnFailure(t *testing.T) {
	tests := []struct {
		name     string
		template string
		results  any
	}{
		{"nil result", "{value}", nil},
		{"empty rows with list template", "{formatted_results}", [][]any{}},
		{"unknown placeholder", "count is {unknown_key}", [][]any{{"a", 1.0}}},
		{"non-row list", "{formatted_results}", []any{"not", "rows"}},
		{"string scalar with numeric template", "{value}", struct{}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatResponse(tt.template, tt.results, nil)
			want := fmt.Sprintf("Results: %v", tt.results)
			if got != want {
				t.Errorf("got %q, want fallback %q", got, want)
			}
		})
	}
}

func TestGroupThousands(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1620343, "1,620,343"},
		{1234567.6, "1,234,568"},
		{-50000, "-50,000"},
	}
	for _, tt := range tests {
		if got := groupThousands(tt.in); got != tt.want {
			t.Errorf("groupThousands(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
