package postgres

import "testing"

func TestEscapeILIKEPattern(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "normal text", input: "wedding cake", expected: "wedding cake"},
		{name: "percent sign", input: "100% done", expected: `100\% done`},
		{name: "underscore", input: "first_dance", expected: `first\_dance`},
		{name: "backslash", input: `photos\raw`, expected: `photos\\raw`},
		{name: "multiple wildcards", input: `%_cake_%`, expected: `\%\_cake\_\%`},
		{name: "mixed escape characters", input: `\%_cake`, expected: `\\\%\_cake`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeILIKEPattern(tt.input); got != tt.expected {
				t.Errorf("escapeILIKEPattern(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
