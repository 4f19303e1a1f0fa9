// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package logging

import "testing"

func TestSanitizeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "database-2026.sql", "database-2026.sql"},
		{"newline", "a\nb", `a\x0ab`},
		{"carriage return", "a\rb", `a\x0db`},
		{"delete", "a\x7fb", `a\x7fb`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeValue(tt.input); got != tt.want {
				t.Errorf("SanitizeValue(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactor(t *testing.T) {
	t.Parallel()

	r := NewRedactor("s3cret", "")

	got := r.String(`pg_dump: error: password authentication failed (password "s3cret")`)
	want := `pg_dump: error: password authentication failed (password "***")`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if got := r.String("nothing to hide"); got != "nothing to hide" {
		t.Errorf("unexpected change: %q", got)
	}

	var nilRedactor *Redactor
	if got := nilRedactor.String("s3cret"); got != "s3cret" {
		t.Errorf("nil redactor should be a no-op, got %q", got)
	}
}
