// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package validation

import (
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()
	if v1 == nil || v1 != v2 {
		t.Error("GetValidator() should return the same non-nil instance")
	}
}

type cleanupRequest struct {
	MaxAge int `json:"maxAge" validate:"gte=0,lte=3650"`
}

type deliverRequest struct {
	Recipients []string `json:"recipients" validate:"required,min=1,max=3,dive,recipient"`
}

type fileRequest struct {
	File string `validate:"required,artifact"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		wantField string
		wantMsg   string
	}{
		{"valid cleanup", &cleanupRequest{MaxAge: 7}, "", ""},
		{"negative max age", &cleanupRequest{MaxAge: -1}, "MaxAge", "greater than or equal to 0"},
		{"huge max age", &cleanupRequest{MaxAge: 5000}, "MaxAge", "less than or equal to 3650"},
		{"valid recipients", &deliverRequest{Recipients: []string{"ops@example.com", "s3://bucket/prefix", "https://hooks.example.com/x"}}, "", ""},
		{"no recipients", &deliverRequest{}, "Recipients", "is required"},
		{"too many recipients", &deliverRequest{Recipients: []string{"a@x.io", "b@x.io", "c@x.io", "d@x.io"}}, "Recipients", "at most 3 items"},
		{"bad recipient", &deliverRequest{Recipients: []string{"not a recipient"}}, "Recipients[0]", "s3:// URL"},
		{"valid file", &fileRequest{File: "database-2026-01-02T03-04-05Z-0a1b2c3d.sql.gz"}, "", ""},
		{"traversal", &fileRequest{File: "../../etc/passwd"}, "File", "backup filename"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(tt.input)
			if tt.wantField == "" {
				if verr != nil {
					t.Fatalf("expected valid, got %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected validation error")
			}
			if verr.Fields[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Fields[0].Field, tt.wantField)
			}
			if !strings.Contains(verr.Error(), tt.wantMsg) {
				t.Errorf("Error() = %q, want substring %q", verr.Error(), tt.wantMsg)
			}
		})
	}
}

func TestValidateVar(t *testing.T) {
	if verr := ValidateVar("file", "database-2026-01-02T03-04-05Z-0a1b2c3d.sql", "artifact"); verr != nil {
		t.Errorf("expected valid filename, got %v", verr)
	}
	verr := ValidateVar("file", "backup.sql; rm -rf /", "artifact")
	if verr == nil {
		t.Fatal("expected error")
	}
	if verr.Fields[0].Field != "file" || !strings.HasPrefix(verr.Error(), "file must be") {
		t.Errorf("unexpected error: %+v", verr.Fields)
	}
}

func TestValidRecipient(t *testing.T) {
	tests := map[string]bool{
		"ops@example.com":               true,
		"s3://backups":                  true,
		"s3://backups/nightly/pg":       true,
		"https://hooks.example.com/dv":  true,
		"s3://":                         false,
		"ftp://example.com/file":        false,
		"":                              false,
		"ops@example.com\r\nBcc: x@y.z": false,
	}
	for input, want := range tests {
		if got := ValidRecipient(input); got != want {
			t.Errorf("ValidRecipient(%q) = %v, want %v", input, got, want)
		}
	}
}
