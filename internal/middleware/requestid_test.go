// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tomtom215/dumpvault/internal/logging"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generates when missing", "", false},
		{"propagates upstream id", "abc-123.def_4", true},
		{"replaces unsafe id", "bad id\nwith newline", false},
		{"replaces overlong id", string(make([]byte, 65)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inContext string
			h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				inContext = logging.RequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got == "" || got != inContext {
				t.Fatalf("header %q and context %q should match and be set", got, inContext)
			}
			if tt.keep && got != tt.incoming {
				t.Errorf("expected upstream id %q, got %q", tt.incoming, got)
			}
			if !tt.keep && got == tt.incoming {
				t.Errorf("expected a generated id, got %q", got)
			}
		})
	}
}

func TestAccessLog(t *testing.T) {
	h := RequestID(AccessLog(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("{}"))
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/backups", nil))
	if rec.Code != http.StatusCreated || rec.Body.String() != "{}" {
		t.Errorf("AccessLog altered the response: %d %q", rec.Code, rec.Body.String())
	}
}
