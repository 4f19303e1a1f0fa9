// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dumpvault/internal/logging"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is a human-readable message. It never carries credentials.
	Error string `json:"error"`

	// Code is a machine-readable error kind such as JOB_IN_PROGRESS.
	Code string `json:"code"`

	// RequestID echoes X-Request-ID for correlation with server logs.
	RequestID string `json:"requestId,omitempty"`

	// Details carries per-field validation errors or a delivery report.
	Details interface{} `json:"details,omitempty"`
}

// MessageResponse is returned by operations that have nothing else to report.
type MessageResponse struct {
	Message string `json:"message"`
}

// respondJSON writes data as JSON with the given status.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent, so the client sees a truncated body.
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// respondError writes an ErrorResponse.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	respondJSON(w, status, &ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: logging.RequestIDFromContext(r.Context()),
		Details:   details,
	})
}

// respondErr maps err through errorCode and writes it. Server-side failures
// are logged with the request context; client errors are not.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorCode(err)
	if status >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Str("code", code).Msg("Request failed")
	}
	respondError(w, r, status, code, err.Error(), errorDetails(err))
}
