// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dumpvault/internal/validation"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// maxAgeDaysLimit is the largest retention window accepted from clients.
const maxAgeDaysLimit = 36500

// CreateBackupRequest is the body of POST /backups. Every field is optional.
type CreateBackupRequest struct {
	// Compress defaults to the configured compression.enabled.
	Compress *bool `json:"compress"`

	// Verify defaults to true.
	Verify *bool `json:"verify"`

	// SendEmail delivers the artifact. Without Recipients the configured
	// default recipients are used.
	SendEmail bool `json:"sendEmail"`

	// Recipients are email addresses, http(s) webhook URLs or s3:// URLs.
	// Naming recipients implies delivery.
	Recipients []string `json:"recipients" validate:"omitempty,max=50,dive,recipient"`
}

// CleanupRequest is the body of DELETE /backups/cleanup.
type CleanupRequest struct {
	// MaxAge is in days and defaults to retention.max_age_days. Zero removes
	// every artifact older than the current instant.
	MaxAge *int `json:"maxAge" validate:"omitempty,min=0,max=36500"`
}

// DeliverRequest is the body of POST /backups/{file}/deliver.
type DeliverRequest struct {
	Recipients []string `json:"recipients" validate:"omitempty,max=50,dive,recipient"`
}

// errInvalidJSON marks a body that could not be decoded.
var errInvalidJSON = errors.New("invalid JSON body")

// decodeBody decodes an optional JSON body into dst and validates it. An
// empty body leaves dst untouched.
func decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("%w: body exceeds %d bytes", errInvalidJSON, maxBodyBytes)
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			return fmt.Errorf("%w: %v", errInvalidJSON, err)
		}
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		return verr
	}
	return nil
}

// queryMaxAge reads the maxAge query parameter, falling back to def.
func queryMaxAge(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("maxAge")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxAgeDaysLimit {
		return 0, &validation.RequestValidationError{Fields: []validation.FieldError{{
			Field:   "maxAge",
			Tag:     "range",
			Param:   "0-" + strconv.Itoa(maxAgeDaysLimit),
			Message: fmt.Sprintf("maxAge must be a whole number of days between 0 and %d", maxAgeDaysLimit),
		}}}
	}
	return n, nil
}
