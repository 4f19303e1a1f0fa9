// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package validation validates API request structs with go-playground/validator v10.
//
// A single validator instance is built once and shared; it caches struct
// metadata and is safe for concurrent use. Two custom tags are registered:
//
//	artifact   a backup filename in the shape the store produces
//	recipient  an email address, an https webhook URL or an s3:// bucket URL
//
// # Quick Start
//
//	type deliverRequest struct {
//	    Recipients []string `json:"recipients" validate:"required,min=1,max=50,dive,recipient"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    respondValidation(w, verr)
//	    return
//	}
//
// Failed fields are returned as a *RequestValidationError with one
// human-readable message per field; the API surfaces them under the
// VALIDATION_ERROR code.
package validation
