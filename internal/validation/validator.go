// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/dumpvault/internal/delivery"
	"github.com/tomtom215/dumpvault/internal/store"
)

// CodeValidation is the machine code of every validation failure.
const CodeValidation = "VALIDATION_ERROR"

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed field.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// RequestValidationError collects every failed field of one request.
type RequestValidationError struct {
	Fields []FieldError
}

// Error joins the field messages.
func (ve *RequestValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		messages = append(messages, f.Message)
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the singleton validator with the custom tags
// registered. It is safe for concurrent use.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// artifact: a backup filename as produced by the store.
		_ = validate.RegisterValidation("artifact", func(fl validator.FieldLevel) bool {
			return store.ValidFilename(fl.Field().String())
		})
		// recipient: an email address, an https webhook URL or an s3:// URL.
		_ = validate.RegisterValidation("recipient", func(fl validator.FieldLevel) bool {
			return ValidRecipient(fl.Field().String())
		})
	})
	return validate
}

// ValidRecipient reports whether r is routable by one of the delivery channels.
func ValidRecipient(r string) bool {
	switch {
	case strings.HasPrefix(r, "s3://"):
		_, _, err := delivery.ParseS3URL(r)
		return err == nil
	case strings.HasPrefix(r, "http://"), strings.HasPrefix(r, "https://"):
		return delivery.ValidateWebhookURL(r) == nil
	default:
		return delivery.ValidateEmail(r) == nil
	}
}

// ValidateStruct validates s. It returns nil when s is valid.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	fields := make([]FieldError, len(validationErrs))
	for i, fe := range validationErrs {
		fields[i] = fieldError(fe.Field(), fe)
	}
	return &RequestValidationError{Fields: fields}
}

// ValidateVar validates a single value against tag, naming it field in
// the error.
func ValidateVar(field string, value interface{}, tag string) *RequestValidationError {
	err := GetValidator().Var(value, tag)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return &RequestValidationError{Fields: []FieldError{{Field: field, Tag: tag, Message: err.Error()}}}
	}
	// Var leaves the field name empty.
	return &RequestValidationError{Fields: []FieldError{fieldError(field, validationErrs[0])}}
}

func fieldError(field string, fe validator.FieldError) FieldError {
	return FieldError{
		Field:   field,
		Tag:     fe.Tag(),
		Param:   fe.Param(),
		Message: field + " " + describe(fe),
	}
}

// describe renders the predicate part of a message, e.g. "is required".
func describe(fe validator.FieldError) string {
	p := fe.Param()
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "artifact":
		return "must be a backup filename"
	case "recipient":
		return "must be an email address, an https URL or an s3:// URL"
	case "dive":
		return "contains an invalid item"
	case "oneof":
		return "must be one of: " + p
	case "gt", "gte", "lt", "lte":
		ops := map[string]string{"gt": "greater than", "gte": "greater than or equal to", "lt": "less than", "lte": "less than or equal to"}
		return fmt.Sprintf("must be %s %s", ops[fe.Tag()], p)
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		switch fe.Kind() {
		case reflect.String:
			return fmt.Sprintf("must be %s %s characters", bound, p)
		case reflect.Slice, reflect.Array, reflect.Map:
			return fmt.Sprintf("must be %s %s items", bound, p)
		}
		return fmt.Sprintf("must be %s %s", bound, p)
	}
	return "failed " + fe.Tag() + " validation"
}
