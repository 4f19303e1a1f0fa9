// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package logging

import (
	"bytes"
	"fmt"
	"strings"
)

// RedactedPlaceholder replaces secret values in logged or returned text.
const RedactedPlaceholder = "***"

// SanitizeValue removes control characters from strings to prevent log
// injection. Newlines, carriage returns and other control characters are
// rendered as \xNN.
func SanitizeValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&result, "\\x%02x", r)
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Redactor masks known secret values inside arbitrary text.
// The zero value redacts nothing.
type Redactor struct {
	secrets [][]byte
}

// NewRedactor builds a Redactor for the given secret values. Empty values
// are ignored so that an unset password does not mask every byte boundary.
func NewRedactor(secrets ...string) *Redactor {
	r := &Redactor{}
	for _, s := range secrets {
		if s == "" {
			continue
		}
		r.secrets = append(r.secrets, []byte(s))
	}
	return r
}

// Bytes returns a copy of b with every secret replaced by RedactedPlaceholder.
func (r *Redactor) Bytes(b []byte) []byte {
	if r == nil || len(r.secrets) == 0 {
		return b
	}
	out := b
	for _, s := range r.secrets {
		if bytes.Contains(out, s) {
			out = bytes.ReplaceAll(out, s, []byte(RedactedPlaceholder))
		}
	}
	return out
}

// String is the string form of Bytes.
func (r *Redactor) String(s string) string {
	return string(r.Bytes([]byte(s)))
}
