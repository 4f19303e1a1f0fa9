// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package process

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimeout matches a ProcessExecutionError whose process was killed
// because its timeout elapsed.
var ErrTimeout = errors.New("process timed out")

// ProcessExecutionError reports a process that could not be started, exited
// non-zero, or was killed. Secrets are already masked in every field.
//
//nolint:revive // the stutter reads better at call sites in other packages
type ProcessExecutionError struct {
	Command    string
	ExitCode   int
	StderrTail string
	TimedOut   bool
	Timeout    time.Duration
	Err        error
}

func (e *ProcessExecutionError) Error() string {
	var b strings.Builder
	switch {
	case e.TimedOut:
		fmt.Fprintf(&b, "%s timed out after %s", e.Command, e.Timeout)
	case e.ExitCode >= 0:
		fmt.Fprintf(&b, "%s exited with code %d", e.Command, e.ExitCode)
	default:
		fmt.Fprintf(&b, "%s failed", e.Command)
		if e.Err != nil {
			fmt.Fprintf(&b, ": %v", e.Err)
		}
	}
	if tail := strings.TrimSpace(e.StderrTail); tail != "" {
		fmt.Fprintf(&b, ": %s", tail)
	}
	return b.String()
}

func (e *ProcessExecutionError) Unwrap() error {
	return e.Err
}

// Is reports ErrTimeout for timed out processes.
func (e *ProcessExecutionError) Is(target error) bool {
	return target == ErrTimeout && e.TimedOut
}

// AsExecutionError extracts a ProcessExecutionError from err.
func AsExecutionError(err error) (*ProcessExecutionError, bool) {
	var perr *ProcessExecutionError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}
