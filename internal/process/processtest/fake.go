// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package processtest provides a scripted process.Runner for tests that must
// not depend on PostgreSQL client tools being installed.
package processtest

import (
	"context"
	"io"
	"sync"

	"github.com/tomtom215/dumpvault/internal/process"
)

// Handler simulates one invocation. It may write to cmd.Stdout, read
// cmd.Stdin and touch the filesystem like the real tool would.
type Handler func(ctx context.Context, cmd process.Command) (*process.Result, error)

// Runner records every call and dispatches it to the handler registered for
// the command name. Unregistered commands succeed with an empty result.
type Runner struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []process.Command

	// Block, when set, is received from before a handler runs. Tests use it
	// to hold a job open while probing lock behavior.
	Block chan struct{}

	// Started, when set, receives a value as each call begins.
	Started chan string
}

// New creates an empty fake runner.
func New() *Runner {
	return &Runner{handlers: make(map[string]Handler)}
}

// Handle registers h for the command name.
func (r *Runner) Handle(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Run implements process.Runner.
func (r *Runner) Run(ctx context.Context, cmd process.Command) (*process.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	h := r.handlers[cmd.Name]
	block := r.Block
	started := r.Started
	r.mu.Unlock()

	if started != nil {
		started <- cmd.Name
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, &process.ProcessExecutionError{Command: cmd.Name, ExitCode: -1, Err: ctx.Err()}
		}
	}

	if h == nil {
		if cmd.Stdin != nil {
			_, _ = io.Copy(io.Discard, cmd.Stdin)
		}
		return &process.Result{}, nil
	}
	return h(ctx, cmd)
}

// Calls returns a copy of the recorded invocations.
func (r *Runner) Calls() []process.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]process.Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount returns how many times name was invoked.
func (r *Runner) CallCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

// Fail returns a handler that exits with code and stderr.
func Fail(code int, stderr string) Handler {
	return func(_ context.Context, cmd process.Command) (*process.Result, error) {
		res := &process.Result{ExitCode: code, StderrTail: []byte(stderr)}
		return res, &process.ProcessExecutionError{Command: cmd.Name, ExitCode: code, StderrTail: stderr}
	}
}

// Stdout returns a handler that writes out to the command's stdout.
func Stdout(out string) Handler {
	return func(_ context.Context, cmd process.Command) (*process.Result, error) {
		if cmd.Stdin != nil {
			_, _ = io.Copy(io.Discard, cmd.Stdin)
		}
		if cmd.Stdout != nil {
			if _, err := io.WriteString(cmd.Stdout, out); err != nil {
				return nil, err
			}
			return &process.Result{}, nil
		}
		return &process.Result{Stdout: []byte(out)}, nil
	}
}
