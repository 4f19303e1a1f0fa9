// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package process runs the external database tools (pg_dump, pg_restore,
// gzip) on behalf of the backup pipeline.
//
// One call spawns one process and never retries. Every call is bounded by a
// timeout. Secrets are passed through SecretEnv: their values reach the child
// environment but are masked in logs and in the captured output.
package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/dumpvault/internal/logging"
	"github.com/tomtom215/dumpvault/internal/metrics"
)

const (
	// StderrTailSize is the number of trailing stderr bytes kept for diagnostics.
	StderrTailSize = 4096

	// DefaultTimeout bounds a call when neither the runner nor the command sets one.
	DefaultTimeout = 30 * time.Minute

	// DefaultMaxStdout caps captured stdout when the command has no Stdout writer.
	DefaultMaxStdout = 1 << 20

	// waitDelay is how long Wait keeps draining pipes after the process is killed.
	waitDelay = 5 * time.Second
)

// Command describes one external process invocation.
type Command struct {
	// Name is the executable, resolved through PATH.
	Name string
	Args []string

	// Env is appended to the parent environment.
	Env map[string]string

	// SecretEnv is appended to the parent environment. Values are never logged
	// and are masked in Result.Stdout and Result.StderrTail.
	SecretEnv map[string]string

	// Dir is the working directory of the child. Empty means the current one.
	Dir string

	// Stdin feeds the child's standard input when non-nil.
	Stdin io.Reader

	// Stdout receives the child's standard output when non-nil. Otherwise
	// output is captured into Result.Stdout up to the runner's limit.
	Stdout io.Writer

	// Timeout overrides the runner's default timeout when positive.
	Timeout time.Duration
}

// Result is the outcome of a process that was started.
type Result struct {
	ExitCode   int
	Stdout     []byte
	StderrTail []byte
	Duration   time.Duration
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	timeout   time.Duration
	maxStdout int
	logger    zerolog.Logger
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithTimeout sets the default timeout for every call.
func WithTimeout(d time.Duration) Option {
	return func(r *ExecRunner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxStdout sets the captured stdout limit.
func WithMaxStdout(n int) Option {
	return func(r *ExecRunner) {
		if n > 0 {
			r.maxStdout = n
		}
	}
}

// WithLogger sets the logger used for process lifecycle messages.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func WithLogger(l zerolog.Logger) Option {
	return func(r *ExecRunner) {
		r.logger = l
	}
}

// NewExecRunner creates a Runner backed by os/exec.
func NewExecRunner(opts ...Option) *ExecRunner {
	r := &ExecRunner{
		timeout:   DefaultTimeout,
		maxStdout: DefaultMaxStdout,
		logger:    logging.WithComponent("process"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the command and waits for it. A non-zero exit, a spawn failure,
// a timeout or a cancellation all return a *ProcessExecutionError together
// with whatever Result was collected.
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	timeout := r.timeout
	if c.Timeout > 0 {
		timeout = c.Timeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	redactor := logging.NewRedactor(secretValues(c.SecretEnv)...)

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = buildEnv(os.Environ(), c.Env, c.SecretEnv)
	cmd.Stdin = c.Stdin
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	stderr := newTailBuffer(StderrTailSize)
	cmd.Stderr = stderr

	var stdout *limitedBuffer
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	} else {
		stdout = &limitedBuffer{limit: r.maxStdout}
		cmd.Stdout = stdout
	}

	r.logger.Debug().
		Str("command", c.Name).
		Strs("args", redactArgs(redactor, c.Args)).
		Strs("env_keys", envKeys(c.Env, c.SecretEnv)).
		Str("dir", c.Dir).
		Dur("timeout", timeout).
		Msg("Starting process")

	start := time.Now()
	runErr := cmd.Run()

	result := &Result{
		ExitCode:   exitCode(cmd, runErr),
		StderrTail: redactor.Bytes(stderr.Bytes()),
		Duration:   time.Since(start),
	}
	if stdout != nil {
		result.Stdout = redactor.Bytes(stdout.Bytes())
	}

	if runErr == nil {
		metrics.RecordProcess(c.Name, metrics.OutcomeSuccess, result.Duration)
		r.logger.Debug().
			Str("command", c.Name).
			Dur("duration", result.Duration).
			Msg("Process finished")
		return result, nil
	}

	perr := &ProcessExecutionError{
		Command:    c.Name,
		ExitCode:   result.ExitCode,
		StderrTail: string(result.StderrTail),
		Err:        runErr,
	}
	if msg := redactor.String(runErr.Error()); msg != runErr.Error() {
		perr.Err = errors.New(msg)
	}

	outcome := metrics.OutcomeFailure
	switch {
	case ctx.Err() != nil:
		perr.Err = ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		perr.TimedOut = true
		perr.Timeout = timeout
		outcome = metrics.OutcomeTimeout
	}
	metrics.RecordProcess(c.Name, outcome, result.Duration)

	r.logger.Warn().
		Str("command", c.Name).
		Int("exit_code", perr.ExitCode).
		Bool("timed_out", perr.TimedOut).
		Dur("duration", result.Duration).
		Str("stderr_tail", logging.SanitizeValue(lastLine(perr.StderrTail))).
		Msg("Process failed")

	return result, perr
}

// buildEnv appends extra and secret variables to base. Later entries win for
// duplicate keys in os/exec, so overrides behave as expected.
func buildEnv(base []string, extra, secret map[string]string) []string {
	env := make([]string, 0, len(base)+len(extra)+len(secret))
	env = append(env, base...)
	for _, k := range sortedKeys(extra) {
		env = append(env, k+"="+extra[k])
	}
	for _, k := range sortedKeys(secret) {
		env = append(env, k+"="+secret[k])
	}
	return env
}

func envKeys(extra, secret map[string]string) []string {
	keys := append(sortedKeys(extra), sortedKeys(secret)...)
	return keys
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func secretValues(m map[string]string) []string {
	values := make([]string, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}
	return values
}

func redactArgs(r *logging.Redactor, args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.String(a)
	}
	return out
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err == nil && cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

func lastLine(s string) string {
	trimmed := bytes.TrimRight([]byte(s), "\r\n")
	if i := bytes.LastIndexByte(trimmed, '\n'); i >= 0 {
		return string(trimmed[i+1:])
	}
	return string(trimmed)
}
