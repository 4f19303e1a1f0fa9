// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func newTestRunner(opts ...Option) *ExecRunner {
	return NewExecRunner(append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
}

func TestRunSuccess(t *testing.T) {
	requireShell(t)
	r := newTestRunner()

	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo hello; echo warn >&2"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", res.ExitCode)
	}
	if strings.TrimSpace(string(res.Stdout)) != "hello" {
		t.Errorf("expected stdout hello, got %q", res.Stdout)
	}
	if strings.TrimSpace(string(res.StderrTail)) != "warn" {
		t.Errorf("expected stderr warn, got %q", res.StderrTail)
	}
	if res.Duration <= 0 {
		t.Error("expected positive duration")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	requireShell(t)
	r := newTestRunner()

	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo 'connection refused' >&2; exit 3"},
	})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}

	perr, ok := AsExecutionError(err)
	if !ok {
		t.Fatalf("expected *ProcessExecutionError, got %T", err)
	}
	if perr.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", perr.ExitCode)
	}
	if perr.TimedOut {
		t.Error("non-zero exit should not be reported as timeout")
	}
	if !strings.Contains(perr.StderrTail, "connection refused") {
		t.Errorf("expected stderr tail in error, got %q", perr.StderrTail)
	}
	if !strings.Contains(perr.Error(), "exited with code 3") {
		t.Errorf("unexpected message: %s", perr.Error())
	}
	if res == nil || res.ExitCode != 3 {
		t.Errorf("expected result with exit code 3, got %+v", res)
	}
}

func TestRunStderrTailBounded(t *testing.T) {
	requireShell(t)
	r := newTestRunner()

	// 10000 zeros followed by a marker; only the last 4096 bytes survive.
	_, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "i=0; while [ $i -lt 100 ]; do printf '%0100d' 0 >&2; i=$((i+1)); done; printf END >&2; exit 1"},
	})
	perr, ok := AsExecutionError(err)
	if !ok {
		t.Fatalf("expected *ProcessExecutionError, got %v", err)
	}
	if len(perr.StderrTail) != StderrTailSize {
		t.Errorf("expected tail of %d bytes, got %d", StderrTailSize, len(perr.StderrTail))
	}
	if !strings.HasSuffix(perr.StderrTail, "END") {
		t.Errorf("expected tail to keep the final bytes, got suffix %q", perr.StderrTail[len(perr.StderrTail)-10:])
	}
}

func TestRunTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	r := newTestRunner(WithTimeout(time.Hour))

	start := time.Now()
	_, err := r.Run(context.Background(), Command{
		Name:    "sleep",
		Args:    []string{"10"},
		Timeout: 100 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected errors.Is(err, ErrTimeout), got %v", err)
	}
	perr, _ := AsExecutionError(err)
	if perr == nil || !perr.TimedOut || perr.Timeout != 100*time.Millisecond {
		t.Errorf("unexpected error fields: %+v", perr)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("process was not killed promptly: %v", elapsed)
	}
}

func TestRunCanceledContext(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	r := newTestRunner()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := r.Run(ctx, Command{Name: "sleep", Args: []string{"10"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("cancellation should not be reported as timeout")
	}
}

func TestRunSecretRedaction(t *testing.T) {
	requireShell(t)
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var logs bytes.Buffer
	r := NewExecRunner(WithLogger(zerolog.New(&logs).Level(zerolog.DebugLevel)))

	_, err := r.Run(context.Background(), Command{
		Name:      "sh",
		Args:      []string{"-c", `echo "password is $PGPASSWORD" >&2; echo "$PGPASSWORD"; exit 2`},
		SecretEnv: map[string]string{"PGPASSWORD": "s3cr3t-value"},
	})
	perr, ok := AsExecutionError(err)
	if !ok {
		t.Fatalf("expected *ProcessExecutionError, got %v", err)
	}
	if strings.Contains(perr.Error(), "s3cr3t-value") {
		t.Errorf("secret leaked into error: %s", perr.Error())
	}
	if !strings.Contains(perr.StderrTail, "password is ***") {
		t.Errorf("expected redacted stderr, got %q", perr.StderrTail)
	}
	if strings.Contains(logs.String(), "s3cr3t-value") {
		t.Errorf("secret leaked into logs: %s", logs.String())
	}
	if !strings.Contains(logs.String(), "PGPASSWORD") {
		t.Error("expected env key names to be logged")
	}
}

func TestRunEnvAndDir(t *testing.T) {
	requireShell(t)
	r := newTestRunner()
	dir := t.TempDir()

	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", `echo "$DUMPVAULT_TEST"; pwd`},
		Env:  map[string]string{"DUMPVAULT_TEST": "visible"},
		Dir:  dir,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(res.Stdout)), "\n")
	if len(lines) != 2 || lines[0] != "visible" {
		t.Fatalf("unexpected stdout: %q", res.Stdout)
	}
	if !strings.HasSuffix(lines[1], dirBase(dir)) {
		t.Errorf("expected working dir %s, got %s", dir, lines[1])
	}
}

func TestRunStdinStdout(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	r := newTestRunner()

	var out bytes.Buffer
	res, err := r.Run(context.Background(), Command{
		Name:   "cat",
		Stdin:  strings.NewReader("piped bytes"),
		Stdout: &out,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.String() != "piped bytes" {
		t.Errorf("expected stdout to be streamed, got %q", out.String())
	}
	if len(res.Stdout) != 0 {
		t.Error("captured stdout should be empty when a writer is supplied")
	}
}

func TestRunSpawnFailure(t *testing.T) {
	r := newTestRunner()

	_, err := r.Run(context.Background(), Command{Name: "dumpvault-no-such-binary"})
	perr, ok := AsExecutionError(err)
	if !ok {
		t.Fatalf("expected *ProcessExecutionError, got %v", err)
	}
	if perr.ExitCode != -1 {
		t.Errorf("expected exit code -1 for spawn failure, got %d", perr.ExitCode)
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("expected exec.ErrNotFound to be wrapped, got %v", err)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(8)
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defgh"))
	_, _ = tb.Write([]byte("ij"))
	if got := string(tb.Bytes()); got != "cdefghij" {
		t.Errorf("expected cdefghij, got %q", got)
	}
	_, _ = tb.Write([]byte("0123456789"))
	if got := string(tb.Bytes()); got != "23456789" {
		t.Errorf("expected 23456789, got %q", got)
	}
}

func TestLimitedBuffer(t *testing.T) {
	lb := &limitedBuffer{limit: 4}
	n, err := lb.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Errorf("Write should report full length, got %d, %v", n, err)
	}
	if got := string(lb.Bytes()); got != "abcd" {
		t.Errorf("expected abcd, got %q", got)
	}
}

func dirBase(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
