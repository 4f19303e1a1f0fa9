// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package verify checks that a backup artifact is restorable without touching
// any database. It asks pg_restore to list the archive's table of contents;
// an archive that lists at least one entry is considered valid.
package verify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/tomtom215/dumpvault/internal/logging"
	"github.com/tomtom215/dumpvault/internal/process"
	"github.com/tomtom215/dumpvault/internal/store"
)

// Result is the outcome of one verification.
type Result struct {
	Status  store.VerifyStatus
	Message string

	// SHA256 is the hex digest of the artifact bytes as stored on disk.
	SHA256 string

	// Entries is the number of TOC entries pg_restore listed.
	Entries int
}

// Valid reports whether the artifact passed.
func (r *Result) Valid() bool {
	return r.Status == store.VerifyValid
}

// Engine verifies artifacts with pg_restore --list.
type Engine struct {
	runner  process.Runner
	command string
	logger  zerolog.Logger
}

// NewEngine creates an Engine. command is the pg_restore binary.
func NewEngine(runner process.Runner, command string) *Engine {
	if command == "" {
		command = "pg_restore"
	}
	return &Engine{
		runner:  runner,
		command: command,
		logger:  logging.WithComponent("verify"),
	}
}

// Verify inspects the file at path. Every failure to prove the archive good
// yields an invalid Result. The returned error is non-nil only when ctx was
// cancelled, in which case no verdict was reached.
func (e *Engine) Verify(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return invalid(fmt.Sprintf("cannot open artifact: %v", err)), nil
	}
	defer f.Close()

	hasher := sha256.New()
	counter := &tocCounter{}

	var runErr, streamErr error
	if strings.HasSuffix(path, store.GzipExt) {
		runErr, streamErr = e.listCompressed(ctx, f, hasher, counter)
	} else {
		runErr = e.listPlain(ctx, path, counter)
		if _, err := io.Copy(hasher, f); err != nil {
			streamErr = fmt.Errorf("read artifact: %w", err)
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	result := e.judge(runErr, streamErr, counter.Count())
	result.SHA256 = hex.EncodeToString(hasher.Sum(nil))

	e.logger.Debug().
		Str("path", path).
		Str("status", string(result.Status)).
		Int("entries", result.Entries).
		Msg("Verification finished")
	return result, nil
}

func (e *Engine) listPlain(ctx context.Context, path string, counter *tocCounter) error {
	_, err := e.runner.Run(ctx, process.Command{
		Name:   e.command,
		Args:   []string{"--list", path},
		Stdout: counter,
	})
	return err
}

// listCompressed decompresses f while piping it into pg_restore --list. The
// rest of the stream is drained afterwards so that the gzip trailer is
// checked and the digest covers the whole file even when pg_restore stops
// reading early.
func (e *Engine) listCompressed(ctx context.Context, f *os.File, hasher hash.Hash, counter *tocCounter) (runErr, streamErr error) {
	raw := io.TeeReader(f, hasher)
	gz, err := gzip.NewReader(raw)
	if err != nil {
		_, _ = io.Copy(io.Discard, raw)
		return nil, fmt.Errorf("gzip header: %w", err)
	}
	defer gz.Close()

	stdin := &trackingReader{r: gz}
	_, runErr = e.runner.Run(ctx, process.Command{
		Name:   e.command,
		Args:   []string{"--list"},
		Stdin:  stdin,
		Stdout: counter,
	})

	if err := stdin.Err(); err != nil {
		return runErr, fmt.Errorf("gzip stream: %w", err)
	}
	if _, err := io.Copy(io.Discard, gz); err != nil {
		return runErr, fmt.Errorf("gzip stream: %w", err)
	}
	if _, err := io.Copy(io.Discard, raw); err != nil {
		return runErr, fmt.Errorf("read artifact: %w", err)
	}
	return runErr, nil
}

func (e *Engine) judge(runErr, streamErr error, entries int) *Result {
	switch {
	case streamErr != nil:
		return invalid(streamErr.Error())
	case runErr != nil:
		return invalid(describe(runErr))
	case entries == 0:
		return invalid("archive contains no TOC entries")
	default:
		return &Result{
			Status:  store.VerifyValid,
			Message: fmt.Sprintf("archive lists %d TOC entries", entries),
			Entries: entries,
		}
	}
}

func invalid(message string) *Result {
	return &Result{Status: store.VerifyInvalid, Message: message}
}

// describe turns a runner error into a short human message.
func describe(err error) string {
	perr, ok := process.AsExecutionError(err)
	if !ok {
		return err.Error()
	}
	if perr.TimedOut {
		return fmt.Sprintf("verification timed out after %s", perr.Timeout)
	}
	if line := lastNonEmptyLine(perr.StderrTail); line != "" {
		return line
	}
	return perr.Error()
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// trackingReader remembers the first non-EOF read error. The process runner
// swallows stdin copy errors once the child has exited, so the caller checks
// Err afterwards.
type trackingReader struct {
	r   io.Reader
	mu  sync.Mutex
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		t.mu.Lock()
		if t.err == nil {
			t.err = err
		}
		t.mu.Unlock()
	}
	return n, err
}

func (t *trackingReader) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// tocCounter counts TOC entry lines in pg_restore --list output. Comment
// lines start with ';'.
type tocCounter struct {
	mu      sync.Mutex
	partial []byte
	count   int
}

func (c *tocCounter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data := append(c.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		c.countLine(data[:i])
		data = data[i+1:]
	}
	c.partial = append([]byte(nil), data...)
	return len(p), nil
}

func (c *tocCounter) countLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) > 0 && line[0] != ';' {
		c.count++
	}
}

// Count returns the number of entries seen, including a trailing line
// without a newline.
func (c *tocCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.count
	if line := bytes.TrimSpace(c.partial); len(line) > 0 && line[0] != ';' {
		n++
	}
	return n
}
