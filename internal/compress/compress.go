// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package compress gzips artifacts. Compressors write a complete, fsynced
// file at the destination path; renaming it into place is the caller's job.
package compress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/tomtom215/dumpvault/internal/process"
)

// Methods.
const (
	MethodNative   = "native"
	MethodExternal = "external"
)

// Compressor writes the gzip form of src to dst.
type Compressor interface {
	Compress(ctx context.Context, src, dst string) error
	Method() string
}

// New returns the compressor for method.
func New(method string, level int, command string, runner process.Runner) (Compressor, error) {
	switch method {
	case "", MethodNative:
		return NewNative(level), nil
	case MethodExternal:
		return NewExternal(runner, command, level), nil
	default:
		return nil, fmt.Errorf("unknown compression method: %s", method)
	}
}

// Native compresses in-process with klauspost/compress.
type Native struct {
	level int
}

// NewNative creates a Native compressor. Out-of-range levels use the default.
func NewNative(level int) *Native {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &Native{level: level}
}

// Method returns "native".
func (n *Native) Method() string { return MethodNative }

// Compress implements Compressor.
func (n *Native) Compress(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	zw, err := gzip.NewWriterLevel(out, n.level)
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("create gzip writer: %w", err)
	}

	if _, err := io.Copy(zw, &ctxReader{ctx: ctx, r: in}); err != nil {
		_ = out.Close()
		return fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("finish gzip stream: %w", err)
	}
	return syncClose(out)
}

// External pipes the artifact through the gzip binary.
type External struct {
	runner  process.Runner
	command string
	level   int
}

// NewExternal creates an External compressor running command.
func NewExternal(runner process.Runner, command string, level int) *External {
	if command == "" {
		command = "gzip"
	}
	return &External{runner: runner, command: command, level: level}
}

// Method returns "external".
func (e *External) Method() string { return MethodExternal }

// Compress implements Compressor.
func (e *External) Compress(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	args := []string{"-c"}
	if e.level >= 1 && e.level <= 9 {
		args = append(args, "-"+strconv.Itoa(e.level))
	}

	if _, err := e.runner.Run(ctx, process.Command{
		Name:   e.command,
		Args:   args,
		Stdin:  in,
		Stdout: out,
	}); err != nil {
		_ = out.Close()
		return err
	}
	return syncClose(out)
}

func syncClose(f *os.File) error {
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync destination: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
