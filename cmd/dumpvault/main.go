// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Command dumpvault runs backup operations in-process against the
// configured database and backup directory. It reads the same configuration
// as the server and holds the same job lock, so it must not be pointed at a
// directory a running server owns unless both share the host.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/dumpvault/internal/app"
	"github.com/tomtom215/dumpvault/internal/config"
	"github.com/tomtom215/dumpvault/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{out: os.Stdout, build: buildFromConfig}
	if err := c.rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// buildFromConfig loads configuration and wires the components. Events are
// left to the server; delivery is built only when a command needs it.
func buildFromConfig(ctx context.Context, deliver bool) (*app.Components, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: "console",
		Output: os.Stderr,
	})

	opts := []app.Option{app.WithoutEvents()}
	if !deliver {
		opts = append(opts, app.WithoutDelivery())
	}
	return app.Build(ctx, cfg, opts...)
}
