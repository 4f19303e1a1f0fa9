// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package app assembles the component graph shared by the server and the
// command line tool.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/dumpvault/internal/backup"
	"github.com/tomtom215/dumpvault/internal/compress"
	"github.com/tomtom215/dumpvault/internal/config"
	"github.com/tomtom215/dumpvault/internal/database"
	"github.com/tomtom215/dumpvault/internal/delivery"
	"github.com/tomtom215/dumpvault/internal/events"
	"github.com/tomtom215/dumpvault/internal/logging"
	"github.com/tomtom215/dumpvault/internal/process"
	"github.com/tomtom215/dumpvault/internal/store"
)

// Components holds everything built from one configuration.
type Components struct {
	Config       *config.Config
	Store        *store.Store
	Runner       process.Runner
	Probe        *database.Probe
	Deliverer    *delivery.Manager
	Publisher    events.Publisher
	Orchestrator *backup.Orchestrator

	embedded *events.EmbeddedServer
}

// Option adjusts Build.
type Option func(*buildOptions)

type buildOptions struct {
	runner    process.Runner
	noEvents  bool
	noDeliver bool
}

// WithRunner replaces the os/exec runner.
func WithRunner(r process.Runner) Option {
	return func(o *buildOptions) { o.runner = r }
}

// WithoutEvents skips the NATS publisher even when events are enabled.
// One-shot CLI commands use it to avoid binding the embedded server port.
func WithoutEvents() Option {
	return func(o *buildOptions) { o.noEvents = true }
}

// WithoutDelivery skips building delivery channels.
func WithoutDelivery() Option {
	return func(o *buildOptions) { o.noDeliver = true }
}

// Build wires the components described by cfg. On error everything opened
// so far is closed.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (c *Components, err error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	c = &Components{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	ledger, err := store.OpenLedger(cfg.Storage.Ledger, cfg.Storage.Dir, cfg.Storage.LedgerDir)
	if err != nil {
		return c, err
	}
	if c.Store, err = store.New(cfg.Storage.Dir, ledger); err != nil {
		_ = ledger.Close()
		return c, fmt.Errorf("open store: %w", err)
	}

	c.Runner = bo.runner
	if c.Runner == nil {
		c.Runner = process.NewExecRunner(process.WithTimeout(cfg.Process.Timeout))
	}

	compressor, err := compress.New(cfg.Compression.Method, cfg.Compression.Level, cfg.Compression.Command, c.Runner)
	if err != nil {
		return c, err
	}

	c.Probe = database.NewProbe(cfg.Database.DSN(), 0)

	var deliverer backup.Deliverer
	if !bo.noDeliver {
		if c.Deliverer, err = delivery.NewManagerFromConfig(ctx, cfg.Delivery); err != nil {
			return c, fmt.Errorf("delivery: %w", err)
		}
		deliverer = c.Deliverer
	}

	c.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled && !bo.noEvents {
		if err = c.connectEvents(cfg.Events); err != nil {
			return c, err
		}
	}

	c.Orchestrator, err = backup.New(backup.Options{
		Store:      c.Store,
		Runner:     c.Runner,
		Compressor: compressor,
		Deliverer:  deliverer,
		Publisher:  c.Publisher,
		Probe:      c.Probe,
		Database:   cfg.Database,
		Retention:  cfg.Retention,
	})
	if err != nil {
		return c, fmt.Errorf("orchestrator: %w", err)
	}
	return c, nil
}

func (c *Components) connectEvents(cfg config.EventsConfig) error {
	url := cfg.NATSURL
	if cfg.Embedded {
		srv, err := events.StartEmbeddedServer(cfg.EmbeddedHost, cfg.EmbeddedPort)
		if err != nil {
			return fmt.Errorf("embedded NATS: %w", err)
		}
		c.embedded = srv
		url = srv.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	pub, err := events.Connect(url, cfg.SubjectPrefix)
	if err != nil {
		return err
	}
	c.Publisher = pub
	return nil
}

// StoreCheck reports whether the artifact directory can be listed.
func (c *Components) StoreCheck(ctx context.Context) error {
	_, err := c.Store.List(ctx)
	return err
}

// Close releases the publisher, the embedded broker and the store.
func (c *Components) Close() error {
	var errs []error
	if c.Publisher != nil {
		errs = append(errs, c.Publisher.Close())
	}
	if c.embedded != nil {
		c.embedded.Shutdown()
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}
