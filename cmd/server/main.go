// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/dumpvault/internal/api"
	"github.com/tomtom215/dumpvault/internal/app"
	"github.com/tomtom215/dumpvault/internal/config"
	"github.com/tomtom215/dumpvault/internal/logging"
	"github.com/tomtom215/dumpvault/internal/schedule"
	"github.com/tomtom215/dumpvault/internal/supervisor"
	"github.com/tomtom215/dumpvault/internal/supervisor/services"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

// sweepMargin is added to the process timeout to decide when a temporary
// file can no longer belong to a running dump.
const sweepMargin = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().Str("version", version).Msg("Starting Dumpvault")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := app.Build(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize components")
	}
	defer func() {
		if err := components.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error while closing components")
		}
	}()

	schedCfg, err := schedule.LoadConfig(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid schedule configuration")
	}
	scheduler, err := schedule.New(components.Orchestrator, schedCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	for _, u := range scheduler.Upcoming() {
		logging.Info().Str("schedule", u.Name).Str("cadence", u.Cadence).Time("next", u.NextFire).Msg("Schedule registered")
	}

	handler, err := api.NewHandler(api.Options{
		Backups:   components.Orchestrator,
		Schedules: scheduler,
		Checks: map[string]api.ReadinessCheck{
			"database": components.Probe.Ping,
			"store":    components.StoreCheck,
		},
		CompressByDefault: cfg.Compression.Enabled,
		DefaultRecipients: cfg.Delivery.DefaultRecipients,
		Version:           version,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create API handler")
	}
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFromServer(cfg.Server)))

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Setup(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	tree.AddJobService(scheduler)
	tree.AddJobService(services.NewTempSweepService(components.Store, time.Hour, cfg.Process.Timeout+sweepMargin))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Str("backup_dir", components.Store.Dir()).Msg("Services added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Dumpvault stopped")
}
