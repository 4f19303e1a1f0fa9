// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

/*
Package supervisor runs Dumpvault's long-lived services under suture v4.

# Tree

	dumpvault
	├── jobs-layer
	│   ├── scheduler      (recurring backups and cleanup)
	│   └── temp-sweeper   (removes temporary files left by crashed dumps)
	└── api-layer
	    └── http-server

The layers restart independently. A scheduler that panics is restarted
with backoff while the HTTP server keeps serving, and a listener failure
does not interrupt a backup the scheduler is running.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
	    return err
	}
	tree.AddJobService(sched)
	tree.AddJobService(services.NewTempSweepService(st, time.Hour, sweepAge))
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))

	errCh := tree.ServeBackground(ctx)

# Restart Policy

TreeConfig maps onto suture.Spec. Zero values take suture's defaults: a
failure threshold of 5, decay of 30 seconds, backoff of 15 seconds and a
per-service shutdown timeout of 10 seconds.

A service that returns nil is not restarted. One that returns an error
or panics is restarted. Services must return promptly once their context
is cancelled; those that do not are listed by UnstoppedServiceReport.

Supervisor events are logged through sutureslog on the slog bridge of the
process-wide zerolog logger.
*/
package supervisor
