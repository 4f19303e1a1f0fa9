// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

/*
Package main is the Dumpvault server.

Dumpvault creates, compresses, verifies, delivers, restores and expires
pg_dump backups of one PostgreSQL database. The server exposes the REST API
and runs recurring backups and retention cleanup.

# Process Layout

	dumpvault
	├── jobs-layer
	│   ├── backup-scheduler
	│   └── temp-sweeper
	└── api-layer
	    └── http-server

Startup order:

 1. Configuration: Koanf v2 (defaults, YAML file, environment)
 2. Logging: zerolog, bridged to slog for the supervisor
 3. Components: store and ledger, process runner, compressor, delivery
    channels, optional NATS publisher, orchestrator
 4. Scheduler: a malformed schedule aborts startup
 5. Supervisor tree: scheduler, sweeper and HTTP server

# Configuration

Common environment variables:

	BACKUP_DIR=/data/backups
	DB_HOST=postgres DB_NAME=app DB_USER=app DB_PASSWORD=...
	BACKUP_MAX_AGE_DAYS=7
	DEFAULT_RECIPIENTS=ops@example.com,s3://bucket/prefix
	EVENTS_ENABLED=true NATS_URL=nats://nats:4222

See internal/config for the full list.

# Signals

SIGINT and SIGTERM cancel the root context. The HTTP server drains for
SERVER_SHUTDOWN_TIMEOUT, the scheduler waits for a running job, and the
publisher and store are closed last.
*/
package main
