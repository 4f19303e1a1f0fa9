// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

//go:build integration

// Package testinfra starts real dependencies for integration tests.
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./...
//
// Tests skip themselves when Docker or the PostgreSQL client tools are
// missing, so the tag is safe to pass in CI images without them.
package testinfra
