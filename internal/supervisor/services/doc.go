// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package services adapts Dumpvault components to suture.Service.
//
// HTTPServerService turns http.Server's blocking ListenAndServe into a
// context-driven Serve with bounded graceful shutdown. TempSweepService
// periodically removes stale temporary artifact files. The scheduler
// implements suture.Service itself and needs no wrapper.
package services
