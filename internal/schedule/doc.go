// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package schedule computes recurring fire times and drives the backup
// orchestrator on them.
//
// NextFire is a pure function of a Schedule, an instant and a location, so
// the same cadence can be evaluated by the Scheduler loop, by status
// endpoints, and in tests without a clock. Schedules are daily, weekly or
// monthly at a wall-clock time, or a 5-field cron expression.
//
// The Scheduler implements suture.Service. It calls CreateAndPublish with
// verification always on and the schedule's recipients, and runs retention
// cleanup on its own cadence with the global max age.
package schedule
