// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package backup sequences the backup lifecycle: dump, compress, verify,
// deliver, restore and cleanup.
//
// # Overview
//
// The Orchestrator is the only component that mutates the artifact store. It
// drives pg_dump and pg_restore through a process.Runner, compresses with a
// compress.Compressor, verifies with a verify.Engine, applies the retention
// policy and hands finished artifacts to a Deliverer.
//
// # Job Lock
//
// One global job lock serializes every mutating operation:
//
//	CreateBackup, Compress, RestoreFrom, Cleanup, Delete
//
// The lock is taken with TryLock. A caller that finds it held gets a
// *JobInProgressError immediately; requests are never queued. The lock is
// released by a deferred guard, so a panic inside a stage cannot leave the
// orchestrator stuck.
//
// Verify and Deliver only read artifacts and do not take the lock. They pin
// the file in the store so a concurrent Cleanup skips it instead of deleting
// it under the reader.
//
// # Pipeline
//
// CreateAndPublish runs create, compress and verify under a single lock
// acquisition, then delivers and optionally runs cleanup after releasing it:
//
//	create ──▶ compress ──▶ verify ──▶ deliver ──▶ cleanup
//	└────────── job lock ──────────┘
//
// A failed stage stops the stages after it but never undoes the ones before.
// An artifact that failed verification is kept on disk with status invalid
// and is not delivered.
//
// # Errors
//
// Every failure is typed (see errors.go). Sentinels support errors.Is and
// the typed errors support errors.As so the HTTP layer can map them to
// status codes without string matching.
//
// # Events
//
// Each transition publishes an events.Event (created, compressed, verified,
// restored, cleaned, deleted, delivered, failed). Publish failures are
// logged and never change the outcome of an operation.
package backup
