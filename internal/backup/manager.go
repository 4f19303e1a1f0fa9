// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

/*
manager.go - Orchestrator Core

This file contains the Orchestrator struct, its construction, the job lock
guard and the status snapshot served by GET /status.

Orchestrator Responsibilities:
  - Owning the global job lock
  - Wiring the store, process runner, compressor, verifier and deliverer
  - Publishing lifecycle events
  - Tracking the running operation and the last finished job

Thread Safety:
The job lock (sync.Mutex) serializes mutating operations. Status fields are
guarded by a separate RWMutex so Status() never waits for a running job.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/dumpvault/internal/compress"
	"github.com/tomtom215/dumpvault/internal/config"
	"github.com/tomtom215/dumpvault/internal/delivery"
	"github.com/tomtom215/dumpvault/internal/events"
	"github.com/tomtom215/dumpvault/internal/logging"
	"github.com/tomtom215/dumpvault/internal/metrics"
	"github.com/tomtom215/dumpvault/internal/process"
	"github.com/tomtom215/dumpvault/internal/store"
	"github.com/tomtom215/dumpvault/internal/verify"
)

// Operation names used for locking, metrics and events.
const (
	OpCreate   = "create"
	OpCompress = "compress"
	OpVerify   = "verify"
	OpRestore  = "restore"
	OpCleanup  = "cleanup"
	OpDelete   = "delete"
	OpDeliver  = "deliver"
	OpPipeline = "pipeline"
)

// Deliverer ships an artifact to recipients.
type Deliverer interface {
	Deliver(ctx context.Context, artifact *store.Artifact, recipients []string, trigger string) *delivery.Report
}

// Pinger checks database connectivity before a dump.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires an Orchestrator.
type Options struct {
	Store  *store.Store
	Runner process.Runner

	// Compressor defaults to native gzip.
	Compressor compress.Compressor

	// Deliverer is required only for Deliver and pipelines with recipients.
	Deliverer Deliverer

	// Publisher defaults to events.NopPublisher.
	Publisher events.Publisher

	// Probe runs before every dump when Database.Preflight is set.
	Probe Pinger

	Database  config.DatabaseConfig
	Retention config.RetentionConfig

	// Now is the clock used for filenames and retention. Defaults to time.Now.
	Now func() time.Time
}

// JobSummary describes the last finished job.
type JobSummary struct {
	Operation  string    `json:"operation"`
	Filename   string    `json:"filename,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Busy       bool        `json:"busy"`
	Running    string      `json:"running,omitempty"`
	LastJob    *JobSummary `json:"lastJob,omitempty"`
	LastBackup *time.Time  `json:"lastBackup,omitempty"`
}

// Orchestrator sequences backup operations over one store.
type Orchestrator struct {
	store      *store.Store
	runner     process.Runner
	compressor compress.Compressor
	verifier   *verify.Engine
	deliverer  Deliverer
	publisher  events.Publisher
	probe      Pinger
	db         config.DatabaseConfig
	retention  config.RetentionConfig
	now        func() time.Time
	logger     zerolog.Logger

	jobMu sync.Mutex

	stateMu    sync.RWMutex
	running    string
	lastJob    *JobSummary
	lastBackup *time.Time
}

// New creates an Orchestrator.
//
//nolint:gocritic // options are copied once at construction
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("backup store is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("process runner is required")
	}
	if opts.Compressor == nil {
		opts.Compressor = compress.NewNative(0)
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NopPublisher{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Database.DumpCommand == "" {
		opts.Database.DumpCommand = "pg_dump"
	}
	if opts.Database.RestoreCommand == "" {
		opts.Database.RestoreCommand = "pg_restore"
	}

	return &Orchestrator{
		store:      opts.Store,
		runner:     opts.Runner,
		compressor: opts.Compressor,
		verifier:   verify.NewEngine(opts.Runner, opts.Database.RestoreCommand),
		deliverer:  opts.Deliverer,
		publisher:  opts.Publisher,
		probe:      opts.Probe,
		db:         opts.Database,
		retention:  opts.Retention,
		now:        opts.Now,
		logger:     logging.WithComponent("backup"),
	}, nil
}

// Store returns the artifact store.
func (o *Orchestrator) Store() *store.Store {
	return o.store
}

// DefaultMaxAgeDays is the configured retention age.
func (o *Orchestrator) DefaultMaxAgeDays() int {
	return o.retention.MaxAgeDays
}

// acquire takes the job lock for op. The returned release must be deferred;
// it clears the running state even when the stage panics.
func (o *Orchestrator) acquire(op string) (func(), error) {
	if !o.jobMu.TryLock() {
		metrics.RecordLockContention(op)
		o.stateMu.RLock()
		running := o.running
		o.stateMu.RUnlock()
		return nil, &JobInProgressError{Operation: op, Running: running}
	}

	o.stateMu.Lock()
	o.running = op
	o.stateMu.Unlock()
	metrics.SetJobRunning(true)

	var once sync.Once
	return func() {
		once.Do(func() {
			o.stateMu.Lock()
			o.running = ""
			o.stateMu.Unlock()
			metrics.SetJobRunning(false)
			o.jobMu.Unlock()
		})
	}, nil
}

// finish records the outcome of a job for Status and metrics.
func (o *Orchestrator) finish(op, filename string, started time.Time, err error) {
	summary := &JobSummary{
		Operation:  op,
		Filename:   filename,
		Success:    err == nil,
		StartedAt:  started,
		FinishedAt: o.now(),
	}
	if err != nil {
		summary.Error = err.Error()
	}

	o.stateMu.Lock()
	o.lastJob = summary
	if err == nil && (op == OpCreate || op == OpPipeline) {
		t := summary.FinishedAt
		o.lastBackup = &t
	}
	o.stateMu.Unlock()

	metrics.RecordBackupJob(op, time.Since(started), err)
	if err == nil && (op == OpCreate || op == OpPipeline) {
		metrics.RecordBackupSuccess(summary.FinishedAt)
	}
}

// Status returns the busy flag and the last job summary.
func (o *Orchestrator) Status() Status {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()

	s := Status{Busy: o.running != "", Running: o.running, LastBackup: o.lastBackup}
	if o.lastJob != nil {
		j := *o.lastJob
		s.LastJob = &j
	}
	return s
}

// publish sends e and logs failures. The orchestrator never fails an
// operation because an event could not be published.
func (o *Orchestrator) publish(ctx context.Context, e *events.Event) {
	if err := o.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		o.logger.Warn().Err(err).Str("type", string(e.Type)).Msg("Failed to publish lifecycle event")
	}
}

func (o *Orchestrator) publishArtifact(ctx context.Context, t events.Type, a *store.Artifact, jobID, trigger string) {
	e := events.New(t)
	e.JobID = jobID
	e.Trigger = trigger
	e.Filename = a.Filename
	e.SizeBytes = a.SizeBytes
	e.Compressed = a.Compressed
	e.Verified = string(a.Verified)
	o.publish(ctx, e)
}

func (o *Orchestrator) publishFailure(ctx context.Context, op, filename, jobID, trigger string, err error) {
	e := events.New(events.TypeFailed)
	e.JobID = jobID
	e.Trigger = trigger
	e.Operation = op
	e.Filename = filename
	e.Error = err.Error()
	o.publish(ctx, e)
}

// refreshTotals updates the artifact gauges. Errors are logged only.
func (o *Orchestrator) refreshTotals(ctx context.Context) {
	artifacts, err := o.store.List(ctx)
	if err != nil {
		o.logger.Debug().Err(err).Msg("Failed to refresh artifact totals")
		return
	}
	var total int64
	for _, a := range artifacts {
		total += a.SizeBytes
	}
	metrics.SetArtifactTotals(len(artifacts), total)
}

// reload re-reads a from the store so callers act on current size, mtime and
// verification status.
func (o *Orchestrator) reload(ctx context.Context, a *store.Artifact) (*store.Artifact, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: no artifact given", ErrNotFound)
	}
	return o.store.Get(ctx, a.Filename)
}
