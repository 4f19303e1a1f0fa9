// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

/*
publish.go - Delivery and the Composite Pipeline

CreateAndPublish Stages:
 1. create    dump the database (job lock)
 2. compress  gzip in place, when requested (job lock)
 3. verify    pg_restore --list, when requested (job lock)
 4. deliver   send to recipients, when any (no lock, artifact pinned)
 5. cleanup   retention sweep, scheduler only (re-acquires the lock)

The job lock covers stages 1-3 as one unit. A failed stage stops the stages
after it; earlier stages are never undone. Every stage is reported in
PublishResult.Stages as ok, failed or skipped.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/dumpvault/internal/delivery"
	"github.com/tomtom215/dumpvault/internal/events"
	"github.com/tomtom215/dumpvault/internal/store"
	"github.com/tomtom215/dumpvault/internal/verify"
)

// ErrNoRecipients is returned when a recipient list is empty after blanks
// and duplicates are dropped.
var ErrNoRecipients = errors.New("no delivery recipients")

// ErrNoDeliverer is returned when delivery is requested but not configured.
var ErrNoDeliverer = errors.New("delivery is not configured")

// Stage names reported in PublishResult.
const (
	StageCreate   = "create"
	StageCompress = "compress"
	StageVerify   = "verify"
	StageDeliver  = "deliver"
	StageCleanup  = "cleanup"
)

// Stage outcomes.
const (
	StageOK      = "ok"
	StageFailed  = "failed"
	StageSkipped = "skipped"
)

// PublishOptions selects the stages of CreateAndPublish. Compress has no
// implicit default; callers pass the configured compression.enabled.
type PublishOptions struct {
	Compress   bool
	Verify     bool
	Recipients []string

	// Cleanup runs a retention sweep after delivery. Used by the scheduler.
	Cleanup    bool
	MaxAgeDays int

	// Trigger names the caller (schedule name, api, cli) in logs and events.
	Trigger string
}

// StageResult is the outcome of one pipeline stage.
type StageResult struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

// PublishResult reports the artifact and every stage of one pipeline run.
type PublishResult struct {
	JobID        string           `json:"jobId"`
	Trigger      string           `json:"trigger,omitempty"`
	Artifact     *store.Artifact  `json:"artifact,omitempty"`
	Stages       []StageResult    `json:"stages"`
	Verification *verify.Result   `json:"-"`
	Delivery     *delivery.Report `json:"delivery,omitempty"`
	Cleanup      *CleanupResult   `json:"cleanup,omitempty"`
}

// Stage returns the result of the named stage.
func (r *PublishResult) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Deliver sends a to recipients. A report with any failed recipient is
// returned together with a *DeliveryError. The artifact and its verification
// record are never modified.
func (o *Orchestrator) Deliver(ctx context.Context, a *store.Artifact, recipients []string) (*delivery.Report, error) {
	return o.deliver(ctx, a, recipients, uuid.NewString(), "")
}

func (o *Orchestrator) deliver(ctx context.Context, a *store.Artifact, recipients []string, jobID, trigger string) (*delivery.Report, error) {
	if o.deliverer == nil {
		return nil, ErrNoDeliverer
	}
	recipients = delivery.NormalizeRecipients(recipients)
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}
	if a == nil {
		return nil, ErrNotFound
	}

	unpin := o.store.Pins().Pin(a.Filename)
	defer unpin()

	current, err := o.reload(ctx, a)
	if err != nil {
		return nil, err
	}

	report := o.deliverer.Deliver(ctx, current, recipients, trigger)

	e := events.New(events.TypeDelivered)
	e.JobID = jobID
	e.Trigger = trigger
	e.Filename = current.Filename
	e.SizeBytes = current.SizeBytes
	e.Compressed = current.Compressed
	e.Verified = string(current.Verified)
	e.Delivered = report.Successful
	e.Failed = report.Failed
	o.publish(ctx, e)

	if report.Failed > 0 {
		err := &DeliveryError{Filename: current.Filename, Report: report}
		o.logger.Warn().Err(err).Str("delivery_id", report.DeliveryID).Msg("Delivery incomplete")
		o.publishFailure(ctx, OpDeliver, current.Filename, jobID, trigger, err)
		return report, err
	}
	return report, nil
}

// CreateAndPublish runs the full pipeline. The returned result is non-nil
// whenever the job lock was acquired, including on failure.
func (o *Orchestrator) CreateAndPublish(ctx context.Context, opts PublishOptions) (*PublishResult, error) {
	if len(opts.Recipients) > 0 {
		// Reject blank-only lists before a dump is taken.
		if opts.Recipients = delivery.NormalizeRecipients(opts.Recipients); len(opts.Recipients) == 0 {
			return nil, ErrNoRecipients
		}
	}

	release, err := o.acquire(OpPipeline)
	if err != nil {
		return nil, err
	}
	defer release()

	started := o.now()
	res := &PublishResult{JobID: uuid.NewString(), Trigger: opts.Trigger, Stages: []StageResult{}}

	o.logger.Info().
		Str("job_id", res.JobID).
		Str("trigger", opts.Trigger).
		Bool("compress", opts.Compress).
		Bool("verify", opts.Verify).
		Int("recipients", len(opts.Recipients)).
		Bool("cleanup", opts.Cleanup).
		Msg("Starting backup pipeline")

	err = o.runLockedStages(ctx, opts, res)
	release()

	if err == nil {
		err = o.runUnlockedStages(ctx, opts, res)
	} else {
		res.skip(StageDeliver, StageCleanup)
	}

	o.finish(OpPipeline, artifactName(res.Artifact), started, err)
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", res.JobID).Msg("Backup pipeline failed")
		return res, err
	}
	o.logger.Info().Str("job_id", res.JobID).Str("file", res.Artifact.Filename).Msg("Backup pipeline completed")
	return res, nil
}

func (o *Orchestrator) runLockedStages(ctx context.Context, opts PublishOptions, res *PublishResult) error {
	t := o.now()
	a, err := o.createLocked(ctx, res.JobID, opts.Trigger)
	res.record(StageCreate, o.now().Sub(t), err)
	if err != nil {
		res.skip(StageCompress, StageVerify)
		return err
	}
	res.Artifact = a

	if opts.Compress {
		t = o.now()
		compressed, err := o.compressLocked(ctx, a, res.JobID, opts.Trigger)
		res.record(StageCompress, o.now().Sub(t), err)
		if err != nil {
			res.skip(StageVerify)
			return err
		}
		res.Artifact = compressed
	} else {
		res.skip(StageCompress)
	}

	if !opts.Verify {
		res.skip(StageVerify)
		return nil
	}

	t = o.now()
	vr, err := o.verifyArtifact(ctx, res.Artifact, res.JobID, opts.Trigger)
	if err == nil && !vr.Valid() {
		err = &InvalidBackupError{Filename: res.Artifact.Filename, Message: vr.Message}
		o.publishFailure(ctx, OpVerify, res.Artifact.Filename, res.JobID, opts.Trigger, err)
	}
	res.Verification = vr
	res.record(StageVerify, o.now().Sub(t), err)
	return err
}

func (o *Orchestrator) runUnlockedStages(ctx context.Context, opts PublishOptions, res *PublishResult) error {
	if len(opts.Recipients) > 0 {
		t := o.now()
		report, err := o.deliver(ctx, res.Artifact, opts.Recipients, res.JobID, opts.Trigger)
		res.Delivery = report
		res.record(StageDeliver, o.now().Sub(t), err)
		if err != nil {
			res.skip(StageCleanup)
			return err
		}
	} else {
		res.skip(StageDeliver)
	}

	if !opts.Cleanup {
		res.skip(StageCleanup)
		return nil
	}

	maxAge := opts.MaxAgeDays
	if maxAge <= 0 {
		maxAge = o.retention.MaxAgeDays
	}
	t := o.now()
	cleanup, err := o.Cleanup(ctx, maxAge)
	res.Cleanup = cleanup
	res.record(StageCleanup, o.now().Sub(t), err)
	return err
}

func (r *PublishResult) record(stage string, d time.Duration, err error) {
	s := StageResult{Stage: stage, Status: StageOK, DurationMS: d.Milliseconds()}
	if err != nil {
		s.Status = StageFailed
		s.Error = err.Error()
	}
	r.Stages = append(r.Stages, s)
}

func (r *PublishResult) skip(stages ...string) {
	for _, stage := range stages {
		r.Stages = append(r.Stages, StageResult{Stage: stage, Status: StageSkipped})
	}
}
