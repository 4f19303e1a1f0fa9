// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package backup

import (
	"context"

	"github.com/google/uuid"

	"github.com/tomtom215/dumpvault/internal/events"
	"github.com/tomtom215/dumpvault/internal/metrics"
	"github.com/tomtom215/dumpvault/internal/retention"
)

// CleanupFailure is one artifact that could not be deleted.
type CleanupFailure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// CleanupResult summarizes one cleanup run.
type CleanupResult struct {
	MaxAgeDays int              `json:"maxAgeDays"`
	Removed    int              `json:"removed"`
	FreedBytes int64            `json:"freedBytes"`
	Deleted    []string         `json:"deleted"`
	Failed     []CleanupFailure `json:"failed,omitempty"`

	// Skipped lists expired artifacts left alone because a reader had them open.
	Skipped []string `json:"skipped,omitempty"`

	// Protected is the newest valid artifact kept by keep_last_verified.
	Protected string `json:"protected,omitempty"`
}

func (o *Orchestrator) policy(maxAgeDays int) retention.Policy {
	return retention.Policy{MaxAgeDays: maxAgeDays, KeepLastVerified: o.retention.KeepLastVerified}
}

// Cleanup deletes every artifact older than maxAgeDays. Deletion is best
// effort: a failure is recorded in the result and the batch continues.
func (o *Orchestrator) Cleanup(ctx context.Context, maxAgeDays int) (*CleanupResult, error) {
	release, err := o.acquire(OpCleanup)
	if err != nil {
		return nil, err
	}
	defer release()

	started := o.now()
	res, err := o.cleanupLocked(ctx, maxAgeDays, "")
	o.finish(OpCleanup, "", started, err)
	return res, err
}

func (o *Orchestrator) cleanupLocked(ctx context.Context, maxAgeDays int, trigger string) (*CleanupResult, error) {
	artifacts, err := o.store.List(ctx)
	if err != nil {
		return nil, &FileSystemError{Op: "list", Path: o.store.Dir(), Err: err}
	}

	decision := retention.Classify(artifacts, o.now(), o.policy(maxAgeDays))
	result := &CleanupResult{MaxAgeDays: maxAgeDays, Deleted: []string{}}
	if decision.Protected != nil {
		result.Protected = decision.Protected.Filename
	}

	for _, a := range decision.Expired {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		removed, err := o.store.RemoveUnpinned(a.Filename)
		if err != nil {
			result.Failed = append(result.Failed, CleanupFailure{Filename: a.Filename, Error: err.Error()})
			o.logger.Warn().Err(err).Str("file", a.Filename).Msg("Failed to delete expired backup")
			continue
		}
		if !removed {
			result.Skipped = append(result.Skipped, a.Filename)
			o.logger.Info().Str("file", a.Filename).Msg("Skipping expired backup that is in use")
			continue
		}
		result.Removed++
		result.FreedBytes += a.SizeBytes
		result.Deleted = append(result.Deleted, a.Filename)
		o.logger.Info().
			Str("file", a.Filename).
			Time("created_at", a.CreatedAt).
			Int64("size_bytes", a.SizeBytes).
			Msg("Deleted expired backup")
	}

	metrics.RecordCleanup(result.Removed)
	o.logger.Info().
		Int("max_age_days", maxAgeDays).
		Int("removed", result.Removed).
		Int64("freed_bytes", result.FreedBytes).
		Int("failed", len(result.Failed)).
		Int("skipped", len(result.Skipped)).
		Msg("Retention cleanup finished")

	e := events.New(events.TypeCleaned)
	e.JobID = uuid.NewString()
	e.Trigger = trigger
	e.Removed = result.Removed
	e.FreedBytes = result.FreedBytes
	o.publish(ctx, e)
	o.refreshTotals(ctx)
	return result, nil
}

// RetentionPreview reports what Cleanup(maxAgeDays) would delete right now.
func (o *Orchestrator) RetentionPreview(ctx context.Context, maxAgeDays int) (*retention.Preview, error) {
	artifacts, err := o.store.List(ctx)
	if err != nil {
		return nil, &FileSystemError{Op: "list", Path: o.store.Dir(), Err: err}
	}
	return retention.NewPreview(artifacts, o.now(), o.policy(maxAgeDays)), nil
}

