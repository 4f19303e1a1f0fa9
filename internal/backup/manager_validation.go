// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package backup

import (
	"context"

	"github.com/tomtom215/dumpvault/internal/events"
	"github.com/tomtom215/dumpvault/internal/metrics"
	"github.com/tomtom215/dumpvault/internal/store"
	"github.com/tomtom215/dumpvault/internal/verify"
)

// Verify lists the artifact's table of contents and records the verdict in
// the ledger. The file is never modified. Verify does not take the job lock;
// the artifact is pinned so cleanup cannot remove it meanwhile.
func (o *Orchestrator) Verify(ctx context.Context, a *store.Artifact) (*verify.Result, error) {
	return o.verifyArtifact(ctx, a, "", "")
}

func (o *Orchestrator) verifyArtifact(ctx context.Context, a *store.Artifact, jobID, trigger string) (*verify.Result, error) {
	if a == nil {
		return nil, ErrNotFound
	}
	unpin := o.store.Pins().Pin(a.Filename)
	defer unpin()

	current, err := o.reload(ctx, a)
	if err != nil {
		return nil, err
	}

	started := o.now()
	res, err := o.verifier.Verify(ctx, current.Path)
	if err != nil {
		return nil, err
	}

	if recErr := o.store.RecordVerification(current, res.Status, res.Message, res.SHA256); recErr != nil {
		o.logger.Warn().Err(recErr).Str("file", current.Filename).Msg("Failed to record verification result")
	}
	current.Verified = res.Status
	a.Verified = res.Status
	metrics.RecordVerification(string(res.Status))
	metrics.RecordBackupJob(OpVerify, o.now().Sub(started), nil)

	ev := o.logger.Info()
	if !res.Valid() {
		ev = o.logger.Warn()
	}
	ev.Str("file", current.Filename).
		Str("status", string(res.Status)).
		Int("entries", res.Entries).
		Str("message", res.Message).
		Msg("Backup verified")

	o.publishArtifact(ctx, events.TypeVerified, current, jobID, trigger)
	return res, nil
}
