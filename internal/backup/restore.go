// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package backup

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/tomtom215/dumpvault/internal/events"
	"github.com/tomtom215/dumpvault/internal/process"
	"github.com/tomtom215/dumpvault/internal/store"
)

// RestoreFrom replays an artifact into the configured database. Only
// artifacts whose recorded status is valid are accepted; anything else is
// rejected before any process runs.
func (o *Orchestrator) RestoreFrom(ctx context.Context, a *store.Artifact) error {
	current, err := o.reload(ctx, a)
	if err != nil {
		return err
	}
	if current.Verified != store.VerifyValid {
		return &UnverifiedArtifactError{Filename: current.Filename, Status: current.Verified}
	}

	release, err := o.acquire(OpRestore)
	if err != nil {
		return err
	}
	defer release()

	started := o.now()
	jobID := uuid.NewString()
	err = o.restoreLocked(ctx, current)
	o.finish(OpRestore, current.Filename, started, err)
	if err != nil {
		o.logger.Error().Err(err).Str("file", current.Filename).Msg("Restore failed")
		o.publishFailure(ctx, OpRestore, current.Filename, jobID, "", err)
		return err
	}

	o.logger.Info().Str("file", current.Filename).Str("database", o.db.Name).Msg("Database restored")
	o.publishArtifact(ctx, events.TypeRestored, current, jobID, "")
	return nil
}

func (o *Orchestrator) restoreLocked(ctx context.Context, a *store.Artifact) error {
	unpin := o.store.Pins().Pin(a.Filename)
	defer unpin()

	f, err := os.Open(a.Path)
	if err != nil {
		return &FileSystemError{Op: "open", Path: a.Path, Err: err}
	}
	defer f.Close()

	var input io.Reader = f
	if a.Compressed {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return &RestoreError{Filename: a.Filename, Err: fmt.Errorf("open gzip stream: %w", err)}
		}
		defer zr.Close()
		input = zr
	}

	cmd := process.Command{
		Name: o.db.RestoreCommand,
		Args: append(o.connArgs(),
			"--clean",
			"--if-exists",
			"--no-owner",
			"--no-privileges",
			"--exit-on-error",
		),
		Stdin: input,
	}
	if o.db.Password != "" {
		cmd.SecretEnv = map[string]string{"PGPASSWORD": o.db.Password}
	}
	if o.db.SSLMode != "" {
		cmd.Env = map[string]string{"PGSSLMODE": o.db.SSLMode}
	}

	if _, err := o.runner.Run(ctx, cmd); err != nil {
		return &RestoreError{Filename: a.Filename, Err: err}
	}
	return nil
}
