// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

/*
manager_crud.go - Artifact Creation, Compression and Lookup

Backup Creation Flow:
 1. Take the job lock (or fail with *JobInProgressError)
 2. Optionally ping the database with pgx (preflight)
 3. Run pg_dump --format=custom into a hidden temporary file
 4. Reject a missing or empty dump
 5. Rename the temporary file to its final name (no clobber)

Any failure removes the temporary file, so a failed dump never leaves a
partial or zero-byte artifact behind.

Compression Flow:
 1. Write <name>.gz to a hidden temporary file
 2. fsync and rename it into place
 3. Remove the original and its verification record

On failure the temporary output is removed and the original is untouched.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/dumpvault/internal/events"
	"github.com/tomtom215/dumpvault/internal/process"
	"github.com/tomtom215/dumpvault/internal/store"
)

// CreateBackup dumps the database into a new artifact.
func (o *Orchestrator) CreateBackup(ctx context.Context) (*store.Artifact, error) {
	release, err := o.acquire(OpCreate)
	if err != nil {
		return nil, err
	}
	defer release()

	started := o.now()
	jobID := uuid.NewString()
	a, err := o.createLocked(ctx, jobID, "")
	o.finish(OpCreate, artifactName(a), started, err)
	return a, err
}

func (o *Orchestrator) createLocked(ctx context.Context, jobID, trigger string) (*store.Artifact, error) {
	if o.db.Preflight && o.probe != nil {
		if err := o.probe.Ping(ctx); err != nil {
			err = &BackupFailedError{Stage: "preflight", Err: err}
			o.publishFailure(ctx, OpCreate, "", jobID, trigger, err)
			return nil, err
		}
	}

	name := store.NewFilename(store.KindDatabase, o.now())
	tmp := o.store.TempPath(name)

	a, err := o.dump(ctx, name, tmp)
	if err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			o.logger.Warn().Err(rmErr).Str("path", tmp).Msg("Failed to remove partial dump")
		}
		o.logger.Error().Err(err).Str("file", name).Msg("Backup failed")
		o.publishFailure(ctx, OpCreate, name, jobID, trigger, err)
		return nil, err
	}

	o.logger.Info().
		Str("file", a.Filename).
		Int64("size_bytes", a.SizeBytes).
		Msg("Backup created")
	o.publishArtifact(ctx, events.TypeCreated, a, jobID, trigger)
	o.refreshTotals(ctx)
	return a, nil
}

func (o *Orchestrator) dump(ctx context.Context, name, tmp string) (*store.Artifact, error) {
	cmd := process.Command{
		Name: o.db.DumpCommand,
		Args: append(o.connArgs(),
			"--format=custom",
			"--no-owner",
			"--no-privileges",
			"--file="+tmp,
		),
		Dir: o.store.Dir(),
	}
	if o.db.Password != "" {
		cmd.SecretEnv = map[string]string{"PGPASSWORD": o.db.Password}
	}
	if o.db.SSLMode != "" {
		cmd.Env = map[string]string{"PGSSLMODE": o.db.SSLMode}
	}

	if _, err := o.runner.Run(ctx, cmd); err != nil {
		return nil, &BackupFailedError{Stage: "dump", Err: err}
	}

	info, err := os.Stat(tmp)
	if err != nil {
		return nil, &FileSystemError{Op: "stat dump output", Path: tmp, Err: err}
	}
	if info.Size() == 0 {
		return nil, &FileSystemError{Op: "check dump output", Path: tmp, Err: errors.New("dump produced an empty file")}
	}

	a, err := o.store.Commit(ctx, tmp, name)
	if err != nil {
		return nil, &FileSystemError{Op: "commit", Path: o.store.Path(name), Err: err}
	}
	return a, nil
}

// connArgs returns the libpq connection flags shared by pg_dump and pg_restore.
func (o *Orchestrator) connArgs() []string {
	var args []string
	if o.db.Host != "" {
		args = append(args, "--host="+o.db.Host)
	}
	if o.db.Port != 0 {
		args = append(args, "--port="+strconv.Itoa(o.db.Port))
	}
	if o.db.User != "" {
		args = append(args, "--username="+o.db.User)
	}
	args = append(args, "--no-password")
	if o.db.Name != "" {
		args = append(args, "--dbname="+o.db.Name)
	}
	return args
}

// Compress replaces a with its gzip form and returns the new artifact.
func (o *Orchestrator) Compress(ctx context.Context, a *store.Artifact) (*store.Artifact, error) {
	release, err := o.acquire(OpCompress)
	if err != nil {
		return nil, err
	}
	defer release()

	started := o.now()
	out, err := o.compressLocked(ctx, a, uuid.NewString(), "")
	o.finish(OpCompress, artifactName(a), started, err)
	return out, err
}

func (o *Orchestrator) compressLocked(ctx context.Context, a *store.Artifact, jobID, trigger string) (*store.Artifact, error) {
	current, err := o.reload(ctx, a)
	if err != nil {
		return nil, err
	}
	if current.Compressed {
		return nil, &CompressionError{Filename: current.Filename, Err: ErrAlreadyCompressed}
	}

	gzName := store.CompressedName(current.Filename)
	if _, err := os.Lstat(o.store.Path(gzName)); err == nil {
		return nil, &CompressionError{Filename: current.Filename, Err: fmt.Errorf("%w: %s", store.ErrExists, gzName)}
	}
	tmp := o.store.TempPath(gzName)

	fail := func(err error) (*store.Artifact, error) {
		if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			o.logger.Warn().Err(rmErr).Str("path", tmp).Msg("Failed to remove partial compressed file")
		}
		err = &CompressionError{Filename: current.Filename, Err: err}
		o.logger.Error().Err(err).Str("file", current.Filename).Msg("Compression failed")
		o.publishFailure(ctx, OpCompress, current.Filename, jobID, trigger, err)
		return nil, err
	}

	start := time.Now()
	if err := o.compressor.Compress(ctx, current.Path, tmp); err != nil {
		return fail(err)
	}
	compressed, err := o.store.Commit(ctx, tmp, gzName)
	if err != nil {
		return fail(err)
	}

	if err := o.store.Remove(current.Filename); err != nil {
		o.logger.Warn().Err(err).Str("file", current.Filename).Msg("Failed to remove uncompressed original")
	}

	o.logger.Info().
		Str("file", compressed.Filename).
		Str("method", o.compressor.Method()).
		Int64("original_bytes", current.SizeBytes).
		Int64("compressed_bytes", compressed.SizeBytes).
		Dur("duration", time.Since(start)).
		Msg("Backup compressed")
	o.publishArtifact(ctx, events.TypeCompressed, compressed, jobID, trigger)
	o.refreshTotals(ctx)
	return compressed, nil
}

// List returns every artifact, newest first.
func (o *Orchestrator) List(ctx context.Context) ([]*store.Artifact, error) {
	return o.store.List(ctx)
}

// Get returns one artifact by filename.
func (o *Orchestrator) Get(ctx context.Context, filename string) (*store.Artifact, error) {
	return o.store.Get(ctx, filename)
}

// Open opens an artifact for download. The file stays pinned against
// cleanup until the returned release func is called; release also closes
// the file.
func (o *Orchestrator) Open(ctx context.Context, filename string) (*os.File, *store.Artifact, func(), error) {
	unpin := o.store.Pins().Pin(filename)
	f, a, err := o.store.Open(ctx, filename)
	if err != nil {
		unpin()
		return nil, nil, nil, err
	}
	return f, a, func() {
		_ = f.Close()
		unpin()
	}, nil
}

// Delete removes one artifact under the job lock.
func (o *Orchestrator) Delete(ctx context.Context, filename string) error {
	release, err := o.acquire(OpDelete)
	if err != nil {
		return err
	}
	defer release()

	started := o.now()
	a, err := o.store.Get(ctx, filename)
	if err == nil {
		removed, rmErr := o.store.RemoveUnpinned(filename)
		switch {
		case rmErr != nil:
			err = rmErr
		case !removed:
			err = &FileSystemError{Op: "delete", Path: a.Path, Err: errors.New("artifact is in use")}
		}
	}
	o.finish(OpDelete, filename, started, err)
	if err != nil {
		return err
	}

	o.logger.Info().Str("file", filename).Msg("Backup deleted")
	o.publishArtifact(ctx, events.TypeDeleted, a, "", "")
	o.refreshTotals(ctx)
	return nil
}

func artifactName(a *store.Artifact) string {
	if a == nil {
		return ""
	}
	return a.Filename
}
