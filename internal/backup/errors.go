// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package backup

import (
	"errors"
	"fmt"

	"github.com/tomtom215/dumpvault/internal/delivery"
	"github.com/tomtom215/dumpvault/internal/store"
)

var (
	// ErrJobInProgress is matched by every *JobInProgressError.
	ErrJobInProgress = errors.New("a backup job is already in progress")

	// ErrUnverified is matched by every *UnverifiedArtifactError.
	ErrUnverified = errors.New("artifact is not verified")

	// ErrNotFound is returned when the named artifact does not exist.
	ErrNotFound = store.ErrNotFound

	// ErrAlreadyCompressed is returned when compressing a .gz artifact.
	ErrAlreadyCompressed = errors.New("artifact is already compressed")

	// ErrInvalidBackup is matched by every *InvalidBackupError.
	ErrInvalidBackup = errors.New("backup failed verification")
)

// JobInProgressError is returned when the job lock is held.
type JobInProgressError struct {
	// Operation is the rejected operation.
	Operation string
	// Running is the operation holding the lock, when known.
	Running string
}

func (e *JobInProgressError) Error() string {
	if e.Running != "" {
		return fmt.Sprintf("cannot %s: %s is already running", e.Operation, e.Running)
	}
	return fmt.Sprintf("cannot %s: %v", e.Operation, ErrJobInProgress)
}

// Is matches ErrJobInProgress.
func (e *JobInProgressError) Is(target error) bool {
	return target == ErrJobInProgress
}

// BackupFailedError wraps a failed dump or preflight.
type BackupFailedError struct {
	// Stage is preflight or dump.
	Stage string
	Err   error
}

func (e *BackupFailedError) Error() string {
	return fmt.Sprintf("backup failed during %s: %v", e.Stage, e.Err)
}

func (e *BackupFailedError) Unwrap() error { return e.Err }

// CompressionError wraps a failed compression. The original artifact is
// untouched when this is returned.
type CompressionError struct {
	Filename string
	Err      error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("compress %s: %v", e.Filename, e.Err)
}

func (e *CompressionError) Unwrap() error { return e.Err }

// InvalidBackupError reports an artifact that failed verification. The
// artifact stays on disk with status invalid.
type InvalidBackupError struct {
	Filename string
	Message  string
}

func (e *InvalidBackupError) Error() string {
	return fmt.Sprintf("backup %s is invalid: %s", e.Filename, e.Message)
}

// Is matches ErrInvalidBackup.
func (e *InvalidBackupError) Is(target error) bool {
	return target == ErrInvalidBackup
}

// UnverifiedArtifactError rejects a restore from an artifact whose recorded
// status is not valid.
type UnverifiedArtifactError struct {
	Filename string
	Status   store.VerifyStatus
}

func (e *UnverifiedArtifactError) Error() string {
	return fmt.Sprintf("refusing to restore %s: verification status is %s", e.Filename, e.Status)
}

// Is matches ErrUnverified.
func (e *UnverifiedArtifactError) Is(target error) bool {
	return target == ErrUnverified
}

// RestoreError wraps a failed pg_restore run.
type RestoreError struct {
	Filename string
	Err      error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore from %s: %v", e.Filename, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }

// DeliveryError reports recipients that could not be served. The artifact
// and its verification record are unaffected.
type DeliveryError struct {
	Filename string
	Report   *delivery.Report
}

func (e *DeliveryError) Error() string {
	failed := e.Report.FailedRecipients()
	return fmt.Sprintf("delivery of %s failed for %d of %d recipients: %v",
		e.Filename, len(failed), e.Report.Total, failed)
}

// FileSystemError wraps an I/O failure on the artifact directory.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error { return e.Err }
