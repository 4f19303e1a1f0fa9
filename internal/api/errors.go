// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/dumpvault/internal/backup"
	"github.com/tomtom215/dumpvault/internal/process"
	"github.com/tomtom215/dumpvault/internal/schedule"
	"github.com/tomtom215/dumpvault/internal/store"
	"github.com/tomtom215/dumpvault/internal/validation"
)

// Machine-readable error codes.
const (
	CodeValidation        = validation.CodeValidation
	CodeInvalidJSON       = "INVALID_JSON"
	CodeInvalidFilename   = "INVALID_FILENAME"
	CodeNotFound          = "NOT_FOUND"
	CodeJobInProgress     = "JOB_IN_PROGRESS"
	CodeUnverified        = "UNVERIFIED_ARTIFACT"
	CodeInvalidBackup     = "INVALID_BACKUP"
	CodeAlreadyCompressed = "ALREADY_COMPRESSED"
	CodeDeliveryFailed    = "DELIVERY_FAILED"
	CodeNoRecipients      = "NO_RECIPIENTS"
	CodeDeliveryDisabled  = "DELIVERY_DISABLED"
	CodeRestoreFailed     = "RESTORE_FAILED"
	CodeCompressionFailed = "COMPRESSION_FAILED"
	CodeBackupFailed      = "BACKUP_FAILED"
	CodeProcessFailed     = "PROCESS_FAILED"
	CodeProcessTimeout    = "PROCESS_TIMEOUT"
	CodeFileSystem        = "FILESYSTEM_ERROR"
	CodeScheduleConfig    = "SCHEDULE_CONFIG_ERROR"
	CodeNotReady          = "NOT_READY"
	CodeInternal          = "INTERNAL_ERROR"
)

// errorCode maps an error from the backup packages to an HTTP status and a
// machine code. Client-caused conditions are checked before the generic
// server-side wrappers, which may wrap them.
func errorCode(err error) (int, string) {
	var (
		validationErr *validation.RequestValidationError
		jobErr        *backup.JobInProgressError
		unverifiedErr *backup.UnverifiedArtifactError
		invalidErr    *backup.InvalidBackupError
		deliveryErr   *backup.DeliveryError
		restoreErr    *backup.RestoreError
		compressErr   *backup.CompressionError
		failedErr     *backup.BackupFailedError
		processErr    *process.ProcessExecutionError
		fsErr         *backup.FileSystemError
		scheduleErr   *schedule.ScheduleConfigError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, errInvalidJSON):
		return http.StatusBadRequest, CodeInvalidJSON
	case errors.As(err, &jobErr):
		return http.StatusConflict, CodeJobInProgress
	case errors.Is(err, store.ErrInvalidName):
		return http.StatusBadRequest, CodeInvalidFilename
	case errors.Is(err, backup.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.As(err, &unverifiedErr):
		return http.StatusBadRequest, CodeUnverified
	case errors.As(err, &invalidErr):
		return http.StatusUnprocessableEntity, CodeInvalidBackup
	case errors.Is(err, backup.ErrAlreadyCompressed):
		return http.StatusConflict, CodeAlreadyCompressed
	case errors.As(err, &deliveryErr):
		return http.StatusBadGateway, CodeDeliveryFailed
	case errors.Is(err, backup.ErrNoRecipients):
		return http.StatusBadRequest, CodeNoRecipients
	case errors.Is(err, backup.ErrNoDeliverer):
		return http.StatusServiceUnavailable, CodeDeliveryDisabled
	case errors.Is(err, process.ErrTimeout):
		return http.StatusGatewayTimeout, CodeProcessTimeout
	case errors.As(err, &restoreErr):
		return http.StatusInternalServerError, CodeRestoreFailed
	case errors.As(err, &compressErr):
		return http.StatusInternalServerError, CodeCompressionFailed
	case errors.As(err, &failedErr):
		return http.StatusInternalServerError, CodeBackupFailed
	case errors.As(err, &processErr):
		return http.StatusInternalServerError, CodeProcessFailed
	case errors.As(err, &fsErr):
		return http.StatusInternalServerError, CodeFileSystem
	case errors.As(err, &scheduleErr):
		return http.StatusInternalServerError, CodeScheduleConfig
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// errorDetails returns structured context for errors that carry it.
func errorDetails(err error) interface{} {
	var validationErr *validation.RequestValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	var deliveryErr *backup.DeliveryError
	if errors.As(err, &deliveryErr) && deliveryErr.Report != nil {
		return deliveryErr.Report
	}
	return nil
}
