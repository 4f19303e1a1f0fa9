// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package api

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/dumpvault/internal/backup"
	"github.com/tomtom215/dumpvault/internal/delivery"
	"github.com/tomtom215/dumpvault/internal/logging"
	"github.com/tomtom215/dumpvault/internal/retention"
	"github.com/tomtom215/dumpvault/internal/schedule"
	"github.com/tomtom215/dumpvault/internal/store"
	"github.com/tomtom215/dumpvault/internal/verify"
)

// BackupService is the subset of *backup.Orchestrator the handlers use.
type BackupService interface {
	List(ctx context.Context) ([]*store.Artifact, error)
	Get(ctx context.Context, filename string) (*store.Artifact, error)
	Open(ctx context.Context, filename string) (*os.File, *store.Artifact, func(), error)
	Delete(ctx context.Context, filename string) error
	Verify(ctx context.Context, a *store.Artifact) (*verify.Result, error)
	RestoreFrom(ctx context.Context, a *store.Artifact) error
	Cleanup(ctx context.Context, maxAgeDays int) (*backup.CleanupResult, error)
	RetentionPreview(ctx context.Context, maxAgeDays int) (*retention.Preview, error)
	Deliver(ctx context.Context, a *store.Artifact, recipients []string) (*delivery.Report, error)
	CreateAndPublish(ctx context.Context, opts backup.PublishOptions) (*backup.PublishResult, error)
	Status() backup.Status
	DefaultMaxAgeDays() int
}

// ScheduleLister reports upcoming scheduled jobs.
type ScheduleLister interface {
	Upcoming() []schedule.Upcoming
}

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Options configures a Handler.
type Options struct {
	Backups BackupService

	// Schedules is optional; without it /schedules returns an empty list.
	Schedules ScheduleLister

	// Checks run on /health/ready, keyed by dependency name.
	Checks map[string]ReadinessCheck

	// CompressByDefault applies when POST /backups omits compress.
	CompressByDefault bool

	// DefaultRecipients apply when POST /backups sets sendEmail without recipients.
	DefaultRecipients []string

	Version string
}

// Handler holds the dependencies of every HTTP handler.
type Handler struct {
	backups           BackupService
	schedules         ScheduleLister
	checks            map[string]ReadinessCheck
	compressByDefault bool
	defaultRecipients []string
	version           string
	startTime         time.Time
	logger            zerolog.Logger
}

// NewHandler creates a Handler. Backups is required.
//
//nolint:gocritic // options are copied once at construction
func NewHandler(opts Options) (*Handler, error) {
	if opts.Backups == nil {
		return nil, errors.New("api: a backup service is required")
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		backups:           opts.Backups,
		schedules:         opts.Schedules,
		checks:            opts.Checks,
		compressByDefault: opts.CompressByDefault,
		defaultRecipients: opts.DefaultRecipients,
		version:           version,
		startTime:         time.Now(),
		logger:            logging.WithComponent("api"),
	}, nil
}
