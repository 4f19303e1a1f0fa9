// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/dumpvault/internal/logging"
)

// TempSweeper removes stale temporary files.
// Satisfied by *store.Store.
type TempSweeper interface {
	SweepTemp(maxAge time.Duration) (int, error)
}

// TempSweepService periodically removes temporary artifact files that a
// crashed or killed dump left behind. A file is stale once it is older than
// maxAge, which must exceed the longest possible dump.
type TempSweepService struct {
	sweeper  TempSweeper
	interval time.Duration
	maxAge   time.Duration
	logger   zerolog.Logger
}

// NewTempSweepService creates the sweeper. Non-positive values default to
// an hourly sweep of files older than a day.
func NewTempSweepService(sweeper TempSweeper, interval, maxAge time.Duration) *TempSweepService {
	if interval <= 0 {
		interval = time.Hour
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &TempSweepService{
		sweeper:  sweeper,
		interval: interval,
		maxAge:   maxAge,
		logger:   logging.WithComponent("temp-sweeper"),
	}
}

// Serve implements suture.Service. The first sweep runs immediately so
// leftovers from a previous crash are removed at startup.
func (s *TempSweepService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *TempSweepService) sweep() {
	n, err := s.sweeper.SweepTemp(s.maxAge)
	if err != nil {
		// Transient; the next tick retries.
		s.logger.Warn().Err(err).Msg("Temporary file sweep failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int("removed", n).Msg("Swept stale temporary files")
	}
}

// String implements fmt.Stringer for suture's logs.
func (s *TempSweepService) String() string {
	return "temp-sweeper"
}
