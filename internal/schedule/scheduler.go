// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

/*
scheduler.go - Backup Scheduler Service

One loop drives every configured schedule plus the retention cleanup job:
  - Each job's next fire time comes from NextFire (pure) and is kept in memory
  - The loop sleeps until the earliest fire time, capped by PollInterval
  - A due job fires in its own goroutine; a job still running is not re-entered
  - Errors from the orchestrator (including lock contention) are logged and
    counted, never returned, so the loop keeps going

Fire times missed while the process was down are not caught up; the first
fire after startup is the next one strictly after the start time.
*/

//nolint:staticcheck // File documentation, not package doc
package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/dumpvault/internal/backup"
	"github.com/tomtom215/dumpvault/internal/config"
	"github.com/tomtom215/dumpvault/internal/logging"
	"github.com/tomtom215/dumpvault/internal/metrics"
)

// Job kinds reported by Upcoming.
const (
	KindBackup  = "backup"
	KindCleanup = "cleanup"
)

// CleanupJobName names the retention job in logs, metrics and Upcoming.
const CleanupJobName = "retention-cleanup"

// Orchestrator is the subset of *backup.Orchestrator the scheduler drives.
type Orchestrator interface {
	CreateAndPublish(ctx context.Context, opts backup.PublishOptions) (*backup.PublishResult, error)
	Cleanup(ctx context.Context, maxAgeDays int) (*backup.CleanupResult, error)
}

// Config holds scheduler settings.
type Config struct {
	Schedules []*Schedule

	// Compress is passed to every scheduled pipeline run.
	Compress bool

	// Cleanup is the retention cadence; nil disables scheduled cleanup.
	Cleanup    *Cron
	MaxAgeDays int

	// Location is used for the cleanup cadence. Defaults to time.Local.
	Location *time.Location

	// PollInterval caps how long the loop sleeps between checks. Default 1m.
	PollInterval time.Duration

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// job is one schedule or the cleanup cadence.
type job struct {
	name     string
	kind     string
	cadence  string
	schedule *Schedule
	nextFn   func(after time.Time) time.Time

	// guarded by Scheduler.mu
	next      time.Time
	running   bool
	lastFire  time.Time
	lastError string
}

// Upcoming describes a job for status endpoints.
type Upcoming struct {
	Name       string     `json:"name"`
	Kind       string     `json:"kind"`
	Cadence    string     `json:"cadence"`
	NextFire   time.Time  `json:"nextFire"`
	Recipients []string   `json:"recipients,omitempty"`
	Running    bool       `json:"running"`
	LastFire   *time.Time `json:"lastFire,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
}

// Scheduler fires backups and cleanup on their cadences.
type Scheduler struct {
	orch       Orchestrator
	compress   bool
	maxAgeDays int
	poll       time.Duration
	now        func() time.Time
	logger     zerolog.Logger

	mu   sync.Mutex
	jobs []*job
	wg   sync.WaitGroup
}

// New creates a scheduler. Disabled schedules are ignored. Schedules are
// expected to be validated already (see FromConfig).
//
//nolint:gocritic // config is copied once at construction
func New(orch Orchestrator, cfg Config) (*Scheduler, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	s := &Scheduler{
		orch:       orch,
		compress:   cfg.Compress,
		maxAgeDays: cfg.MaxAgeDays,
		poll:       cfg.PollInterval,
		now:        cfg.Now,
		logger:     logging.WithComponent("scheduler"),
	}

	seen := make(map[string]bool)
	for _, sch := range cfg.Schedules {
		if sch == nil || !sch.Enabled {
			continue
		}
		if err := sch.Validate(); err != nil {
			return nil, err
		}
		if seen[sch.Name] || sch.Name == CleanupJobName {
			return nil, &ScheduleConfigError{Schedule: sch.Name, Field: "name", Message: "must be unique"}
		}
		seen[sch.Name] = true

		s.jobs = append(s.jobs, &job{
			name:     sch.Name,
			kind:     KindBackup,
			cadence:  sch.Describe(),
			schedule: sch,
			nextFn:   func(after time.Time) time.Time { return NextFire(sch, after, nil) },
		})
	}

	if cfg.Cleanup != nil {
		c, loc := cfg.Cleanup, cfg.Location
		s.jobs = append(s.jobs, &job{
			name:    CleanupJobName,
			kind:    KindCleanup,
			cadence: "cron " + c.String(),
			nextFn:  func(after time.Time) time.Time { return c.Next(after, loc) },
		})
	}

	s.plan(cfg.Now())
	return s, nil
}

// plan sets every job's next fire time relative to now.
func (s *Scheduler) plan(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		j.next = j.nextFn(now)
		metrics.SetScheduleNextFire(j.name, j.next)
	}
}

// Serve runs the loop until ctx is canceled and then waits for in-flight
// jobs. It implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.mu.Lock()
	count := len(s.jobs)
	s.mu.Unlock()
	s.logger.Info().Int("jobs", count).Msg("Scheduler started")

	s.plan(s.now())
	defer s.wg.Wait()

	for {
		wait := s.untilNext(s.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("Scheduler stopping")
			return ctx.Err()
		case <-timer.C:
			s.tick(ctx, s.now())
		}
	}
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string { return "backup-scheduler" }

// untilNext returns the sleep before the next due job, at most the poll
// interval.
func (s *Scheduler) untilNext(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	wait := s.poll
	for _, j := range s.jobs {
		if j.next.IsZero() {
			continue
		}
		if d := j.next.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// tick fires every job due at now and advances its next fire time.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.next.IsZero() || now.Before(j.next) {
			continue
		}
		due := j.next
		j.next = j.nextFn(now)
		metrics.SetScheduleNextFire(j.name, j.next)

		if j.running {
			s.logger.Warn().
				Str("job", j.name).
				Time("due", due).
				Msg("Skipping fire, previous run still in progress")
			continue
		}
		j.running = true
		j.lastFire = now

		s.wg.Add(1)
		go s.fire(ctx, j)
	}
}

// fire runs one job. Errors and panics are logged and never propagate.
func (s *Scheduler) fire(ctx context.Context, j *job) {
	defer s.wg.Done()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error().Str("job", j.name).Interface("panic", r).Msg("Scheduled job panicked")
		}
		s.mu.Lock()
		j.running = false
		j.lastError = ""
		if err != nil {
			j.lastError = err.Error()
		}
		s.mu.Unlock()
		metrics.RecordScheduleFire(j.name, err)
	}()

	jobCtx := logging.ContextWithJobID(ctx, logging.GenerateJobID())
	logger := s.logger.With().Str("job", j.name).Str("kind", j.kind).Logger()
	logger.Info().Msg("Scheduled job firing")

	switch j.kind {
	case KindCleanup:
		var res *backup.CleanupResult
		res, err = s.orch.Cleanup(jobCtx, s.maxAgeDays)
		if err == nil {
			logger.Info().Int("removed", res.Removed).Int64("freed_bytes", res.FreedBytes).Msg("Scheduled cleanup finished")
		}
	default:
		var res *backup.PublishResult
		res, err = s.orch.CreateAndPublish(jobCtx, backup.PublishOptions{
			Compress:   s.compress,
			Verify:     true,
			Recipients: j.schedule.Recipients,
			Trigger:    j.name,
		})
		if err == nil && res.Artifact != nil {
			logger.Info().Str("file", res.Artifact.Filename).Msg("Scheduled backup finished")
		}
	}

	if err != nil {
		logger.Error().Err(err).Msg("Scheduled job failed")
	}
}

// Upcoming lists every job with its next fire time, soonest first.
func (s *Scheduler) Upcoming() []Upcoming {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Upcoming, 0, len(s.jobs))
	for _, j := range s.jobs {
		u := Upcoming{
			Name:      j.name,
			Kind:      j.kind,
			Cadence:   j.cadence,
			NextFire:  j.next,
			Running:   j.running,
			LastError: j.lastError,
		}
		if j.schedule != nil {
			u.Recipients = append([]string(nil), j.schedule.Recipients...)
		}
		if !j.lastFire.IsZero() {
			t := j.lastFire
			u.LastFire = &t
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].NextFire.Before(out[b].NextFire) })
	return out
}

// Preview computes the next n fire times of every job after now without
// touching scheduler state.
func (s *Scheduler) Preview(now time.Time, n int) map[string][]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]time.Time, len(s.jobs))
	for _, j := range s.jobs {
		t := now
		for range n {
			t = j.nextFn(t)
			if t.IsZero() {
				break
			}
			out[j.name] = append(out[j.name], t)
		}
	}
	return out
}

// LoadConfig builds the scheduler config from the application config. It
// returns the first *ScheduleConfigError found, so the caller can refuse to
// start with a malformed cadence.
func LoadConfig(app *config.Config) (Config, error) {
	cfg := Config{
		Compress:   app.Compression.Enabled,
		MaxAgeDays: app.Retention.MaxAgeDays,
		Location:   time.Local,
	}
	for i := range app.Schedules {
		sch, err := FromConfig(app.Schedules[i], time.Local)
		if err != nil {
			return Config{}, err
		}
		cfg.Schedules = append(cfg.Schedules, sch)
	}
	if app.Retention.CleanupEnabled {
		c, err := ParseCron(app.Retention.CleanupSchedule)
		if err != nil {
			return Config{}, &ScheduleConfigError{
				Schedule: CleanupJobName,
				Field:    "cleanup_schedule",
				Value:    app.Retention.CleanupSchedule,
				Message:  err.Error(),
			}
		}
		cfg.Cleanup = c
	}
	return cfg, nil
}
