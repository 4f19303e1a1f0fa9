// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/dumpvault/internal/config"
)

// Frequency is the cadence of a recurring backup.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// MaxDayOfMonth keeps monthly schedules on days every month has.
const MaxDayOfMonth = 28

// ScheduleConfigError reports a malformed cadence found at startup.
//
//nolint:revive // name mirrors the other error kinds surfaced by the API
type ScheduleConfigError struct {
	Schedule string
	Field    string
	Value    string
	Message  string
}

func (e *ScheduleConfigError) Error() string {
	name := e.Schedule
	if name == "" {
		name = "<unnamed>"
	}
	if e.Value == "" {
		return fmt.Sprintf("schedule %s: %s: %s", name, e.Field, e.Message)
	}
	return fmt.Sprintf("schedule %s: %s %q: %s", name, e.Field, e.Value, e.Message)
}

// TimeOfDay is a wall-clock hour and minute.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses "HH:MM" in 24-hour form.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return TimeOfDay{}, fmt.Errorf("want HH:MM")
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("hour must be 0-23")
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("minute must be 0-59")
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// ParseFrequency parses daily, weekly or monthly (case-insensitive).
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case Daily, Weekly, Monthly:
		return f, nil
	default:
		return "", fmt.Errorf("must be daily, weekly or monthly")
	}
}

// ParseWeekday accepts full or three-letter English names and 0-6.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return time.Sunday, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("must be 0-6")
		}
		return time.Weekday(n), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday")
}

// Schedule is one recurring backup. It is built from configuration at
// startup and not modified afterwards.
type Schedule struct {
	Name       string
	Enabled    bool
	Frequency  Frequency
	At         TimeOfDay
	Weekday    time.Weekday
	DayOfMonth int

	// Cron, when set, replaces Frequency and At.
	Cron *Cron

	Recipients []string
	Location   *time.Location
}

// FromConfig builds and validates a Schedule. loc is used when the schedule
// names no timezone of its own.
//
//nolint:gocritic // config is copied once at startup
func FromConfig(cfg config.ScheduleConfig, loc *time.Location) (*Schedule, error) {
	s := &Schedule{
		Name:       strings.TrimSpace(cfg.Name),
		Enabled:    cfg.Enabled,
		DayOfMonth: cfg.DayOfMonth,
		Recipients: append([]string(nil), cfg.Recipients...),
		Location:   loc,
	}
	if s.Name == "" {
		return nil, &ScheduleConfigError{Field: "name", Message: "is required"}
	}
	fail := func(field, value string, err error) error {
		return &ScheduleConfigError{Schedule: s.Name, Field: field, Value: value, Message: err.Error()}
	}

	if cfg.Timezone != "" {
		tz, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fail("timezone", cfg.Timezone, fmt.Errorf("unknown timezone"))
		}
		s.Location = tz
	}

	if cfg.Cron != "" {
		c, err := ParseCron(cfg.Cron)
		if err != nil {
			return nil, fail("cron", cfg.Cron, err)
		}
		s.Cron = c
		return s, nil
	}

	var err error
	if s.Frequency, err = ParseFrequency(cfg.Frequency); err != nil {
		return nil, fail("frequency", cfg.Frequency, err)
	}
	if s.At, err = ParseTimeOfDay(cfg.TimeOfDay); err != nil {
		return nil, fail("time_of_day", cfg.TimeOfDay, err)
	}
	if s.Frequency == Weekly {
		if s.Weekday, err = ParseWeekday(cfg.Weekday); err != nil {
			return nil, fail("weekday", cfg.Weekday, err)
		}
	}
	if s.Frequency == Monthly && s.DayOfMonth == 0 {
		s.DayOfMonth = 1
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks field ranges.
func (s *Schedule) Validate() error {
	if s.Cron != nil {
		return nil
	}
	if _, err := ParseFrequency(string(s.Frequency)); err != nil {
		return &ScheduleConfigError{Schedule: s.Name, Field: "frequency", Value: string(s.Frequency), Message: err.Error()}
	}
	if s.At.Hour < 0 || s.At.Hour > 23 || s.At.Minute < 0 || s.At.Minute > 59 {
		return &ScheduleConfigError{Schedule: s.Name, Field: "time_of_day", Value: s.At.String(), Message: "out of range"}
	}
	if s.Frequency == Monthly && (s.DayOfMonth < 1 || s.DayOfMonth > MaxDayOfMonth) {
		return &ScheduleConfigError{
			Schedule: s.Name,
			Field:    "day_of_month",
			Value:    strconv.Itoa(s.DayOfMonth),
			Message:  fmt.Sprintf("must be 1-%d", MaxDayOfMonth),
		}
	}
	return nil
}

// Describe returns a short human form of the cadence.
func (s *Schedule) Describe() string {
	switch {
	case s.Cron != nil:
		return "cron " + s.Cron.String()
	case s.Frequency == Weekly:
		return fmt.Sprintf("weekly on %s at %s", s.Weekday, s.At)
	case s.Frequency == Monthly:
		return fmt.Sprintf("monthly on day %d at %s", s.DayOfMonth, s.At)
	default:
		return "daily at " + s.At.String()
	}
}

// NextFire returns the first fire time of s strictly after after, in loc
// (the schedule's own location when loc is nil, UTC when both are nil).
// It holds no state and reads no clock.
//
// A wall-clock time skipped by a daylight-saving jump fires at the
// equivalent instant after the jump.
func NextFire(s *Schedule, after time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = s.Location
	}
	if loc == nil {
		loc = time.UTC
	}
	if s.Cron != nil {
		return s.Cron.Next(after, loc)
	}

	local := after.In(loc)
	y, m, d := local.Date()
	at := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, s.At.Hour, s.At.Minute, 0, 0, loc)
	}

	switch s.Frequency {
	case Weekly:
		delta := (int(s.Weekday) - int(local.Weekday()) + 7) % 7
		next := at(y, m, d+delta)
		if !next.After(after) {
			next = at(y, m, d+delta+7)
		}
		return next
	case Monthly:
		next := at(y, m, s.DayOfMonth)
		if !next.After(after) {
			next = at(y, m+1, s.DayOfMonth)
		}
		return next
	default:
		next := at(y, m, d)
		if !next.After(after) {
			next = at(y, m, d+1)
		}
		return next
	}
}
