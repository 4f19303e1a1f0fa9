// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/dumpvault/internal/config"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeOfDay
		wantErr bool
	}{
		{"02:00", TimeOfDay{2, 0}, false},
		{"2:05", TimeOfDay{2, 5}, false},
		{"23:59", TimeOfDay{23, 59}, false},
		{" 00:00 ", TimeOfDay{0, 0}, false},
		{"24:00", TimeOfDay{}, true},
		{"12:60", TimeOfDay{}, true},
		{"12:5", TimeOfDay{}, true},
		{"noon", TimeOfDay{}, true},
		{"", TimeOfDay{}, true},
		{"-1:30", TimeOfDay{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimeOfDay(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFrequencyAndWeekday(t *testing.T) {
	if f, err := ParseFrequency(" Weekly "); err != nil || f != Weekly {
		t.Errorf("ParseFrequency() = %q, %v", f, err)
	}
	if _, err := ParseFrequency("hourly"); err == nil {
		t.Error("expected error for hourly")
	}

	for input, want := range map[string]time.Weekday{
		"":         time.Sunday,
		"monday":   time.Monday,
		"Fri":      time.Friday,
		"6":        time.Saturday,
		"SATURDAY": time.Saturday,
	} {
		if got, err := ParseWeekday(input); err != nil || got != want {
			t.Errorf("ParseWeekday(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	for _, bad := range []string{"7", "someday"} {
		if _, err := ParseWeekday(bad); err == nil {
			t.Errorf("ParseWeekday(%q) expected error", bad)
		}
	}
}

func TestFromConfig_Errors(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.ScheduleConfig
		field string
	}{
		{"missing name", config.ScheduleConfig{Frequency: "daily", TimeOfDay: "02:00"}, "name"},
		{"bad frequency", config.ScheduleConfig{Name: "x", Frequency: "hourly", TimeOfDay: "02:00"}, "frequency"},
		{"bad time", config.ScheduleConfig{Name: "x", Frequency: "daily", TimeOfDay: "25:00"}, "time_of_day"},
		{"bad weekday", config.ScheduleConfig{Name: "x", Frequency: "weekly", TimeOfDay: "02:00", Weekday: "funday"}, "weekday"},
		{"day 31", config.ScheduleConfig{Name: "x", Frequency: "monthly", TimeOfDay: "02:00", DayOfMonth: 31}, "day_of_month"},
		{"bad cron", config.ScheduleConfig{Name: "x", Cron: "0 2 * *"}, "cron"},
		{"bad timezone", config.ScheduleConfig{Name: "x", Frequency: "daily", TimeOfDay: "02:00", Timezone: "Mars/Olympus"}, "timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromConfig(tt.cfg, time.UTC)
			var sce *ScheduleConfigError
			if !errors.As(err, &sce) {
				t.Fatalf("expected ScheduleConfigError, got %v", err)
			}
			if sce.Field != tt.field {
				t.Errorf("Field = %q, want %q", sce.Field, tt.field)
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	s, err := FromConfig(config.ScheduleConfig{
		Name:       "monthly",
		Enabled:    true,
		Frequency:  "monthly",
		TimeOfDay:  "04:15",
		Recipients: []string{"ops@example.com"},
	}, time.UTC)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if s.DayOfMonth != 1 {
		t.Errorf("DayOfMonth should default to 1, got %d", s.DayOfMonth)
	}
	if s.At != (TimeOfDay{4, 15}) || s.Describe() != "monthly on day 1 at 04:15" {
		t.Errorf("unexpected schedule: %+v (%s)", s, s.Describe())
	}

	w, err := FromConfig(config.ScheduleConfig{Name: "weekly", Frequency: "weekly", TimeOfDay: "01:00"}, time.UTC)
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if w.Weekday != time.Sunday {
		t.Errorf("Weekday should default to Sunday, got %s", w.Weekday)
	}
}

func TestNextFire(t *testing.T) {
	// Wednesday 2026-03-11 10:00 UTC
	after := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		s    *Schedule
		want time.Time
	}{
		{
			name: "daily later today",
			s:    &Schedule{Frequency: Daily, At: TimeOfDay{22, 0}},
			want: time.Date(2026, 3, 11, 22, 0, 0, 0, time.UTC),
		},
		{
			name: "daily already passed",
			s:    &Schedule{Frequency: Daily, At: TimeOfDay{2, 0}},
			want: time.Date(2026, 3, 12, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "daily exactly now fires tomorrow",
			s:    &Schedule{Frequency: Daily, At: TimeOfDay{10, 0}},
			want: time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "weekly later this week",
			s:    &Schedule{Frequency: Weekly, Weekday: time.Friday, At: TimeOfDay{3, 0}},
			want: time.Date(2026, 3, 13, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "weekly same day passed",
			s:    &Schedule{Frequency: Weekly, Weekday: time.Wednesday, At: TimeOfDay{9, 0}},
			want: time.Date(2026, 3, 18, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "weekly same day later",
			s:    &Schedule{Frequency: Weekly, Weekday: time.Wednesday, At: TimeOfDay{11, 0}},
			want: time.Date(2026, 3, 11, 11, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly this month",
			s:    &Schedule{Frequency: Monthly, DayOfMonth: 20, At: TimeOfDay{1, 0}},
			want: time.Date(2026, 3, 20, 1, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly next month",
			s:    &Schedule{Frequency: Monthly, DayOfMonth: 1, At: TimeOfDay{1, 0}},
			want: time.Date(2026, 4, 1, 1, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly day already passed",
			s:    &Schedule{Frequency: Monthly, DayOfMonth: 5, At: TimeOfDay{1, 0}},
			want: time.Date(2026, 4, 5, 1, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextFire(tt.s, after, time.UTC)
			if !got.Equal(tt.want) {
				t.Errorf("NextFire() = %s, want %s", got, tt.want)
			}
			// Pure: same input, same output.
			if again := NextFire(tt.s, after, time.UTC); !again.Equal(got) {
				t.Errorf("NextFire not deterministic: %s vs %s", got, again)
			}
		})
	}

	dec := time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)
	s := &Schedule{Frequency: Monthly, DayOfMonth: 1, At: TimeOfDay{0, 30}}
	if got, want := NextFire(s, dec, nil), time.Date(2027, 1, 1, 0, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("year rollover: got %s, want %s", got, want)
	}
}

func TestNextFire_SequenceAdvances(t *testing.T) {
	s := &Schedule{Frequency: Daily, At: TimeOfDay{2, 0}}
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t1 := NextFire(s, t0, nil)
	t2 := NextFire(s, t1, nil)
	if t2.Sub(t1) != 24*time.Hour {
		t.Errorf("consecutive daily fires should be 24h apart in UTC, got %s", t2.Sub(t1))
	}
}

func TestNextFire_DaylightSaving(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	// Clocks jump from 02:00 to 03:00 on 2026-03-29.
	s := &Schedule{Frequency: Daily, At: TimeOfDay{2, 30}, Location: loc}
	after := time.Date(2026, 3, 28, 12, 0, 0, 0, loc)

	got := NextFire(s, after, nil)
	if got.Day() != 29 || got.Hour() != 3 || got.Minute() != 30 {
		t.Errorf("skipped wall time should fire after the jump, got %s", got)
	}
	if !got.After(after) {
		t.Error("next fire must be after the reference time")
	}
}
