// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package schedule

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Cron is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
type Cron struct {
	expr string

	Minutes     []int // 0-59
	Hours       []int // 0-23
	DaysOfMonth []int // 1-31
	Months      []int // 1-12
	DaysOfWeek  []int // 0-6 (0 = Sunday)

	domAny bool
	dowAny bool
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var weekdayNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// ParseCron parses a standard 5-field cron expression.
//
// Supported syntax:
//   - * (any value)
//   - n (specific value, or a name like mon / jan)
//   - n-m (range)
//   - n,m,o (list)
//   - */n and n-m/s (steps)
//
// Examples:
//   - "0 2 * * *"   daily at 02:00
//   - "0 3 * * 0"   Sundays at 03:00
//   - "30 1 1 * *"  01:30 on the first of each month
func ParseCron(expr string) (*Cron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	c := &Cron{expr: strings.Join(fields, " ")}
	var err error

	if c.Minutes, err = parseField(fields[0], 0, 59, nil); err != nil {
		return nil, fmt.Errorf("invalid minute field: %w", err)
	}
	if c.Hours, err = parseField(fields[1], 0, 23, nil); err != nil {
		return nil, fmt.Errorf("invalid hour field: %w", err)
	}
	if c.DaysOfMonth, err = parseField(fields[2], 1, 31, nil); err != nil {
		return nil, fmt.Errorf("invalid day-of-month field: %w", err)
	}
	if c.Months, err = parseField(fields[3], 1, 12, monthNames); err != nil {
		return nil, fmt.Errorf("invalid month field: %w", err)
	}
	dow, err := parseField(fields[4], 0, 7, weekdayNames)
	if err != nil {
		return nil, fmt.Errorf("invalid day-of-week field: %w", err)
	}
	// 7 is an alias for Sunday.
	for i, d := range dow {
		if d == 7 {
			dow[i] = 0
		}
	}
	c.DaysOfWeek = sortedUnique(dow)

	c.domAny = fields[2] == "*"
	c.dowAny = fields[4] == "*"
	return c, nil
}

// String returns the normalized expression.
func (c *Cron) String() string { return c.expr }

// Next returns the first matching minute strictly after after, evaluated in
// loc (UTC when nil). The zero time is returned if nothing matches within
// five years, which only happens for impossible dates like "0 0 31 2 *".
func (c *Cron) Next(after time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t := after.In(loc).Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !slices.Contains(c.Months, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !c.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !slices.Contains(c.Hours, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			continue
		}
		if !slices.Contains(c.Minutes, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

// dayMatches applies the usual cron rule: when both day fields are
// restricted, either one matching is enough.
func (c *Cron) dayMatches(t time.Time) bool {
	dom := slices.Contains(c.DaysOfMonth, t.Day())
	dow := slices.Contains(c.DaysOfWeek, int(t.Weekday()))
	switch {
	case c.domAny && c.dowAny:
		return true
	case c.domAny:
		return dow
	case c.dowAny:
		return dom
	default:
		return dom || dow
	}
}

func parseField(field string, minVal, maxVal int, names map[string]int) ([]int, error) {
	var out []int
	for _, part := range strings.Split(field, ",") {
		values, err := parsePart(part, minVal, maxVal, names)
		if err != nil {
			return nil, err
		}
		out = append(out, values...)
	}
	return sortedUnique(out), nil
}

func parsePart(part string, minVal, maxVal int, names map[string]int) ([]int, error) {
	if part == "" {
		return nil, fmt.Errorf("empty value")
	}

	rangePart, stepPart, hasStep := strings.Cut(part, "/")
	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepPart)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid step value: %s", stepPart)
		}
		step = n
	}

	start, end := minVal, maxVal
	switch {
	case rangePart == "*":
	case strings.Contains(rangePart, "-"):
		lo, hi, _ := strings.Cut(rangePart, "-")
		var err error
		if start, err = parseValue(lo, names); err != nil {
			return nil, err
		}
		if end, err = parseValue(hi, names); err != nil {
			return nil, err
		}
		if start > end {
			return nil, fmt.Errorf("invalid range: %s", rangePart)
		}
	default:
		v, err := parseValue(rangePart, names)
		if err != nil {
			return nil, err
		}
		start = v
		if !hasStep {
			end = v
		}
	}

	if start < minVal || end > maxVal {
		return nil, fmt.Errorf("value out of range: %s (allowed %d-%d)", rangePart, minVal, maxVal)
	}

	out := make([]int, 0, (end-start)/step+1)
	for v := start; v <= end; v += step {
		out = append(out, v)
	}
	return out, nil
}

func parseValue(s string, names map[string]int) (int, error) {
	if v, ok := names[strings.ToLower(s)]; ok {
		return v, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value: %s", s)
	}
	return v, nil
}

func sortedUnique(values []int) []int {
	slices.Sort(values)
	return slices.Compact(values)
}
