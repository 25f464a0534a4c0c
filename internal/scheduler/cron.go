// Nivesh - Investment Tracking and Referral Accrual Backend
// Copyright 2026 Nivesh Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/niveshhq/nivesh

// Package scheduler provides cron-based scheduling for batch jobs.
package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CronSchedule is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
type CronSchedule struct {
	minutes     map[int]bool // 0-59
	hours       map[int]bool // 0-23
	daysOfMonth map[int]bool // 1-31
	months      map[int]bool // 1-12
	daysOfWeek  map[int]bool // 0-6 (0 = Sunday)

	domWildcard bool
	dowWildcard bool
}

// ParseCron parses a standard 5-field cron expression.
//
// Supported syntax per field:
//   - * (any value)
//   - n (single value)
//   - n-m (range)
//   - n,m,o (list)
//   - */s and n-m/s (steps)
//
// Examples:
//   - "30 0 * * *" - daily at 00:30
//   - "*/30 * * * *" - every 30 minutes
//   - "0 2 * * 1" - Mondays at 02:00
func ParseCron(expr string) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	specs := []struct {
		name     string
		min, max int
	}{
		{"minute", 0, 59},
		{"hour", 0, 23},
		{"day-of-month", 1, 31},
		{"month", 1, 12},
		{"day-of-week", 0, 7},
	}

	parsed := make([]map[int]bool, 5)
	for i, spec := range specs {
		vals, err := parseField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", spec.name, err)
		}
		parsed[i] = vals
	}

	// Cron allows both 0 and 7 for Sunday
	if parsed[4][7] {
		delete(parsed[4], 7)
		parsed[4][0] = true
	}

	return &CronSchedule{
		minutes:     parsed[0],
		hours:       parsed[1],
		daysOfMonth: parsed[2],
		months:      parsed[3],
		daysOfWeek:  parsed[4],
		domWildcard: fields[2] == "*",
		dowWildcard: fields[4] == "*",
	}, nil
}

// NextRun returns the first time after the given instant that matches the
// schedule. If loc is nil, UTC is used.
func (c *CronSchedule) NextRun(after time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t := after.In(loc).Add(time.Minute)
	t = t.Truncate(time.Minute)

	// Bounded search to guard against unsatisfiable expressions
	// (e.g. "0 0 31 2 *"). Four years of minutes is plenty.
	limit := 4 * 366 * 24 * 60
	for i := 0; i < limit; i++ {
		if c.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (c *CronSchedule) matches(t time.Time) bool {
	if !c.minutes[t.Minute()] || !c.hours[t.Hour()] || !c.months[int(t.Month())] {
		return false
	}

	domMatch := c.daysOfMonth[t.Day()]
	dowMatch := c.daysOfWeek[int(t.Weekday())]

	// Standard cron: when both day fields are restricted, either matching
	// is sufficient.
	switch {
	case c.domWildcard && c.dowWildcard:
		return true
	case c.domWildcard:
		return dowMatch
	case c.dowWildcard:
		return domMatch
	default:
		return domMatch || dowMatch
	}
}

// Values returns the sorted allowed values for a field, for diagnostics.
func valuesOf(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// String renders the schedule's allowed values, mainly for log output.
func (c *CronSchedule) String() string {
	return fmt.Sprintf("minutes=%v hours=%v dom=%v months=%v dow=%v",
		valuesOf(c.minutes), valuesOf(c.hours), valuesOf(c.daysOfMonth),
		valuesOf(c.months), valuesOf(c.daysOfWeek))
}

func parseField(field string, minVal, maxVal int) (map[int]bool, error) {
	result := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		if err := parseFieldPart(part, minVal, maxVal, result); err != nil {
			return nil, err
		}
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("empty field")
	}
	return result, nil
}

func parseFieldPart(part string, minVal, maxVal int, out map[int]bool) error {
	step := 1
	if idx := strings.IndexByte(part, '/'); idx >= 0 {
		s, err := strconv.Atoi(part[idx+1:])
		if err != nil || s <= 0 {
			return fmt.Errorf("invalid step value: %s", part[idx+1:])
		}
		step = s
		part = part[:idx]
	}

	start, end := minVal, maxVal
	switch {
	case part == "*":
		// Full range
	case strings.Contains(part, "-"):
		bounds := strings.SplitN(part, "-", 2)
		var err error
		if start, err = strconv.Atoi(bounds[0]); err != nil {
			return fmt.Errorf("invalid range start: %s", bounds[0])
		}
		if end, err = strconv.Atoi(bounds[1]); err != nil {
			return fmt.Errorf("invalid range end: %s", bounds[1])
		}
		if start > end {
			return fmt.Errorf("range start %d exceeds end %d", start, end)
		}
	default:
		val, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("invalid value: %s", part)
		}
		start = val
		if step == 1 {
			end = val
		}
	}

	if start < minVal || end > maxVal {
		return fmt.Errorf("value out of range %d-%d: %s", minVal, maxVal, part)
	}

	for v := start; v <= end; v += step {
		out[v] = true
	}
	return nil
}

// NextRunAfter parses a cron expression and timezone and returns the next
// run time after the given instant.
func NextRunAfter(cronExpr string, after time.Time, timezone string) (time.Time, error) {
	sched, err := ParseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
	}

	return sched.NextRun(after, loc), nil
}
