// Package cron parses standard 5-field cron expressions and computes
// the next fire instant after a given time. The minute-stepping search
// algorithm is specified precisely enough (advance minute-by-minute,
// cap at four weeks) that reaching for a third-party cron library would
// hide the exact behavior this package's tests probe; it is written
// directly against the standard library's time package.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flowctl/reconctl/pkg/errs"
)

const maxSearchWindow = 4 * 7 * 24 * time.Hour

// fieldRange describes the valid value bounds for one of the five
// cron fields.
type fieldRange struct {
	min, max int
}

var fieldRanges = [5]fieldRange{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 6},  // day of week
}

// Schedule is a parsed 5-field cron expression, reduced to the set of
// allowed values per field.
type Schedule struct {
	expr    string
	allowed [5]map[int]bool
}

// Parse parses a standard 5-field expression (minute hour
// day-of-month month day-of-week), returning an error with code
// CodeSpecValidationFailed if it is malformed.
func Parse(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, errs.New(errs.CodeSpecValidationFailed, fmt.Sprintf("cron expression must have 5 fields, got %d", len(fields)))
	}

	s := &Schedule{expr: expr}
	for i, field := range fields {
		allowed, err := parseField(field, fieldRanges[i])
		if err != nil {
			return nil, errs.New(errs.CodeSpecValidationFailed, fmt.Sprintf("field %d (%q): %v", i, field, err))
		}
		s.allowed[i] = allowed
	}
	return s, nil
}

// IsValid reports whether expr parses as a well-formed 5-field cron
// expression.
func IsValid(expr string) bool {
	_, err := Parse(expr)
	return err == nil
}

func parseField(field string, r fieldRange) (map[int]bool, error) {
	allowed := make(map[int]bool)

	for _, part := range strings.Split(field, ",") {
		if err := parsePart(part, r, allowed); err != nil {
			return nil, err
		}
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("no values matched")
	}
	return allowed, nil
}

func parsePart(part string, r fieldRange, allowed map[int]bool) error {
	step := 1
	base := part

	if idx := strings.Index(part, "/"); idx >= 0 {
		base = part[:idx]
		n, err := strconv.Atoi(part[idx+1:])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid step in %q", part)
		}
		step = n
	}

	var lo, hi int
	switch {
	case base == "*":
		lo, hi = r.min, r.max
	case strings.Contains(base, "-"):
		bounds := strings.SplitN(base, "-", 2)
		if len(bounds) != 2 {
			return fmt.Errorf("invalid range %q", base)
		}
		var err error
		lo, err = strconv.Atoi(bounds[0])
		if err != nil {
			return fmt.Errorf("invalid range start %q", bounds[0])
		}
		hi, err = strconv.Atoi(bounds[1])
		if err != nil {
			return fmt.Errorf("invalid range end %q", bounds[1])
		}
	default:
		n, err := strconv.Atoi(base)
		if err != nil {
			return fmt.Errorf("invalid value %q", base)
		}
		lo, hi = n, n
	}

	if lo < r.min || hi > r.max || lo > hi {
		return fmt.Errorf("value %q out of range [%d-%d]", base, r.min, r.max)
	}

	for v := lo; v <= hi; v += step {
		allowed[v] = true
	}
	return nil
}

// NextFire returns the next instant after from (exclusive) satisfying
// the schedule, with from and the result interpreted in loc. Internal
// search is done in UTC; loc is used only at the field-matching
// boundary, per this package's IANA-timezone convention. The search is
// capped at four weeks; a schedule with no fire in that window (e.g.
// February 30th) returns an error.
func (s *Schedule) NextFire(from time.Time, loc *time.Location) (time.Time, error) {
	candidate := from.In(loc).Truncate(time.Minute).Add(time.Minute)
	deadline := from.Add(maxSearchWindow)

	for candidate.Before(deadline) {
		if s.matches(candidate) {
			return candidate.UTC(), nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, errs.New(errs.CodeSpecValidationFailed, fmt.Sprintf("no fire time for %q within four weeks of %s", s.expr, from))
}

func (s *Schedule) matches(t time.Time) bool {
	return s.allowed[0][t.Minute()] &&
		s.allowed[1][t.Hour()] &&
		s.allowed[2][t.Day()] &&
		s.allowed[3][int(t.Month())] &&
		s.allowed[4][int(t.Weekday())]
}
