package dateutil

import (
	"fmt"
	"strings"
	"time"
)

// DateValue is a due/scheduled field as stored on a task: either a bare
// calendar date (all-day) or a date with a wall-clock time component.
type DateValue struct {
	Date    LocalDate
	HasTime bool
	// Instant is only meaningful when HasTime is true. It carries the
	// wall-clock time in the location it was parsed with.
	Instant time.Time
}

// ParseLocalDate parses a YYYY-MM-DD string.
func ParseLocalDate(s string) (LocalDate, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return LocalDate{}, fmt.Errorf("%w: %q is not a calendar date", ErrInvalidTemporalValue, s)
	}
	y, m, d := t.Date()
	return LocalDate{Year: y, Month: m, Day: d}, nil
}

// ParseDateValue parses a due/scheduled field. Accepted forms, tried in
// order:
//
//	2006-01-02                      (all-day)
//	2006-01-02T15:04                (local wall-clock time)
//	2006-01-02T15:04:05             (local wall-clock time)
//	RFC 3339 with offset or Z       (converted into loc for the date)
//
// loc is the zone used to interpret zone-less date-times and to resolve the
// calendar date of offset-carrying instants; nil means the host local zone.
func ParseDateValue(s string, loc *time.Location) (DateValue, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return DateValue{}, fmt.Errorf("%w: empty value", ErrInvalidTemporalValue)
	}

	if !strings.Contains(s, "T") {
		d, err := ParseLocalDate(s)
		if err != nil {
			return DateValue{}, err
		}
		return DateValue{Date: d}, nil
	}

	// Zone-less wall-clock forms are already local.
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return DateValue{
				Date:    CalendarDateOfIn(t, AssumeAlreadyLocal, loc),
				HasTime: true,
				Instant: t,
			}, nil
		}
	}

	// Offset-carrying instants are UTC-anchored; the calendar date they
	// belong to is read in the display zone.
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateValue{
			Date:    CalendarDateOfIn(t, AssumeUTCAnchored, loc),
			HasTime: true,
			Instant: t.In(loc),
		}, nil
	}

	return DateValue{}, fmt.Errorf("%w: %q", ErrInvalidTemporalValue, s)
}
