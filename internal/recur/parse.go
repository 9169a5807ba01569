package recur

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"tasknotes/internal/dateutil"
)

// Parse turns an RRULE-style recurrence string into a Rule. The text must
// carry its own anchor via a DTSTART line:
//
//	DTSTART:20251101
//	RRULE:FREQ=MONTHLY;BYMONTHDAY=1
//
// A bare "FREQ=..." body (with or without the RRULE: prefix) is also
// accepted when a DTSTART line is present. Grammar recognition is delegated
// to rrule-go; the resulting options are mapped into calendar-date Rule
// fields here, rejecting anything the evaluator has no calendar-date
// semantics for.
func Parse(text string) (Rule, error) {
	return parse(text, dateutil.LocalDate{})
}

// ParseWithAnchor is Parse for rule text whose anchor is stored out of band
// (the task's scheduled date in the source system). An anchor in the text
// itself is overridden by the explicit one.
func ParseWithAnchor(text string, anchor dateutil.LocalDate) (Rule, error) {
	if !anchor.Valid() {
		return Rule{}, fmt.Errorf("%w: anchor %s is not a valid date", ErrInvalidRule, anchor)
	}
	return parse(text, anchor)
}

func parse(text string, anchor dateutil.LocalDate) (Rule, error) {
	body := ""
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(strings.ToUpper(line), "DTSTART"):
			d, err := parseDtstart(line)
			if err != nil {
				return Rule{}, err
			}
			if anchor.IsZero() {
				anchor = d
			}
		case strings.HasPrefix(strings.ToUpper(line), "RRULE:"):
			body = line[len("RRULE:"):]
		case strings.Contains(strings.ToUpper(line), "FREQ="):
			body = line
		default:
			return Rule{}, fmt.Errorf("%w: unrecognized line %q", ErrInvalidRule, line)
		}
	}
	if body == "" {
		return Rule{}, fmt.Errorf("%w: no RRULE body in %q", ErrInvalidRule, text)
	}
	if anchor.IsZero() {
		return Rule{}, fmt.Errorf("%w: no DTSTART anchor for %q", ErrInvalidRule, text)
	}

	opt, err := rrule.StrToROption(body)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return fromROption(opt, anchor)
}

// parseDtstart reads the date portion of a DTSTART line. Parameters such as
// VALUE=DATE or TZID are tolerated; only the calendar date matters, since
// the anchor has no timezone by definition.
func parseDtstart(line string) (dateutil.LocalDate, error) {
	i := strings.LastIndex(line, ":")
	if i < 0 || i+1 >= len(line) {
		return dateutil.LocalDate{}, fmt.Errorf("%w: bad DTSTART line %q", ErrInvalidRule, line)
	}
	val := strings.TrimSpace(line[i+1:])
	if len(val) < 8 {
		return dateutil.LocalDate{}, fmt.Errorf("%w: bad DTSTART value %q", ErrInvalidRule, val)
	}
	t, err := time.Parse("20060102", val[:8])
	if err != nil {
		return dateutil.LocalDate{}, fmt.Errorf("%w: bad DTSTART value %q", ErrInvalidRule, val)
	}
	y, m, d := t.Date()
	return dateutil.NewLocalDate(y, m, d), nil
}

func fromROption(opt *rrule.ROption, anchor dateutil.LocalDate) (Rule, error) {
	var freq Frequency
	switch opt.Freq {
	case rrule.DAILY:
		freq = Daily
	case rrule.WEEKLY:
		freq = Weekly
	case rrule.MONTHLY:
		freq = Monthly
	case rrule.YEARLY:
		freq = Yearly
	default:
		return Rule{}, fmt.Errorf("%w: unsupported frequency %v", ErrInvalidRule, opt.Freq)
	}

	// Sub-daily and positional selectors have no calendar-date meaning
	// for tasks.
	switch {
	case len(opt.Bysetpos) > 0:
		return Rule{}, fmt.Errorf("%w: BYSETPOS is not supported", ErrInvalidRule)
	case len(opt.Bymonth) > 0:
		return Rule{}, fmt.Errorf("%w: BYMONTH is not supported", ErrInvalidRule)
	case len(opt.Byyearday) > 0:
		return Rule{}, fmt.Errorf("%w: BYYEARDAY is not supported", ErrInvalidRule)
	case len(opt.Byweekno) > 0:
		return Rule{}, fmt.Errorf("%w: BYWEEKNO is not supported", ErrInvalidRule)
	case len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0:
		return Rule{}, fmt.Errorf("%w: sub-daily selectors are not supported", ErrInvalidRule)
	case len(opt.Byeaster) > 0:
		return Rule{}, fmt.Errorf("%w: BYEASTER is not supported", ErrInvalidRule)
	}

	interval := opt.Interval
	if interval == 0 {
		interval = 1
	}

	var byDay WeekdaySet
	for _, wd := range opt.Byweekday {
		if wd.N() != 0 {
			return Rule{}, fmt.Errorf("%w: ordinal BYDAY (%dth weekday) is not supported", ErrInvalidRule, wd.N())
		}
		byDay |= NewWeekdaySet(weekdayFromRRule(wd))
	}

	byMonthDay := 0
	if len(opt.Bymonthday) > 1 {
		return Rule{}, fmt.Errorf("%w: multiple BYMONTHDAY values are not supported", ErrInvalidRule)
	}
	if len(opt.Bymonthday) == 1 {
		byMonthDay = opt.Bymonthday[0]
		if byMonthDay < 1 || byMonthDay > 31 {
			return Rule{}, fmt.Errorf("%w: BYMONTHDAY %d out of range 1-31", ErrInvalidRule, byMonthDay)
		}
	}

	var until dateutil.LocalDate
	if !opt.Until.IsZero() {
		// UNTIL is a calendar bound for date-based recurrence; read the
		// parsed value's own fields.
		until = dateutil.CalendarDateOfIn(opt.Until, dateutil.AssumeAlreadyLocal, nil)
	}

	return NewRule(freq, interval, byDay, byMonthDay, anchor, opt.Count, until)
}

// weekdayFromRRule maps rrule-go's Monday-indexed weekday onto time.Weekday.
func weekdayFromRRule(wd rrule.Weekday) time.Weekday {
	return time.Weekday((wd.Day() + 1) % 7)
}
