// Package recur evaluates task recurrence rules in calendar-date space.
//
// Rules are evaluated purely on year/month/day integers relative to the
// series anchor. Instant-based libraries are deliberately kept out of the
// evaluation path: converting occurrence dates through time.Time shifts them
// across DST transitions, which is the defect class this package exists to
// prevent.
package recur

import (
	"errors"
	"fmt"
	"time"

	"tasknotes/internal/dateutil"
)

var (
	// ErrInvalidRule marks a rule that is malformed at construction time
	// (bad interval, out-of-range day, conflicting bounds).
	ErrInvalidRule = errors.New("invalid recurrence rule")

	// ErrMalformedRule marks a rule that parsed but is semantically
	// inconsistent in a way only checked at evaluation time, e.g. a
	// BYMONTHDAY on a weekly rule. Batch callers isolate this per task.
	ErrMalformedRule = errors.New("malformed recurrence rule")
)

type Frequency int

const (
	Daily Frequency = iota
	Weekly
	Monthly
	Yearly
)

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Yearly:
		return "yearly"
	default:
		return fmt.Sprintf("frequency(%d)", int(f))
	}
}

// WeekdaySet is an unordered set of weekdays. Presentation ordering (which
// day a week starts on) is a caller concern; the set itself has none.
type WeekdaySet uint8

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

func (s WeekdaySet) Contains(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

func (s WeekdaySet) Empty() bool {
	return s == 0
}

func (s WeekdaySet) Len() int {
	n := 0
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Contains(d) {
			n++
		}
	}
	return n
}

// Rule is an immutable recurrence definition. Construct via NewRule or the
// parser in parse.go; the zero value is not valid.
type Rule struct {
	Freq     Frequency
	Interval int

	// ByDay restricts weekly rules to specific weekdays.
	ByDay WeekdaySet

	// ByMonthDay pins monthly rules to a day of month; 0 means "use the
	// anchor's day". Months shorter than the target day are skipped
	// entirely, never clamped to month-end. That is the literal RFC 5545
	// reading; see DESIGN.md if product ever wants clamping instead.
	ByMonthDay int

	// Anchor is the first valid date of the series (DTSTART-equivalent),
	// a calendar date with no timezone of its own.
	Anchor dateutil.LocalDate

	// Count bounds the series to N occurrences; 0 means unbounded.
	// Mutually exclusive with Until.
	Count int

	// Until bounds the series to dates on or before it; zero means
	// unbounded.
	Until dateutil.LocalDate
}

// NewRule validates and constructs a Rule.
func NewRule(freq Frequency, interval int, byDay WeekdaySet, byMonthDay int, anchor dateutil.LocalDate, count int, until dateutil.LocalDate) (Rule, error) {
	if freq < Daily || freq > Yearly {
		return Rule{}, fmt.Errorf("%w: unknown frequency %d", ErrInvalidRule, int(freq))
	}
	if interval <= 0 {
		return Rule{}, fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidRule, interval)
	}
	if byMonthDay < 0 || byMonthDay > 31 {
		return Rule{}, fmt.Errorf("%w: BYMONTHDAY %d out of range 1-31", ErrInvalidRule, byMonthDay)
	}
	if !anchor.Valid() {
		return Rule{}, fmt.Errorf("%w: anchor %s is not a valid date", ErrInvalidRule, anchor)
	}
	if count < 0 {
		return Rule{}, fmt.Errorf("%w: count must be positive, got %d", ErrInvalidRule, count)
	}
	if count > 0 && !until.IsZero() {
		return Rule{}, fmt.Errorf("%w: COUNT and UNTIL are mutually exclusive", ErrInvalidRule)
	}
	if !until.IsZero() && !until.Valid() {
		return Rule{}, fmt.Errorf("%w: until %s is not a valid date", ErrInvalidRule, until)
	}
	return Rule{
		Freq:       freq,
		Interval:   interval,
		ByDay:      byDay,
		ByMonthDay: byMonthDay,
		Anchor:     anchor,
		Count:      count,
		Until:      until,
	}, nil
}

// WeekdaysOnlyRule builds a weekly rule firing on the given work-week set.
// The set is caller-supplied so non-Western work weeks (Sun-Thu and the
// like) work without touching this package.
func WeekdaysOnlyRule(anchor dateutil.LocalDate, workweek WeekdaySet) (Rule, error) {
	if workweek.Empty() {
		return Rule{}, fmt.Errorf("%w: work week set is empty", ErrInvalidRule)
	}
	return NewRule(Weekly, 1, workweek, 0, anchor, 0, dateutil.LocalDate{})
}

// semanticCheck catches inconsistencies that construction cannot, because
// they involve cross-field meaning rather than field ranges.
func (r Rule) semanticCheck() error {
	if r.Interval <= 0 || !r.Anchor.Valid() {
		return fmt.Errorf("%w: rule was not constructed via NewRule", ErrMalformedRule)
	}
	if r.ByMonthDay != 0 && r.Freq != Monthly {
		return fmt.Errorf("%w: BYMONTHDAY with %s frequency", ErrMalformedRule, r.Freq)
	}
	if !r.ByDay.Empty() && r.Freq != Weekly {
		return fmt.Errorf("%w: BYDAY with %s frequency", ErrMalformedRule, r.Freq)
	}
	return nil
}

// IsOccurrence reports whether date is an occurrence of the rule.
func (r Rule) IsOccurrence(date dateutil.LocalDate) (bool, error) {
	if err := r.semanticCheck(); err != nil {
		return false, err
	}
	if dateutil.IsStrictlyBefore(date, r.Anchor) {
		return false, nil
	}
	if !r.Until.IsZero() && dateutil.IsStrictlyBefore(r.Until, date) {
		return false, nil
	}
	if !r.matches(date) {
		return false, nil
	}
	if r.Count > 0 && r.ordinalOf(date) > r.Count {
		return false, nil
	}
	return true, nil
}

// matches tests the frequency pattern alone; anchor/until/count bounds are
// the caller's responsibility. date must be on or after the anchor.
func (r Rule) matches(date dateutil.LocalDate) bool {
	switch r.Freq {
	case Daily:
		return dateutil.DaysBetween(r.Anchor, date)%r.Interval == 0

	case Weekly:
		if r.ByDay.Empty() {
			// Same weekday as the anchor, whole weeks apart.
			return dateutil.DaysBetween(r.Anchor, date)%(7*r.Interval) == 0
		}
		if !r.ByDay.Contains(date.Weekday()) {
			return false
		}
		return (weekIndex(date)-weekIndex(r.Anchor))%r.Interval == 0

	case Monthly:
		if date.Day != r.targetMonthDay() {
			return false
		}
		return monthsBetween(r.Anchor, date)%r.Interval == 0

	case Yearly:
		if date.Month != r.Anchor.Month || date.Day != r.Anchor.Day {
			return false
		}
		return (date.Year-r.Anchor.Year)%r.Interval == 0

	default:
		return false
	}
}

func (r Rule) targetMonthDay() int {
	if r.ByMonthDay != 0 {
		return r.ByMonthDay
	}
	return r.Anchor.Day
}

// ordinalOf returns the 1-based position of a matching date within the
// series. Only called for dates that already pass matches().
func (r Rule) ordinalOf(date dateutil.LocalDate) int {
	switch r.Freq {
	case Daily:
		return dateutil.DaysBetween(r.Anchor, date)/r.Interval + 1

	case Weekly:
		if r.ByDay.Empty() {
			return dateutil.DaysBetween(r.Anchor, date)/(7*r.Interval) + 1
		}
		return r.weeklyOrdinal(date)

	case Monthly:
		return r.monthlyOrdinal(date)

	case Yearly:
		if r.Anchor.Month == time.February && r.Anchor.Day == 29 {
			// Skipped non-leap years make the ordinal non-affine.
			ord := 0
			for y := r.Anchor.Year; y <= date.Year; y += r.Interval {
				if dateutil.IsLeapYear(y) {
					ord++
				}
				if r.Count > 0 && ord > r.Count {
					return ord
				}
			}
			return ord
		}
		return (date.Year-r.Anchor.Year)/r.Interval + 1

	default:
		return 1
	}
}

// weeklyOrdinal counts occurrences from the anchor through date for weekly
// rules with a BYDAY set. The anchor week and the date's own week are
// partial; everything between is interval-aligned full weeks.
func (r Rule) weeklyOrdinal(date dateutil.LocalDate) int {
	k := (weekIndex(date) - weekIndex(r.Anchor)) / r.Interval
	if k == 0 {
		return r.countInWeek(weekStart(r.Anchor), r.Anchor, date)
	}
	ord := r.countInWeek(weekStart(r.Anchor), r.Anchor, weekStart(r.Anchor).AddDays(6))
	ord += (k - 1) * r.ByDay.Len()
	ord += r.countInWeek(weekStart(date), weekStart(date), date)
	return ord
}

// countInWeek counts ByDay weekdays within [from, to] inside the week
// starting at monday.
func (r Rule) countInWeek(monday, from, to dateutil.LocalDate) int {
	n := 0
	for i := 0; i < 7; i++ {
		d := monday.AddDays(i)
		if dateutil.IsStrictlyBefore(d, from) || dateutil.IsStrictlyBefore(to, d) {
			continue
		}
		if r.ByDay.Contains(d.Weekday()) {
			n++
		}
	}
	return n
}

// monthlyOrdinal counts occurrences from the anchor through date. Months
// shorter than the target day are skipped, so the ordinal is only affine
// when the target day always exists.
func (r Rule) monthlyOrdinal(date dateutil.LocalDate) int {
	target := r.targetMonthDay()
	steps := monthsBetween(r.Anchor, date) / r.Interval
	if target <= 28 && r.Anchor.Day <= target {
		return steps + 1
	}
	ord := 0
	for i := 0; i <= steps; i++ {
		y, m := addMonths(r.Anchor.Year, r.Anchor.Month, i*r.Interval)
		if target > dateutil.DaysInMonth(y, m) {
			continue
		}
		cand := dateutil.NewLocalDate(y, m, target)
		if dateutil.IsStrictlyBefore(cand, r.Anchor) {
			continue
		}
		ord++
		if r.Count > 0 && ord > r.Count {
			return ord
		}
	}
	return ord
}

// Scan caps for the day-29/30/31 hunt. Month length and leapness patterns
// repeat within 400 years, so a series with no candidate inside the cap has
// none at all.
const (
	maxMonthlySteps = 4800
	maxYearlySteps  = 500
)

// NextOccurrenceOnOrAfter returns the earliest occurrence on or after date,
// or ok=false when the series is exhausted (COUNT/UNTIL) or empty.
func (r Rule) NextOccurrenceOnOrAfter(date dateutil.LocalDate) (dateutil.LocalDate, bool, error) {
	if err := r.semanticCheck(); err != nil {
		return dateutil.LocalDate{}, false, err
	}

	start := date
	if dateutil.IsStrictlyBefore(start, r.Anchor) {
		start = r.Anchor
	}

	var cand dateutil.LocalDate
	var found bool

	switch r.Freq {
	case Daily:
		k := ceilDiv(dateutil.DaysBetween(r.Anchor, start), r.Interval)
		cand, found = r.Anchor.AddDays(k*r.Interval), true

	case Weekly:
		if r.ByDay.Empty() {
			period := 7 * r.Interval
			k := ceilDiv(dateutil.DaysBetween(r.Anchor, start), period)
			cand, found = r.Anchor.AddDays(k*period), true
			break
		}
		// Bounded scan: a matching week recurs within one interval.
		for i := 0; i <= 7*r.Interval+7; i++ {
			d := start.AddDays(i)
			if r.matches(d) {
				cand, found = d, true
				break
			}
		}

	case Monthly:
		target := r.targetMonthDay()
		base := monthsBetween(r.Anchor, start) / r.Interval
		for i := 0; i < maxMonthlySteps; i++ {
			y, m := addMonths(r.Anchor.Year, r.Anchor.Month, (base+i)*r.Interval)
			if target > dateutil.DaysInMonth(y, m) {
				continue
			}
			d := dateutil.NewLocalDate(y, m, target)
			if dateutil.IsStrictlyBefore(d, start) {
				continue
			}
			cand, found = d, true
			break
		}

	case Yearly:
		for i := 0; i < maxYearlySteps; i++ {
			y := r.Anchor.Year + (start.Year-r.Anchor.Year)/r.Interval*r.Interval + i*r.Interval
			d := dateutil.NewLocalDate(y, r.Anchor.Month, r.Anchor.Day)
			if !d.Valid() {
				continue // Feb 29 anchor in a non-leap year
			}
			if dateutil.IsStrictlyBefore(d, start) {
				continue
			}
			cand, found = d, true
			break
		}
	}

	if !found {
		return dateutil.LocalDate{}, false, nil
	}
	if !r.Until.IsZero() && dateutil.IsStrictlyBefore(r.Until, cand) {
		return dateutil.LocalDate{}, false, nil
	}
	if r.Count > 0 && r.ordinalOf(cand) > r.Count {
		return dateutil.LocalDate{}, false, nil
	}
	return cand, true, nil
}

// weekIndex numbers Monday-start weeks from the epoch (RFC 5545 default
// WKST=MO). Presentation-level week-start configuration does not affect
// interval phase.
func weekIndex(d dateutil.LocalDate) int {
	return floorDiv(d.EpochDays()+3, 7)
}

func weekStart(d dateutil.LocalDate) dateutil.LocalDate {
	return dateutil.FromEpochDays(weekIndex(d)*7 - 3)
}

func monthsBetween(a, b dateutil.LocalDate) int {
	return (b.Year-a.Year)*12 + int(b.Month) - int(a.Month)
}

func addMonths(year int, month time.Month, n int) (int, time.Month) {
	idx := year*12 + int(month) - 1 + n
	return floorDiv(idx, 12), time.Month(idx - floorDiv(idx, 12)*12 + 1)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func ceilDiv(a, b int) int {
	return floorDiv(a+b-1, b)
}
