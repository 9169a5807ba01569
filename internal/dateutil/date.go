// Package dateutil provides calendar-date values and the timezone boundary
// rules shared by the recurrence evaluator and the temporal resolver.
//
// All date math here is integer arithmetic on year/month/day. A LocalDate is
// never backed by a time.Time instant, so DST transitions and UTC offsets
// cannot shift a date across midnight.
package dateutil

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTemporalValue is returned when a date or date-time string cannot
// be parsed. Callers must not fall back to "today" on this error; the value
// is excluded instead.
var ErrInvalidTemporalValue = errors.New("invalid temporal value")

// LocalDate is a calendar date with no time-of-day and no timezone.
// The zero value is not a valid date; use IsZero to detect it.
type LocalDate struct {
	Year  int
	Month time.Month
	Day   int
}

func NewLocalDate(year int, month time.Month, day int) LocalDate {
	return LocalDate{Year: year, Month: month, Day: day}
}

func (d LocalDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// String renders the date as YYYY-MM-DD.
func (d LocalDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText renders the date as YYYY-MM-DD, which also makes LocalDate
// usable as a JSON map key.
func (d LocalDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *LocalDate) UnmarshalText(b []byte) error {
	parsed, err := ParseLocalDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimezonePolicy tells CalendarDateOf how to interpret a time.Time.
//
// Reading UTC fields off an instant that represents local wall-clock time
// (or the reverse) shifts the date near midnight for any non-zero offset.
// The policy forces callers to state which kind of value they hold.
type TimezonePolicy int

const (
	// AssumeUTCAnchored means the instant genuinely came from a UTC-anchored
	// source (e.g. an external calendar feed resolved to UTC) and must be
	// converted into the display zone before its calendar fields are read.
	AssumeUTCAnchored TimezonePolicy = iota

	// AssumeAlreadyLocal means the value was already constructed in the
	// wall-clock zone of interest; its own fields are read directly with no
	// conversion.
	AssumeAlreadyLocal
)

// Today returns the current date in the host's local timezone.
func Today() LocalDate {
	return TodayIn(time.Local)
}

// TodayIn returns the current date in loc, derived from wall-clock fields in
// that zone rather than from UTC truncation.
func TodayIn(loc *time.Location) LocalDate {
	if loc == nil {
		loc = time.Local
	}
	return CalendarDateIn(time.Now(), loc)
}

// CalendarDateOf extracts the calendar date from t under the given policy,
// using the host local zone as the display zone for AssumeUTCAnchored.
func CalendarDateOf(t time.Time, policy TimezonePolicy) LocalDate {
	return CalendarDateOfIn(t, policy, time.Local)
}

// CalendarDateOfIn extracts the calendar date from t under the given policy,
// converting into loc when the policy requires it.
func CalendarDateOfIn(t time.Time, policy TimezonePolicy, loc *time.Location) LocalDate {
	if policy == AssumeUTCAnchored {
		return CalendarDateIn(t, loc)
	}
	y, m, d := t.Date()
	return LocalDate{Year: y, Month: m, Day: d}
}

// CalendarDateIn reads t's wall-clock calendar fields in loc.
func CalendarDateIn(t time.Time, loc *time.Location) LocalDate {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return LocalDate{Year: y, Month: m, Day: d}
}

// Compare orders two dates: -1 if a < b, 0 if equal, +1 if a > b.
func Compare(a, b LocalDate) int {
	switch {
	case a.Year != b.Year:
		return sign(a.Year - b.Year)
	case a.Month != b.Month:
		return sign(int(a.Month) - int(b.Month))
	default:
		return sign(a.Day - b.Day)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func IsSameOrBefore(a, b LocalDate) bool {
	return Compare(a, b) <= 0
}

func IsStrictlyBefore(a, b LocalDate) bool {
	return Compare(a, b) < 0
}

// EpochDays returns the number of days since 1970-01-01 as a pure civil-date
// computation (no instants involved).
func (d LocalDate) EpochDays() int {
	y := d.Year
	m := int(d.Month)
	if m <= 2 {
		y--
	}
	era := floorDiv(y, 400)
	yoe := y - era*400 // [0, 399]
	var doyM int
	if m > 2 {
		doyM = m - 3
	} else {
		doyM = m + 9
	}
	doy := (153*doyM+2)/5 + d.Day - 1            // [0, 365]
	doe := yoe*365 + yoe/4 - yoe/100 + doy       // [0, 146096]
	return era*146097 + doe - 719468             // 719468 = days from 0000-03-01 to 1970-01-01
}

// FromEpochDays is the inverse of EpochDays.
func FromEpochDays(days int) LocalDate {
	z := days + 719468
	era := floorDiv(z, 146097)
	doe := z - era*146097                                  // [0, 146096]
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365 // [0, 399]
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100) // [0, 365]
	mp := (5*doy + 2) / 153                  // [0, 11]
	day := doy - (153*mp+2)/5 + 1
	var m int
	if mp < 10 {
		m = mp + 3
	} else {
		m = mp - 9
	}
	if m <= 2 {
		y++
	}
	return LocalDate{Year: y, Month: time.Month(m), Day: day}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// DaysBetween returns b - a in whole calendar days.
func DaysBetween(a, b LocalDate) int {
	return b.EpochDays() - a.EpochDays()
}

// AddDays returns the date n days after d (n may be negative).
func (d LocalDate) AddDays(n int) LocalDate {
	return FromEpochDays(d.EpochDays() + n)
}

// Weekday returns the day of week for d.
func (d LocalDate) Weekday() time.Weekday {
	// 1970-01-01 was a Thursday.
	wd := (d.EpochDays() + 4) % 7
	if wd < 0 {
		wd += 7
	}
	return time.Weekday(wd)
}

// DaysInMonth returns the length of the given month.
func DaysInMonth(year int, month time.Month) int {
	switch month {
	case time.January, time.March, time.May, time.July, time.August, time.October, time.December:
		return 31
	case time.April, time.June, time.September, time.November:
		return 30
	case time.February:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	default:
		return 0
	}
}

func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// Valid reports whether d names a real calendar day.
func (d LocalDate) Valid() bool {
	if d.Month < time.January || d.Month > time.December {
		return false
	}
	return d.Day >= 1 && d.Day <= DaysInMonth(d.Year, d.Month)
}
