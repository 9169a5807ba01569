package recur

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasknotes/internal/dateutil"
)

func TestParse_WithDtstart(t *testing.T) {
	r, err := Parse("DTSTART:20251101\nRRULE:FREQ=MONTHLY;BYMONTHDAY=1")
	require.NoError(t, err)

	assert.Equal(t, Monthly, r.Freq)
	assert.Equal(t, 1, r.Interval)
	assert.Equal(t, 1, r.ByMonthDay)
	assert.Equal(t, date(2025, time.November, 1), r.Anchor)
}

func TestParse_DtstartWithTimeAndParams(t *testing.T) {
	r, err := Parse("DTSTART;VALUE=DATE:20250106\nFREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE")
	require.NoError(t, err)

	assert.Equal(t, Weekly, r.Freq)
	assert.Equal(t, 2, r.Interval)
	assert.True(t, r.ByDay.Contains(time.Monday))
	assert.True(t, r.ByDay.Contains(time.Wednesday))
	assert.False(t, r.ByDay.Contains(time.Friday))
	assert.Equal(t, date(2025, time.January, 6), r.Anchor)
}

func TestParseWithAnchor(t *testing.T) {
	anchor := date(2025, time.January, 1)

	r, err := ParseWithAnchor("FREQ=DAILY;INTERVAL=3;COUNT=10", anchor)
	require.NoError(t, err)
	assert.Equal(t, Daily, r.Freq)
	assert.Equal(t, 3, r.Interval)
	assert.Equal(t, 10, r.Count)
	assert.Equal(t, anchor, r.Anchor)

	// Explicit anchor wins over the text's DTSTART.
	r, err = ParseWithAnchor("DTSTART:20200101\nRRULE:FREQ=DAILY", anchor)
	require.NoError(t, err)
	assert.Equal(t, anchor, r.Anchor)

	_, err = ParseWithAnchor("FREQ=DAILY", dateutil.LocalDate{})
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestParse_Until(t *testing.T) {
	r, err := Parse("DTSTART:20250101\nRRULE:FREQ=DAILY;UNTIL=20250301T000000Z")
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.March, 1), r.Until)
	assert.Zero(t, r.Count)
}

func TestParse_WeekdayMapping(t *testing.T) {
	r, err := ParseWithAnchor("FREQ=WEEKLY;BYDAY=SU,MO,SA", date(2025, time.January, 5))
	require.NoError(t, err)

	assert.True(t, r.ByDay.Contains(time.Sunday))
	assert.True(t, r.ByDay.Contains(time.Monday))
	assert.True(t, r.ByDay.Contains(time.Saturday))
	assert.Equal(t, 3, r.ByDay.Len())
}

func TestParse_Rejections(t *testing.T) {
	anchor := date(2025, time.January, 1)

	cases := map[string]string{
		"sub-daily frequency": "FREQ=HOURLY",
		"bysetpos":            "FREQ=MONTHLY;BYDAY=FR;BYSETPOS=2",
		"ordinal byday":       "FREQ=MONTHLY;BYDAY=2FR",
		"bymonth":             "FREQ=YEARLY;BYMONTH=3",
		"multiple monthdays":  "FREQ=MONTHLY;BYMONTHDAY=1,15",
		"garbage":             "every other thursday",
		"missing freq":        "INTERVAL=2",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseWithAnchor(text, anchor)
			assert.ErrorIs(t, err, ErrInvalidRule, "input %q", text)
		})
	}

	_, err := Parse("FREQ=DAILY") // no anchor anywhere
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestParse_ThenEvaluate(t *testing.T) {
	r, err := Parse("DTSTART:20251101\nRRULE:FREQ=MONTHLY;BYMONTHDAY=1")
	require.NoError(t, err)

	ok, err := r.IsOccurrence(date(2025, time.November, 1))
	require.NoError(t, err)
	assert.True(t, ok)

	next, found, err := r.NextOccurrenceOnOrAfter(date(2025, time.November, 2))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, date(2025, time.December, 1), next)
}
