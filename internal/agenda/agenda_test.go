package agenda

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasknotes/internal/dateutil"
	"tasknotes/internal/ics"
	"tasknotes/internal/model"
	"tasknotes/internal/temporal"
)

func date(y int, m time.Month, d int) dateutil.LocalDate {
	return dateutil.NewLocalDate(y, m, d)
}

func dateOnly(y int, m time.Month, d int) *dateutil.DateValue {
	return &dateutil.DateValue{Date: date(y, m, d)}
}

func TestBuild_Buckets(t *testing.T) {
	res := &temporal.Resolver{}
	today := date(2025, time.November, 3)

	rent := &model.Task{
		ID:               "rent.md",
		Title:            "Pay rent",
		Status:           model.StatusOpen,
		Recurrence:       "FREQ=MONTHLY;BYMONTHDAY=1",
		RecurrenceAnchor: date(2025, time.November, 1),
		Scheduled:        dateOnly(2025, time.November, 4),
	}
	review := &model.Task{
		ID:     "review.md",
		Title:  "Review PR",
		Status: model.StatusOpen,
		Due:    dateOnly(2025, time.November, 3),
	}
	someday := &model.Task{ID: "someday.md", Title: "Someday", Status: model.StatusOpen}

	ag := Build(res, []*model.Task{rent, review, someday}, nil, today, 3)

	require.Len(t, ag.Overdue, 1)
	assert.Equal(t, "Pay rent", ag.Overdue[0].Title)
	assert.Equal(t, "2025-11-01", ag.Overdue[0].Date)

	require.Len(t, ag.Days, 3)
	assert.Equal(t, today, ag.Days[0].Date)

	// Day 0: review is due today.
	require.Len(t, ag.Days[0].Tasks, 1)
	assert.Equal(t, "Review PR", ag.Days[0].Tasks[0].Title)
	assert.Equal(t, "due", ag.Days[0].Tasks[0].Kind)

	// Day 1 (Nov 4) is not a rent occurrence; only the review lingers as
	// overdue.
	require.Len(t, ag.Days[1].Tasks, 1)
	assert.Equal(t, "Review PR", ag.Days[1].Tasks[0].Title)
	assert.Equal(t, "overdue", ag.Days[1].Tasks[0].Kind)

	assert.Nil(t, ag.Errors)
}

func TestBuild_FeedEntriesLandOnTheirDay(t *testing.T) {
	res := &temporal.Resolver{}
	today := date(2025, time.November, 3)

	entries := []ics.Entry{
		{FeedID: "work", UID: "standup", Title: "Standup", Day: date(2025, time.November, 4),
			Start: time.Date(2025, time.November, 4, 9, 30, 0, 0, time.UTC)},
		{FeedID: "work", UID: "retro", Title: "Retro", Day: date(2025, time.November, 4),
			Start: time.Date(2025, time.November, 4, 9, 0, 0, 0, time.UTC)},
		{FeedID: "work", UID: "later", Title: "Outside horizon", Day: date(2025, time.December, 25)},
	}

	ag := Build(res, nil, entries, today, 2)

	require.Len(t, ag.Days, 2)
	assert.Empty(t, ag.Days[0].Feed)
	require.Len(t, ag.Days[1].Feed, 2)
	// Sorted by start time.
	assert.Equal(t, "Retro", ag.Days[1].Feed[0].Title)
	assert.Equal(t, "Standup", ag.Days[1].Feed[1].Title)
}

func TestBuild_SortsWithinBuckets(t *testing.T) {
	res := &temporal.Resolver{}
	today := date(2025, time.June, 10)

	older := &model.Task{ID: "a", Title: "Older", Status: model.StatusOpen, Due: dateOnly(2025, time.June, 1)}
	newer := &model.Task{ID: "b", Title: "Newer", Status: model.StatusOpen, Due: dateOnly(2025, time.June, 8)}

	ag := Build(res, []*model.Task{newer, older}, nil, today, 1)

	require.Len(t, ag.Overdue, 2)
	assert.Equal(t, "Older", ag.Overdue[0].Title)
	assert.Equal(t, "Newer", ag.Overdue[1].Title)
}

func TestBuild_IsolatesMalformedTasks(t *testing.T) {
	res := &temporal.Resolver{}
	today := date(2025, time.June, 10)

	good := &model.Task{ID: "good", Title: "Good", Status: model.StatusOpen, Due: dateOnly(2025, time.June, 10)}
	bad := &model.Task{
		ID:               "bad",
		Title:            "Bad",
		Status:           model.StatusOpen,
		Recurrence:       "FREQ=DAILY;BYMONTHDAY=5",
		RecurrenceAnchor: date(2025, time.June, 1),
	}

	ag := Build(res, []*model.Task{good, bad}, nil, today, 1)

	require.Contains(t, ag.Errors, "bad")
	require.Len(t, ag.Days, 1)
	require.Len(t, ag.Days[0].Tasks, 1)
	assert.Equal(t, "Good", ag.Days[0].Tasks[0].Title)
}
