package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasknotes/internal/dateutil"
	"tasknotes/internal/model"
	"tasknotes/internal/recur"
)

func date(y int, m time.Month, d int) dateutil.LocalDate {
	return dateutil.NewLocalDate(y, m, d)
}

func dateOnly(y int, m time.Month, d int) *dateutil.DateValue {
	return &dateutil.DateValue{Date: date(y, m, d)}
}

func instanceSet(dates ...dateutil.LocalDate) map[dateutil.LocalDate]struct{} {
	out := make(map[dateutil.LocalDate]struct{}, len(dates))
	for _, d := range dates {
		out[d] = struct{}{}
	}
	return out
}

func TestClassifyForDate_NonRecurring(t *testing.T) {
	r := &Resolver{}
	ref := date(2025, time.June, 10)

	t.Run("no dates means not applicable", func(t *testing.T) {
		st, err := r.ClassifyForDate(&model.Task{ID: "a", Status: model.StatusOpen}, ref)
		require.NoError(t, err)
		assert.Equal(t, KindNotApplicable, st.Kind)
	})

	t.Run("due today", func(t *testing.T) {
		task := &model.Task{ID: "a", Status: model.StatusOpen, Due: dateOnly(2025, time.June, 10)}
		st, err := r.ClassifyForDate(task, ref)
		require.NoError(t, err)
		assert.Equal(t, KindDueOn, st.Kind)
		assert.Equal(t, ref, st.Date)
	})

	t.Run("due beats scheduled on the same date", func(t *testing.T) {
		task := &model.Task{
			ID:        "a",
			Status:    model.StatusOpen,
			Due:       dateOnly(2025, time.June, 10),
			Scheduled: dateOnly(2025, time.June, 10),
		}
		st, err := r.ClassifyForDate(task, ref)
		require.NoError(t, err)
		assert.Equal(t, KindDueOn, st.Kind)
	})

	t.Run("overdue from due date", func(t *testing.T) {
		task := &model.Task{ID: "a", Status: model.StatusOpen, Due: dateOnly(2025, time.June, 8)}
		st, err := r.ClassifyForDate(task, ref)
		require.NoError(t, err)
		assert.Equal(t, KindOverdueSince, st.Kind)
		assert.Equal(t, date(2025, time.June, 8), st.Date)
		assert.Equal(t, BasisDue, st.Basis)
	})

	t.Run("overdue from scheduled date", func(t *testing.T) {
		task := &model.Task{ID: "a", Status: model.StatusOpen, Scheduled: dateOnly(2025, time.June, 9)}
		st, err := r.ClassifyForDate(task, ref)
		require.NoError(t, err)
		assert.Equal(t, KindOverdueSince, st.Kind)
		assert.Equal(t, BasisScheduled, st.Basis)
	})

	t.Run("completed tasks are never overdue", func(t *testing.T) {
		task := &model.Task{ID: "a", Status: model.StatusDone, Due: dateOnly(2025, time.June, 1)}
		st, err := r.ClassifyForDate(task, ref)
		require.NoError(t, err)
		assert.Equal(t, KindNotApplicable, st.Kind)
	})

	t.Run("custom done status via done set", func(t *testing.T) {
		res := &Resolver{DoneStatuses: []string{"archived"}}
		task := &model.Task{ID: "a", Status: model.Status("archived"), Due: dateOnly(2025, time.June, 1)}
		st, err := res.ClassifyForDate(task, ref)
		require.NoError(t, err)
		assert.Equal(t, KindNotApplicable, st.Kind)
	})
}

func TestClassifyForDate_Recurring(t *testing.T) {
	r := &Resolver{}
	newTask := func() *model.Task {
		return &model.Task{
			ID:               "monthly",
			Status:           model.StatusOpen,
			Recurrence:       "FREQ=MONTHLY;BYMONTHDAY=1",
			RecurrenceAnchor: date(2025, time.November, 1),
			Due:              dateOnly(2025, time.November, 1),
		}
	}

	t.Run("occurrence date classifies due", func(t *testing.T) {
		st, err := r.ClassifyForDate(newTask(), date(2025, time.December, 1))
		require.NoError(t, err)
		assert.Equal(t, KindDueOn, st.Kind)
	})

	t.Run("non-occurrence date is not applicable", func(t *testing.T) {
		st, err := r.ClassifyForDate(newTask(), date(2025, time.December, 2))
		require.NoError(t, err)
		assert.Equal(t, KindNotApplicable, st.Kind)
	})

	t.Run("completed instance short-circuits the rule", func(t *testing.T) {
		task := newTask()
		// The 15th is not even an occurrence; the instance set wins.
		task.CompletedInstances = instanceSet(date(2025, time.November, 15))
		st, err := r.ClassifyForDate(task, date(2025, time.November, 15))
		require.NoError(t, err)
		assert.Equal(t, KindCompletedForInstance, st.Kind)
	})

	t.Run("skipped instance", func(t *testing.T) {
		task := newTask()
		task.SkippedInstances = instanceSet(date(2025, time.December, 1))
		st, err := r.ClassifyForDate(task, date(2025, time.December, 1))
		require.NoError(t, err)
		assert.Equal(t, KindSkippedForInstance, st.Kind)
	})

	t.Run("malformed recurrence surfaces as error with not applicable", func(t *testing.T) {
		task := newTask()
		task.Recurrence = "FREQ=DAILY;BYMONTHDAY=5"
		st, err := r.ClassifyForDate(task, date(2025, time.December, 1))
		assert.ErrorIs(t, err, recur.ErrMalformedRule)
		assert.Equal(t, KindNotApplicable, st.Kind)
	})
}

func TestClassifyForDate_WeekdaysShorthand(t *testing.T) {
	newTask := func() *model.Task {
		return &model.Task{
			ID:               "standup",
			Status:           model.StatusOpen,
			Recurrence:       "weekdays",
			RecurrenceAnchor: date(2025, time.March, 2), // a Sunday
		}
	}

	t.Run("configured sun-thu work week", func(t *testing.T) {
		r := &Resolver{WorkWeek: recur.NewWeekdaySet(
			time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		)}

		st, err := r.ClassifyForDate(newTask(), date(2025, time.March, 2))
		require.NoError(t, err)
		assert.Equal(t, KindScheduledOn, st.Kind)

		st, err = r.ClassifyForDate(newTask(), date(2025, time.March, 7)) // Friday
		require.NoError(t, err)
		assert.Equal(t, KindNotApplicable, st.Kind)
	})

	t.Run("zero resolver defaults to monday-friday", func(t *testing.T) {
		r := &Resolver{}

		st, err := r.ClassifyForDate(newTask(), date(2025, time.March, 3)) // Monday
		require.NoError(t, err)
		assert.Equal(t, KindScheduledOn, st.Kind)

		st, err = r.ClassifyForDate(newTask(), date(2025, time.March, 8)) // Saturday
		require.NoError(t, err)
		assert.Equal(t, KindNotApplicable, st.Kind)
	})

	t.Run("shorthand is case and whitespace tolerant", func(t *testing.T) {
		r := &Resolver{}
		task := newTask()
		task.Recurrence = " Weekdays "
		st, err := r.ClassifyForDate(task, date(2025, time.March, 3))
		require.NoError(t, err)
		assert.Equal(t, KindScheduledOn, st.Kind)
	})
}

func TestClassifyForDate_Pure(t *testing.T) {
	r := &Resolver{}
	task := &model.Task{
		ID:               "t",
		Status:           model.StatusOpen,
		Recurrence:       "FREQ=WEEKLY;BYDAY=MO,WE",
		RecurrenceAnchor: date(2025, time.January, 6),
		Scheduled:        dateOnly(2025, time.January, 6),
	}
	ref := date(2025, time.January, 8)

	first, err1 := r.ClassifyForDate(task, ref)
	second, err2 := r.ClassifyForDate(task, ref)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
}

// The defect this engine exists to fix: a monthly task due on the 1st whose
// visible schedule was already advanced to the 4th must still be overdue on
// the 3rd, because the 1st's instance was never resolved.
func TestIsOverdueAsOf_ScheduleAdvancementDoesNotHide(t *testing.T) {
	r := &Resolver{}
	task := &model.Task{
		ID:               "rent",
		Status:           model.StatusOpen,
		Recurrence:       "FREQ=MONTHLY;BYMONTHDAY=1",
		RecurrenceAnchor: date(2025, time.November, 1),
		Scheduled:        dateOnly(2025, time.November, 4),
	}
	today := date(2025, time.November, 3)

	overdue, err := r.IsOverdueAsOf(task, today)
	require.NoError(t, err)
	assert.True(t, overdue)

	st, ok, err := r.OverdueSince(task, today)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, date(2025, time.November, 1), st.Date)
}

func TestIsOverdueAsOf_CompletedInstanceSuppresses(t *testing.T) {
	r := &Resolver{}
	task := &model.Task{
		ID:                 "rent",
		Status:             model.StatusOpen,
		Recurrence:         "FREQ=MONTHLY;BYMONTHDAY=1",
		RecurrenceAnchor:   date(2025, time.November, 1),
		Scheduled:          dateOnly(2025, time.November, 4),
		CompletedInstances: instanceSet(date(2025, time.November, 1)),
	}

	overdue, err := r.IsOverdueAsOf(task, date(2025, time.November, 3))
	require.NoError(t, err)
	assert.False(t, overdue)
}

func TestIsOverdueAsOf_SkippedInstanceSuppresses(t *testing.T) {
	r := &Resolver{}
	task := &model.Task{
		ID:               "rent",
		Status:           model.StatusOpen,
		Recurrence:       "FREQ=MONTHLY;BYMONTHDAY=1",
		RecurrenceAnchor: date(2025, time.November, 1),
		SkippedInstances: instanceSet(date(2025, time.November, 1)),
	}

	overdue, err := r.IsOverdueAsOf(task, date(2025, time.November, 3))
	require.NoError(t, err)
	assert.False(t, overdue)
}

func TestIsOverdueAsOf_EarliestUnresolvedAmongMany(t *testing.T) {
	r := &Resolver{}
	task := &model.Task{
		ID:               "daily",
		Status:           model.StatusOpen,
		Recurrence:       "FREQ=DAILY",
		RecurrenceAnchor: date(2025, time.June, 1),
		CompletedInstances: instanceSet(
			date(2025, time.June, 1),
			date(2025, time.June, 2),
			date(2025, time.June, 4), // the 3rd is outstanding
		),
	}

	st, ok, err := r.OverdueSince(task, date(2025, time.June, 5))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, date(2025, time.June, 3), st.Date)
}

func TestIsOverdueAsOf_NonRecurring(t *testing.T) {
	r := &Resolver{}
	today := date(2025, time.June, 10)

	task := &model.Task{ID: "a", Status: model.StatusOpen, Due: dateOnly(2025, time.June, 9)}
	overdue, err := r.IsOverdueAsOf(task, today)
	require.NoError(t, err)
	assert.True(t, overdue)

	task.Status = model.StatusDone
	overdue, err = r.IsOverdueAsOf(task, today)
	require.NoError(t, err)
	assert.False(t, overdue)

	future := &model.Task{ID: "b", Status: model.StatusOpen, Due: dateOnly(2025, time.June, 11)}
	overdue, err = r.IsOverdueAsOf(future, today)
	require.NoError(t, err)
	assert.False(t, overdue)
}

func TestIsOverdueAsOf_CompletionAnchored(t *testing.T) {
	r := &Resolver{}
	task := &model.Task{
		ID:               "water-plants",
		Status:           model.StatusOpen,
		Recurrence:       "FREQ=DAILY;INTERVAL=3",
		RecurrenceAnchor: date(2025, time.June, 1),
		AnchorMode:       model.AnchorCompletion,
		// Completed late, on the 5th (grid would say the 4th). The series
		// re-anchors at the completion: next expected is the 8th, and the
		// missed grid instances behind it do not count.
		CompletedInstances: instanceSet(date(2025, time.June, 5)),
	}

	overdue, err := r.IsOverdueAsOf(task, date(2025, time.June, 8))
	require.NoError(t, err)
	assert.False(t, overdue)

	overdue, err = r.IsOverdueAsOf(task, date(2025, time.June, 9))
	require.NoError(t, err)
	assert.True(t, overdue)
}

func TestIsOverdueAt_TimeAware(t *testing.T) {
	r := &Resolver{}
	loc := time.UTC

	due, err := dateutil.ParseDateValue("2025-06-10T23:00", loc)
	require.NoError(t, err)
	task := &model.Task{ID: "a", Status: model.StatusOpen, Due: &due}

	t.Run("same day before the deadline is not overdue", func(t *testing.T) {
		now := time.Date(2025, time.June, 10, 10, 0, 0, 0, loc)
		overdue, err := r.IsOverdueAt(task, now, loc)
		require.NoError(t, err)
		assert.False(t, overdue)
	})

	t.Run("same day after the deadline is overdue", func(t *testing.T) {
		now := time.Date(2025, time.June, 10, 23, 30, 0, 0, loc)
		overdue, err := r.IsOverdueAt(task, now, loc)
		require.NoError(t, err)
		assert.True(t, overdue)
	})

	t.Run("date-only values compare by calendar day", func(t *testing.T) {
		allDay := &model.Task{ID: "b", Status: model.StatusOpen, Due: dateOnly(2025, time.June, 10)}
		now := time.Date(2025, time.June, 10, 23, 30, 0, 0, loc)
		overdue, err := r.IsOverdueAt(allDay, now, loc)
		require.NoError(t, err)
		assert.False(t, overdue)

		now = time.Date(2025, time.June, 11, 0, 30, 0, 0, loc)
		overdue, err = r.IsOverdueAt(allDay, now, loc)
		require.NoError(t, err)
		assert.True(t, overdue)
	})
}

func TestSortKey_Ordering(t *testing.T) {
	r := &Resolver{}
	today := date(2025, time.June, 10)

	overdueTask := &model.Task{ID: "o", Status: model.StatusOpen, Due: dateOnly(2025, time.June, 8)}
	dueToday := &model.Task{ID: "d", Status: model.StatusOpen, Due: dateOnly(2025, time.June, 10)}
	schedToday := &model.Task{ID: "s", Status: model.StatusOpen, Scheduled: dateOnly(2025, time.June, 10)}
	future := &model.Task{ID: "f", Status: model.StatusOpen, Due: dateOnly(2025, time.June, 12)}
	dateless := &model.Task{ID: "n", Status: model.StatusOpen}
	done := &model.Task{ID: "x", Status: model.StatusDone, Due: dateOnly(2025, time.June, 8)}

	keys := make(map[string]int64)
	for _, task := range []*model.Task{overdueTask, dueToday, schedToday, future, dateless, done} {
		k, err := r.SortKey(task, today)
		require.NoError(t, err)
		keys[task.ID] = k
	}

	assert.Less(t, keys["o"], keys["d"])
	assert.Less(t, keys["d"], keys["s"], "due sorts ahead of scheduled on the same date")
	assert.Less(t, keys["s"], keys["f"])
	assert.Less(t, keys["f"], keys["n"])
	assert.Equal(t, keys["n"], keys["x"])
}

func TestSortKey_RecurringUsesEarliestUnresolved(t *testing.T) {
	r := &Resolver{}
	today := date(2025, time.November, 3)

	task := &model.Task{
		ID:               "rent",
		Status:           model.StatusOpen,
		Recurrence:       "FREQ=MONTHLY;BYMONTHDAY=1",
		RecurrenceAnchor: date(2025, time.November, 1),
		Scheduled:        dateOnly(2025, time.November, 4),
	}
	recurringKey, err := r.SortKey(task, today)
	require.NoError(t, err)

	plainNov2 := &model.Task{ID: "p", Status: model.StatusOpen, Scheduled: dateOnly(2025, time.November, 2)}
	plainKey, err := r.SortKey(plainNov2, today)
	require.NoError(t, err)

	// The outstanding Nov 1 instance outranks a plain Nov 2 task even
	// though the visible schedule says Nov 4.
	assert.Less(t, recurringKey, plainKey)
}

func TestClassifyAll_IsolatesFailures(t *testing.T) {
	r := &Resolver{}
	ref := date(2025, time.June, 10)

	good := &model.Task{ID: "good", Status: model.StatusOpen, Due: dateOnly(2025, time.June, 10)}
	bad := &model.Task{
		ID:               "bad",
		Status:           model.StatusOpen,
		Recurrence:       "FREQ=DAILY;BYMONTHDAY=5",
		RecurrenceAnchor: date(2025, time.June, 1),
	}
	alsoGood := &model.Task{ID: "also-good", Status: model.StatusOpen, Scheduled: dateOnly(2025, time.June, 10)}

	res := r.ClassifyAll([]*model.Task{good, bad, alsoGood}, ref)

	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors["bad"], recur.ErrMalformedRule)
	assert.Equal(t, KindNotApplicable, res.States["bad"].Kind)
	assert.Equal(t, KindDueOn, res.States["good"].Kind)
	assert.Equal(t, KindScheduledOn, res.States["also-good"].Kind)
}
