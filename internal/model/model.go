// Package model holds the task snapshot consumed by the temporal resolver.
// Values are immutable per query; the resolver never mutates or persists
// them.
package model

import (
	"strings"

	"tasknotes/internal/dateutil"
)

// Status is a task's workflow state. Beyond the three built-ins, source
// systems define arbitrary custom statuses; whether a custom status counts
// as completed is decided by the caller-supplied done-set (see IsCompleted).
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// IsCompleted reports whether the status marks the task done. doneStatuses
// lists additional custom statuses that count as completed; it may be nil.
func (s Status) IsCompleted(doneStatuses []string) bool {
	if s == StatusDone {
		return true
	}
	for _, d := range doneStatuses {
		if strings.EqualFold(string(s), d) {
			return true
		}
	}
	return false
}

// RecurrenceAnchorMode selects what the next occurrence of a recurring task
// is computed from.
type RecurrenceAnchorMode string

const (
	// AnchorScheduled keeps the fixed occurrence grid defined by the rule
	// anchor. Missed instances stay outstanding until completed or
	// skipped.
	AnchorScheduled RecurrenceAnchorMode = "scheduled"

	// AnchorCompletion rolls the series forward from the actual completion
	// date, so there is never more than one expected instance at a time.
	AnchorCompletion RecurrenceAnchorMode = "completion"
)

// Task is the external record the temporal engine classifies. ID is opaque
// (a note path in the source system).
type Task struct {
	ID       string
	Title    string
	Status   Status
	Priority string

	// Due is the deadline, Scheduled the planned work date. Either may be
	// date-only or carry a wall-clock time.
	Due       *dateutil.DateValue
	Scheduled *dateutil.DateValue

	// Recurrence is the raw rule text (RRULE grammar, or the "weekdays"
	// shorthand); empty for non-recurring tasks. Parsed lazily so one
	// malformed rule cannot poison a batch scan.
	Recurrence string

	// RecurrenceAnchor is the series anchor date (DTSTART-equivalent).
	// When zero, the rule text's own DTSTART line is used.
	RecurrenceAnchor dateutil.LocalDate

	// AnchorMode only applies when Recurrence is set.
	AnchorMode RecurrenceAnchorMode

	// CompletedInstances and SkippedInstances are the calendar dates on
	// which individual occurrences were resolved. They have no meaning for
	// non-recurring tasks, whose completion is Status alone.
	CompletedInstances map[dateutil.LocalDate]struct{}
	SkippedInstances   map[dateutil.LocalDate]struct{}
}

func (t *Task) IsRecurring() bool {
	return t.Recurrence != ""
}

func (t *Task) InstanceCompleted(d dateutil.LocalDate) bool {
	_, ok := t.CompletedInstances[d]
	return ok
}

func (t *Task) InstanceSkipped(d dateutil.LocalDate) bool {
	_, ok := t.SkippedInstances[d]
	return ok
}

// InstanceResolved reports whether the instance on d needs no further
// attention (completed or explicitly skipped).
func (t *Task) InstanceResolved(d dateutil.LocalDate) bool {
	return t.InstanceCompleted(d) || t.InstanceSkipped(d)
}

// LatestCompletedInstance returns the most recent completed instance date,
// ok=false when none exist.
func (t *Task) LatestCompletedInstance() (dateutil.LocalDate, bool) {
	var latest dateutil.LocalDate
	found := false
	for d := range t.CompletedInstances {
		if !found || dateutil.IsStrictlyBefore(latest, d) {
			latest = d
			found = true
		}
	}
	return latest, found
}
