// Package temporal classifies tasks against reference dates: what a task's
// standing is on a given day, and whether it belongs in an overdue
// aggregate.
//
// Everything here is a pure function of (task snapshot, reference date). No
// ambient clock is read; callers resolve "today" once at the outer boundary
// (dateutil.TodayIn) and thread it through, which keeps batch scans
// deterministic and parallel-safe.
package temporal

import (
	"tasknotes/internal/dateutil"
)

// Basis says which field an overdue classification came from.
type Basis int

const (
	BasisDue Basis = iota
	BasisScheduled
)

func (b Basis) String() string {
	if b == BasisScheduled {
		return "scheduled"
	}
	return "due"
}

// Kind discriminates a task's standing on a reference date.
type Kind int

const (
	// KindNotApplicable: no due, no scheduled, not recurring, or the
	// reference date is simply not an occurrence.
	KindNotApplicable Kind = iota

	// KindDueOn: the due date (or a recurring instance, for tasks with a
	// due field) falls on the reference date.
	KindDueOn

	// KindScheduledOn: the scheduled date falls on the reference date.
	KindScheduledOn

	// KindOverdueSince: a due/scheduled date lies strictly before the
	// reference date and the task is not completed.
	KindOverdueSince

	// KindCompletedForInstance: recurring only; the reference date's
	// instance is in the completed set.
	KindCompletedForInstance

	// KindSkippedForInstance: recurring only; the reference date's
	// instance was explicitly skipped.
	KindSkippedForInstance
)

func (k Kind) String() string {
	switch k {
	case KindDueOn:
		return "due"
	case KindScheduledOn:
		return "scheduled"
	case KindOverdueSince:
		return "overdue"
	case KindCompletedForInstance:
		return "completed-instance"
	case KindSkippedForInstance:
		return "skipped-instance"
	default:
		return "none"
	}
}

// State is the discriminated classification result. Date is the date the
// kind refers to (the overdue-since date, the matched instance date); it is
// zero for KindNotApplicable. Basis is only meaningful for KindOverdueSince.
type State struct {
	Kind  Kind
	Date  dateutil.LocalDate
	Basis Basis
}
