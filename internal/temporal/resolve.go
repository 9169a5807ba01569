package temporal

import (
	"math"
	"strings"
	"time"

	"tasknotes/internal/dateutil"
	appLog "tasknotes/internal/log"
	"tasknotes/internal/model"
	"tasknotes/internal/recur"
)

// Resolver classifies task snapshots. The zero value is usable; DoneStatuses
// extends the built-in done status with user-defined ones, and WorkWeek sets
// the weekdays the "weekdays" recurrence shorthand fires on (empty means
// monday through friday).
type Resolver struct {
	DoneStatuses []string
	WorkWeek     recur.WeekdaySet
}

// ruleFor parses a task's recurrence text into a rule. The literal text
// "weekdays" resolves against the configured work week; otherwise the text
// is RRULE grammar. A DTSTART inside the text wins; without one the anchor
// falls back to the task's stored anchor date, then the scheduled date, then
// the due date. The scheduled fallback is last-resort only: a scheduled
// field that callers advance past missed instances must never become the
// series anchor when a real one is stored.
func (r *Resolver) ruleFor(t *model.Task) (recur.Rule, error) {
	if strings.EqualFold(strings.TrimSpace(t.Recurrence), "weekdays") {
		return recur.WeekdaysOnlyRule(anchorFor(t), r.workWeek())
	}
	if strings.Contains(strings.ToUpper(t.Recurrence), "DTSTART") {
		return recur.Parse(t.Recurrence)
	}
	return recur.ParseWithAnchor(t.Recurrence, anchorFor(t))
}

func anchorFor(t *model.Task) dateutil.LocalDate {
	anchor := t.RecurrenceAnchor
	if !anchor.Valid() {
		switch {
		case t.Scheduled != nil:
			anchor = t.Scheduled.Date
		case t.Due != nil:
			anchor = t.Due.Date
		}
	}
	return anchor
}

func (r *Resolver) workWeek() recur.WeekdaySet {
	if !r.WorkWeek.Empty() {
		return r.WorkWeek
	}
	return recur.NewWeekdaySet(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)
}

func (r *Resolver) completed(t *model.Task) bool {
	return t.Status.IsCompleted(r.DoneStatuses)
}

// ClassifyForDate computes the task's standing on the given date.
//
// For recurring tasks the completed/skipped instance sets short-circuit
// before any rule evaluation, so a resolved instance classifies correctly
// even under a rule that no longer matches that date.
func (r *Resolver) ClassifyForDate(t *model.Task, date dateutil.LocalDate) (State, error) {
	if !t.IsRecurring() {
		return r.classifySingle(t, date), nil
	}

	if t.InstanceCompleted(date) {
		return State{Kind: KindCompletedForInstance, Date: date}, nil
	}
	if t.InstanceSkipped(date) {
		return State{Kind: KindSkippedForInstance, Date: date}, nil
	}

	rule, err := r.ruleFor(t)
	if err != nil {
		return State{Kind: KindNotApplicable}, err
	}
	occ, err := rule.IsOccurrence(date)
	if err != nil {
		return State{Kind: KindNotApplicable}, err
	}
	if !occ || r.completed(t) {
		return State{Kind: KindNotApplicable}, nil
	}

	// The instance's own due/scheduled anchor is the occurrence date
	// itself, which equals the reference date here.
	if t.Due != nil {
		return State{Kind: KindDueOn, Date: date, Basis: BasisDue}, nil
	}
	return State{Kind: KindScheduledOn, Date: date, Basis: BasisScheduled}, nil
}

func (r *Resolver) classifySingle(t *model.Task, date dateutil.LocalDate) State {
	if t.Due == nil && t.Scheduled == nil {
		return State{Kind: KindNotApplicable}
	}

	if !r.completed(t) {
		if t.Due != nil && dateutil.IsStrictlyBefore(t.Due.Date, date) {
			return State{Kind: KindOverdueSince, Date: t.Due.Date, Basis: BasisDue}
		}
		if t.Scheduled != nil && dateutil.IsStrictlyBefore(t.Scheduled.Date, date) {
			return State{Kind: KindOverdueSince, Date: t.Scheduled.Date, Basis: BasisScheduled}
		}
	}

	// Due takes priority when both fields land on the same date.
	if t.Due != nil && dateutil.Compare(t.Due.Date, date) == 0 {
		return State{Kind: KindDueOn, Date: date, Basis: BasisDue}
	}
	if t.Scheduled != nil && dateutil.Compare(t.Scheduled.Date, date) == 0 {
		return State{Kind: KindScheduledOn, Date: date, Basis: BasisScheduled}
	}
	return State{Kind: KindNotApplicable}
}

// IsOverdueAsOf reports whether the task belongs in an overdue aggregate for
// the reference today.
func (r *Resolver) IsOverdueAsOf(t *model.Task, today dateutil.LocalDate) (bool, error) {
	_, overdue, err := r.OverdueSince(t, today)
	return overdue, err
}

// OverdueSince is IsOverdueAsOf with the evidence attached: when the task is
// overdue it returns the KindOverdueSince state carrying the offending date
// and basis.
//
// For recurring schedule-anchored tasks this walks the occurrence grid from
// the rule anchor and fires on the earliest instance before today that is in
// neither the completed nor the skipped set, independent of whatever the
// visible scheduled field currently points to. Advancing the displayed
// schedule must never hide a still-outstanding past instance.
//
// Completion-anchored tasks have no fixed grid behind them; only the next
// expected instance after the latest completion is tracked.
func (r *Resolver) OverdueSince(t *model.Task, today dateutil.LocalDate) (State, bool, error) {
	none := State{Kind: KindNotApplicable}
	if r.completed(t) {
		return none, false, nil
	}

	if !t.IsRecurring() {
		if t.Due != nil && dateutil.IsStrictlyBefore(t.Due.Date, today) {
			return State{Kind: KindOverdueSince, Date: t.Due.Date, Basis: BasisDue}, true, nil
		}
		if t.Scheduled != nil && dateutil.IsStrictlyBefore(t.Scheduled.Date, today) {
			return State{Kind: KindOverdueSince, Date: t.Scheduled.Date, Basis: BasisScheduled}, true, nil
		}
		return none, false, nil
	}

	occ, ok, err := r.earliestUnresolved(t)
	if err != nil || !ok {
		return none, false, err
	}
	if !dateutil.IsStrictlyBefore(occ, today) {
		return none, false, nil
	}
	basis := BasisScheduled
	if t.Due != nil {
		basis = BasisDue
	}
	return State{Kind: KindOverdueSince, Date: occ, Basis: basis}, true, nil
}

// IsOverdueAt is the instant-aware overdue check. When a due/scheduled value
// carries a time component the comparison uses the full instant, so a task
// due today at 23:00 is not overdue at 10:00. Date-only values and recurring
// instances compare by calendar date in loc.
func (r *Resolver) IsOverdueAt(t *model.Task, now time.Time, loc *time.Location) (bool, error) {
	if loc == nil {
		loc = time.Local
	}
	today := dateutil.CalendarDateIn(now, loc)

	if t.IsRecurring() {
		return r.IsOverdueAsOf(t, today)
	}
	if r.completed(t) {
		return false, nil
	}
	if valueOverdueAt(t.Due, now, today) || valueOverdueAt(t.Scheduled, now, today) {
		return true, nil
	}
	return false, nil
}

func valueOverdueAt(v *dateutil.DateValue, now time.Time, today dateutil.LocalDate) bool {
	if v == nil {
		return false
	}
	if v.HasTime {
		return now.After(v.Instant)
	}
	return dateutil.IsStrictlyBefore(v.Date, today)
}

// SortKey orders tasks for agenda views: earlier effective dates first, due
// before scheduled on the same date, dateless and completed tasks last.
// Recurring tasks are keyed by their earliest unresolved occurrence, so an
// outstanding past instance pulls the task ahead of its advanced schedule.
func (r *Resolver) SortKey(t *model.Task, today dateutil.LocalDate) (int64, error) {
	if r.completed(t) {
		return math.MaxInt64, nil
	}

	const perDay = 4
	key := func(d dateutil.LocalDate, basis Basis) int64 {
		k := int64(d.EpochDays()) * perDay
		if basis == BasisScheduled {
			k += 1
		}
		return k
	}

	if t.IsRecurring() {
		occ, ok, err := r.earliestUnresolved(t)
		if err != nil {
			return math.MaxInt64, err
		}
		if !ok {
			return math.MaxInt64, nil
		}
		basis := BasisScheduled
		if t.Due != nil {
			basis = BasisDue
		}
		return key(occ, basis), nil
	}

	best := int64(math.MaxInt64)
	if t.Due != nil {
		best = key(t.Due.Date, BasisDue)
	}
	if t.Scheduled != nil {
		if k := key(t.Scheduled.Date, BasisScheduled); k < best {
			best = k
		}
	}
	return best, nil
}

// earliestUnresolved finds the first occurrence not in the completed or
// skipped sets, scanning from the rule anchor. Completion-anchored rules are
// re-anchored at the latest completion, so the series rolls forward from the
// day the work actually happened rather than the original grid.
func (r *Resolver) earliestUnresolved(t *model.Task) (dateutil.LocalDate, bool, error) {
	rule, err := r.ruleFor(t)
	if err != nil {
		return dateutil.LocalDate{}, false, err
	}

	cur := rule.Anchor
	if t.AnchorMode == model.AnchorCompletion {
		if last, ok := t.LatestCompletedInstance(); ok {
			rule.Anchor = last
			cur = last.AddDays(1)
		}
	}
	for {
		occ, ok, err := rule.NextOccurrenceOnOrAfter(cur)
		if err != nil || !ok {
			return dateutil.LocalDate{}, false, err
		}
		if !t.InstanceResolved(occ) {
			return occ, true, nil
		}
		cur = occ.AddDays(1)
	}
}

// BatchResult collects a scan over many tasks. Failures are isolated per
// task ID; one malformed recurrence never aborts the rest of the pass.
type BatchResult struct {
	States map[string]State
	Errors map[string]error
}

// ClassifyAll classifies every task for the given date, logging and
// collecting per-task failures.
func (r *Resolver) ClassifyAll(tasks []*model.Task, date dateutil.LocalDate) BatchResult {
	res := BatchResult{
		States: make(map[string]State, len(tasks)),
		Errors: make(map[string]error),
	}
	for _, t := range tasks {
		st, err := r.ClassifyForDate(t, date)
		if err != nil {
			appLog.Error("task classification failed", err, "task", t.ID, "date", date)
			res.Errors[t.ID] = err
			res.States[t.ID] = State{Kind: KindNotApplicable}
			continue
		}
		res.States[t.ID] = st
	}
	return res
}
