// Package agenda aggregates task classifications and calendar feed entries
// into the overdue/per-day buckets that views consume.
package agenda

import (
	"math"
	"sort"

	"tasknotes/internal/dateutil"
	"tasknotes/internal/ics"
	appLog "tasknotes/internal/log"
	"tasknotes/internal/model"
	"tasknotes/internal/temporal"
)

// Item is one task's appearance in a bucket.
type Item struct {
	TaskID   string         `json:"task_id"`
	Title    string         `json:"title"`
	Priority string         `json:"priority,omitempty"`
	Kind     string         `json:"kind"`
	Date     string         `json:"date"`
	Basis    string         `json:"basis,omitempty"`
	sortKey  int64
}

// Day is one agenda day: task items plus read-only feed entries.
type Day struct {
	Date  dateutil.LocalDate `json:"date"`
	Tasks []Item             `json:"tasks"`
	Feed  []ics.Entry        `json:"feed,omitempty"`
}

// Agenda is the aggregate for a horizon starting at Today. Errors holds
// per-task failures; a malformed task is reported here and omitted from the
// buckets, never fatal to the build.
type Agenda struct {
	Today   dateutil.LocalDate `json:"today"`
	Overdue []Item             `json:"overdue"`
	Days    []Day              `json:"days"`
	Errors  map[string]string  `json:"errors,omitempty"`
}

// Build assembles the agenda for [today, today+horizonDays).
func Build(res *temporal.Resolver, tasks []*model.Task, entries []ics.Entry, today dateutil.LocalDate, horizonDays int) Agenda {
	if horizonDays <= 0 {
		horizonDays = 1
	}

	out := Agenda{Today: today, Errors: make(map[string]string)}

	for _, t := range tasks {
		st, overdue, err := res.OverdueSince(t, today)
		if err != nil {
			appLog.Error("agenda overdue check failed", err, "task", t.ID)
			out.Errors[t.ID] = err.Error()
			continue
		}
		if overdue {
			out.Overdue = append(out.Overdue, makeItem(res, t, today, st))
		}
	}

	byDay := make(map[dateutil.LocalDate][]ics.Entry, len(entries))
	for _, e := range entries {
		byDay[e.Day] = append(byDay[e.Day], e)
	}

	for i := 0; i < horizonDays; i++ {
		date := today.AddDays(i)
		day := Day{Date: date, Feed: byDay[date]}

		batch := res.ClassifyAll(tasks, date)
		for id, err := range batch.Errors {
			out.Errors[id] = err.Error()
		}
		for _, t := range tasks {
			st := batch.States[t.ID]
			if st.Kind == temporal.KindNotApplicable {
				continue
			}
			day.Tasks = append(day.Tasks, makeItem(res, t, today, st))
		}
		sortItems(day.Tasks)
		sort.Slice(day.Feed, func(a, b int) bool { return day.Feed[a].Start.Before(day.Feed[b].Start) })
		out.Days = append(out.Days, day)
	}

	sortItems(out.Overdue)
	if len(out.Errors) == 0 {
		out.Errors = nil
	}
	return out
}

func makeItem(res *temporal.Resolver, t *model.Task, today dateutil.LocalDate, st temporal.State) Item {
	key, err := res.SortKey(t, today)
	if err != nil {
		key = math.MaxInt64
	}
	item := Item{
		TaskID:   t.ID,
		Title:    t.Title,
		Priority: t.Priority,
		Kind:     st.Kind.String(),
		sortKey:  key,
	}
	if !st.Date.IsZero() {
		item.Date = st.Date.String()
	}
	if st.Kind == temporal.KindOverdueSince {
		item.Basis = st.Basis.String()
	}
	return item
}

func sortItems(items []Item) {
	sort.Slice(items, func(a, b int) bool {
		if items[a].sortKey != items[b].sortKey {
			return items[a].sortKey < items[b].sortKey
		}
		return items[a].Title < items[b].Title
	})
}
