package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"tasknotes/internal/dateutil"
	appLog "tasknotes/internal/log"
)

// Feed events carry real instants (with zones), so unlike task recurrence
// their expansion is instant-based: rrule-go operates on the event's own
// location and the resulting occurrences are assigned to calendar days in
// the display zone afterwards.

const defaultMaxOccurrencesPerEvent = 5000

// Entry is one concrete feed occurrence, normalized into the display zone
// and pinned to the agenda day it belongs to.
type Entry struct {
	FeedID   string `json:"feed_id"`
	FeedName string `json:"feed_name,omitempty"`
	UID      string `json:"uid"`
	Title    string `json:"title"`

	Day    dateutil.LocalDate `json:"day"`
	AllDay bool               `json:"all_day"`
	Start  time.Time          `json:"start"`
	End    time.Time          `json:"end"`
}

// ExpandConfig controls expansion.
type ExpandConfig struct {
	// DisplayLocation is the zone agenda days are resolved in. Nil means
	// the host local zone.
	DisplayLocation *time.Location

	// From / To bound the agenda window, inclusive.
	From dateutil.LocalDate
	To   dateutil.LocalDate

	// MaxOccurrencesPerEvent caps runaway expansions; zero uses the
	// default.
	MaxOccurrencesPerEvent int
}

// ExpandEntries expands parsed events into per-day agenda entries within the
// window. RRULE recurrence, EXDATE removal, and RECURRENCE-ID overrides are
// honored.
func ExpandEntries(events []Event, cfg ExpandConfig) ([]Entry, error) {
	if dateutil.IsStrictlyBefore(cfg.To, cfg.From) {
		return nil, errors.New("expand: To is before From")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Overrides are matched back to their base series by UID.
	overrides := make(map[string][]Event)
	bases := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.RecurrenceID != nil && ev.RawRRule == "" {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		} else {
			bases = append(bases, ev)
		}
	}

	var out []Entry
	for _, ev := range bases {
		entries := expandEvent(ev, overrides[ev.UID], cfg)
		out = append(out, entries...)
	}
	return out, nil
}

func expandEvent(ev Event, overrides []Event, cfg ExpandConfig) []Entry {
	rangeStart := localMidnight(cfg.From, cfg.DisplayLocation)
	rangeEnd := localMidnight(cfg.To.AddDays(1), cfg.DisplayLocation)

	if ev.RawRRule == "" {
		if ev.End.Before(rangeStart) || !ev.Start.Before(rangeEnd) {
			return nil
		}
		if o, ok := overrideFor(overrides, ev.Start); ok {
			ev = o
		}
		return []Entry{makeEntry(ev, ev.Start, ev.End, cfg.DisplayLocation)}
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics rrule parse failed", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	occTimes := set.Between(rangeStart.In(ev.Start.Location()), rangeEnd.In(ev.Start.Location()), true)
	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		appLog.Warn("ics expansion truncated", "uid", ev.UID, "cap", cfg.MaxOccurrencesPerEvent)
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]Entry, 0, len(occTimes))
	for _, start := range occTimes {
		end := start.Add(dur)
		src := ev
		if o, ok := overrideFor(overrides, start); ok {
			src, start, end = o, o.Start, o.End
		}
		out = append(out, makeEntry(src, start, end, cfg.DisplayLocation))
	}
	return out
}

// overrideFor finds the override whose RECURRENCE-ID equals the instance
// start.
func overrideFor(overrides []Event, start time.Time) (Event, bool) {
	for _, o := range overrides {
		if o.RecurrenceID != nil && o.RecurrenceID.In(start.Location()).Equal(start) {
			return o, true
		}
	}
	return Event{}, false
}

func makeEntry(ev Event, start, end time.Time, loc *time.Location) Entry {
	startLocal := start.In(loc)
	day := dateutil.CalendarDateOfIn(startLocal, dateutil.AssumeAlreadyLocal, loc)
	if ev.AllDay {
		// All-day events already denote a calendar day in their own zone;
		// converting through the display zone would shift them.
		day = dateutil.CalendarDateOfIn(start, dateutil.AssumeAlreadyLocal, nil)
	}
	return Entry{
		FeedID:   ev.Feed.ID,
		FeedName: ev.Feed.Name,
		UID:      ev.UID,
		Title:    ev.Summary,
		Day:      day,
		AllDay:   ev.AllDay,
		Start:    startLocal,
		End:      end.In(loc),
	}
}

func localMidnight(d dateutil.LocalDate, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}
