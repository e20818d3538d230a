package calendar

import (
	"fmt"
	"time"
)

// View is a calendar grid size.
type View string

const (
	DayView  View = "day"
	WeekView View = "week"
)

// Range returns the [from, to) instants the view covers around date, with
// day boundaries at local midnight in loc. Weeks start on Monday.
func Range(view View, date time.Time, loc *time.Location) (from, to time.Time, err error) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)

	switch view {
	case DayView, "":
		return start, start.AddDate(0, 0, 1), nil
	case WeekView:
		offset := (int(start.Weekday()) + 6) % 7
		monday := start.AddDate(0, 0, -offset)
		return monday, monday.AddDate(0, 0, 7), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown view %q", ErrInvalidRange, view)
	}
}

// Day groups the entries that start on one local calendar day.
type Day struct {
	Date    string  `json:"date"` // YYYY-MM-DD
	Entries []Entry `json:"entries"`
}

// GroupByDay buckets entries by the local day they start on, producing one
// Day for every date in [from, to) even when it has no entries. Entries
// starting outside the range go to the nearest edge day.
func GroupByDay(entries []Entry, from, to time.Time, loc *time.Location) []Day {
	if loc == nil {
		loc = time.UTC
	}

	y, m, d := from.In(loc).Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, loc)

	var days []Day
	index := map[string]int{}
	for cur := first; cur.Before(to); cur = cur.AddDate(0, 0, 1) {
		key := cur.Format(time.DateOnly)
		index[key] = len(days)
		days = append(days, Day{Date: key, Entries: []Entry{}})
	}
	if len(days) == 0 {
		return days
	}

	for _, e := range entries {
		key := e.Start.In(loc).Format(time.DateOnly)
		i, ok := index[key]
		if !ok {
			i = 0
			if key > days[len(days)-1].Date {
				i = len(days) - 1
			}
		}
		days[i].Entries = append(days[i].Entries, e)
	}
	return days
}
