package schedule

import (
	"context"
	"iter"
	"time"
)

// ConflictCheck is the answer to a speculative conflict query.
type ConflictCheck struct {
	HasConflict bool     `json:"has_conflict"`
	VisitIDs    []string `json:"conflicting_visit_ids,omitempty"`
}

// CheckConflict reports whether the proposed booking would overlap an active
// visit of the agent other than excludeID. It takes no lock and writes
// nothing.
func (s *Service) CheckConflict(ctx context.Context, agentID int64, start time.Time, durationMinutes int, excludeID string) (ConflictCheck, error) {
	if err := ctx.Err(); err != nil {
		return ConflictCheck{}, err
	}
	if agentID <= 0 {
		return ConflictCheck{}, invalid("agent_id", "is required")
	}
	if start.IsZero() {
		return ConflictCheck{}, invalid("start_at", "is required")
	}
	if err := validateDuration(durationMinutes); err != nil {
		return ConflictCheck{}, err
	}

	ids := s.detector.Conflicts(agentID, start.UTC(), durationMinutes, excludeID)
	return ConflictCheck{HasConflict: len(ids) > 0, VisitIDs: ids}, nil
}

// AvailableSlots returns the start times on date, inside working hours and
// stepping by the slot size, at which a visit of durationMinutes would fit
// the agent's calendar. Times already past and slots running beyond the end
// of the working day are skipped. The sequence is lazy and may be ranged
// over more than once; each pass reflects the calendar as it is then.
func (s *Service) AvailableSlots(ctx context.Context, agentID int64, date time.Time, durationMinutes int) (iter.Seq[time.Time], error) {
	if agentID <= 0 {
		return nil, invalid("agent_id", "is required")
	}
	if date.IsZero() {
		return nil, invalid("date", "is required")
	}
	if err := validateDuration(durationMinutes); err != nil {
		return nil, err
	}
	if err := s.checkAgent(ctx, agentID); err != nil {
		return nil, err
	}

	loc := s.opts.Location
	first := clockOn(date, s.opts.WorkdayStart, loc)
	last := clockOn(date, s.opts.WorkdayEnd, loc)
	length := time.Duration(durationMinutes) * time.Minute
	step := s.opts.SlotStep

	return func(yield func(time.Time) bool) {
		now := s.now()
		for t := first; !t.Add(length).After(last); t = t.Add(step) {
			if t.Before(now) {
				continue
			}
			if s.detector.HasConflict(agentID, t, durationMinutes, "") {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}, nil
}

// clockOn returns the instant offset past midnight on date's calendar day
// in loc, counted in wall-clock hours and minutes.
func clockOn(date time.Time, offset time.Duration, loc *time.Location) time.Time {
	y, m, d := date.Date()
	minutes := int(offset / time.Minute)
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, loc)
}
