// Package conflict decides whether a proposed booking collides with an
// agent's active visits.
package conflict

import (
	"time"

	"github.com/evcraddock/visit-scheduler/internal/interval"
)

// Index is the read side of an interval store.
type Index interface {
	Overlapping(agentID int64, iv interval.Interval, excludeID string) []interval.Entry
}

// Detector answers conflict queries against an Index. It has no side
// effects, so callers may use it speculatively or under a write lock.
type Detector struct {
	index Index
}

// NewDetector creates a detector over idx.
func NewDetector(idx Index) *Detector {
	return &Detector{index: idx}
}

// HasConflict reports whether [start, start+durationMinutes) overlaps any
// active visit of the agent other than excludeID.
func (d *Detector) HasConflict(agentID int64, start time.Time, durationMinutes int, excludeID string) bool {
	return len(d.Conflicts(agentID, start, durationMinutes, excludeID)) > 0
}

// Conflicts returns the ids of the visits the proposed booking overlaps,
// ordered by their start time.
func (d *Detector) Conflicts(agentID int64, start time.Time, durationMinutes int, excludeID string) []string {
	entries := d.index.Overlapping(agentID, interval.FromDuration(start, durationMinutes), excludeID)
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.VisitID
	}
	return ids
}
