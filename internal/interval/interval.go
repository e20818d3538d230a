// Package interval holds per-agent booked time intervals and answers overlap
// queries against them.
package interval

import (
	"sort"
	"sync"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// FromDuration returns the interval [start, start+minutes).
func FromDuration(start time.Time, minutes int) Interval {
	return Interval{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}
}

// Overlaps reports whether two intervals share any instant.
// Touching endpoints do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Duration returns the length of the interval.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Entry is a booked interval and the visit that holds it.
type Entry struct {
	VisitID  string
	Interval Interval
}

// Store keeps the active interval of every non-cancelled visit, grouped by
// agent. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	agents map[int64]map[string]Interval
}

// NewStore creates an empty interval store.
func NewStore() *Store {
	return &Store{agents: make(map[int64]map[string]Interval)}
}

// Upsert inserts or replaces the interval held by visitID.
func (s *Store) Upsert(agentID int64, visitID string, iv Interval) {
	s.mu.Lock()
	defer s.mu.Unlock()

	visits, ok := s.agents[agentID]
	if !ok {
		visits = make(map[string]Interval)
		s.agents[agentID] = visits
	}
	visits[visitID] = iv
}

// Remove drops visitID from the agent's active set. Removing an unknown
// visit is a no-op.
func (s *Store) Remove(agentID int64, visitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	visits, ok := s.agents[agentID]
	if !ok {
		return
	}
	delete(visits, visitID)
	if len(visits) == 0 {
		delete(s.agents, agentID)
	}
}

// Overlapping returns the agent's intervals that overlap iv, ordered by start
// time. excludeID, when non-empty, is left out of the result.
func (s *Store) Overlapping(agentID int64, iv Interval, excludeID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for id, other := range s.agents[agentID] {
		if id == excludeID {
			continue
		}
		if other.Overlaps(iv) {
			out = append(out, Entry{VisitID: id, Interval: other})
		}
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].Interval.Start.Equal(out[b].Interval.Start) {
			return out[a].VisitID < out[b].VisitID
		}
		return out[a].Interval.Start.Before(out[b].Interval.Start)
	})
	return out
}

// Get returns the interval held by visitID, if any.
func (s *Store) Get(agentID int64, visitID string) (Interval, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	iv, ok := s.agents[agentID][visitID]
	return iv, ok
}

// Len returns the number of active intervals across all agents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, visits := range s.agents {
		n += len(visits)
	}
	return n
}

// Reset discards every interval.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agents = make(map[int64]map[string]Interval)
}
