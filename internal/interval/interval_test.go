package interval

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

var base = time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return base.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func span(h1, m1, h2, m2 int) Interval {
	return Interval{Start: at(h1, m1), End: at(h2, m2)}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"identical", span(10, 0, 11, 0), span(10, 0, 11, 0), true},
		{"partial start", span(10, 0, 11, 0), span(10, 30, 11, 30), true},
		{"partial end", span(10, 0, 11, 0), span(9, 30, 10, 30), true},
		{"contained", span(10, 0, 11, 0), span(10, 15, 10, 45), true},
		{"containing", span(10, 15, 10, 45), span(10, 0, 11, 0), true},
		{"touching after", span(10, 0, 11, 0), span(11, 0, 11, 30), false},
		{"touching before", span(10, 0, 11, 0), span(9, 0, 10, 0), false},
		{"disjoint", span(10, 0, 11, 0), span(13, 0, 14, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("a.Overlaps(b) = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("b.Overlaps(a) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOverlapSymmetry(t *testing.T) {
	// Every pair drawn from a grid of 15-minute boundaries.
	var ivs []Interval
	for s := 0; s < 12; s++ {
		for d := 1; d <= 6; d++ {
			start := at(8, 15*s)
			ivs = append(ivs, Interval{Start: start, End: start.Add(time.Duration(15*d) * time.Minute)})
		}
	}

	for _, a := range ivs {
		for _, b := range ivs {
			if a.Overlaps(b) != b.Overlaps(a) {
				t.Fatalf("asymmetric overlap for %v and %v", a, b)
			}
		}
	}
}

func TestFromDuration(t *testing.T) {
	iv := FromDuration(at(9, 0), 90)
	if !iv.End.Equal(at(10, 30)) {
		t.Errorf("end = %v, want %v", iv.End, at(10, 30))
	}
	if iv.Duration() != 90*time.Minute {
		t.Errorf("duration = %v, want 90m", iv.Duration())
	}
}

func TestStoreOverlapping(t *testing.T) {
	s := NewStore()
	s.Upsert(7, "a", span(10, 0, 11, 0))
	s.Upsert(7, "b", span(11, 0, 12, 0))
	s.Upsert(7, "c", span(9, 0, 10, 0))
	s.Upsert(8, "d", span(10, 0, 11, 0))

	tests := []struct {
		name    string
		agent   int64
		iv      Interval
		exclude string
		want    []string
	}{
		{"inside one", 7, span(10, 30, 10, 45), "", []string{"a"}},
		{"spans two ordered by start", 7, span(10, 30, 11, 30), "", []string{"a", "b"}},
		{"touching is free", 7, span(12, 0, 13, 0), "", nil},
		{"exclude self", 7, span(10, 0, 11, 0), "a", nil},
		{"other agent isolated", 8, span(11, 0, 12, 0), "", nil},
		{"unknown agent", 99, span(10, 0, 11, 0), "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Overlapping(tt.agent, tt.iv, tt.exclude)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d: %v", len(got), len(tt.want), got)
			}
			for i, id := range tt.want {
				if got[i].VisitID != id {
					t.Errorf("entry %d = %q, want %q", i, got[i].VisitID, id)
				}
			}
		})
	}
}

func TestStoreUpsertReplaces(t *testing.T) {
	s := NewStore()
	s.Upsert(7, "a", span(10, 0, 11, 0))
	s.Upsert(7, "a", span(14, 0, 15, 0))

	if got := s.Overlapping(7, span(10, 0, 11, 0), ""); len(got) != 0 {
		t.Errorf("old interval still present: %v", got)
	}
	if got := s.Overlapping(7, span(14, 0, 15, 0), ""); len(got) != 1 {
		t.Errorf("new interval missing: %v", got)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}

func TestStoreRemove(t *testing.T) {
	s := NewStore()
	s.Upsert(7, "a", span(10, 0, 11, 0))
	s.Remove(7, "a")
	s.Remove(7, "missing")
	s.Remove(42, "a")

	if _, ok := s.Get(7, "a"); ok {
		t.Error("interval still present after remove")
	}
	if s.Len() != 0 {
		t.Errorf("len = %d, want 0", s.Len())
	}
}

func TestStoreReset(t *testing.T) {
	s := NewStore()
	s.Upsert(1, "a", span(10, 0, 11, 0))
	s.Upsert(2, "b", span(10, 0, 11, 0))
	s.Reset()
	if s.Len() != 0 {
		t.Errorf("len = %d, want 0", s.Len())
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("v%d", i)
			s.Upsert(int64(i%5), id, FromDuration(at(8, 0).Add(time.Duration(i)*time.Hour), 60))
			s.Overlapping(int64(i%5), span(8, 0, 9, 0), "")
			if i%2 == 0 {
				s.Remove(int64(i%5), id)
			}
		}()
	}
	wg.Wait()

	if s.Len() != 25 {
		t.Errorf("len = %d, want 25", s.Len())
	}
}
