package visit

import (
	"errors"
	"testing"
	"time"
)

var allEvents = []Event{EventCreate, EventConfirm, EventCancel, EventDone, EventReschedule, EventUpdate, "archive"}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from  Status
		event Event
		want  Status
	}{
		{Pending, EventConfirm, Confirmed},
		{Pending, EventCancel, Cancelled},
		{Pending, EventReschedule, Pending},
		{Pending, EventUpdate, Pending},
		{Confirmed, EventCancel, Cancelled},
		{Confirmed, EventDone, Done},
		{Confirmed, EventReschedule, Confirmed},
		{Confirmed, EventUpdate, Confirmed},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			got, err := Transition(tt.from, tt.event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransitionTotality(t *testing.T) {
	legal := map[Status]map[Event]bool{
		Pending:   {EventConfirm: true, EventCancel: true, EventReschedule: true, EventUpdate: true},
		Confirmed: {EventCancel: true, EventDone: true, EventReschedule: true, EventUpdate: true},
	}

	for _, from := range append(ValidStatuses, "unknown") {
		for _, ev := range allEvents {
			if legal[from][ev] {
				continue
			}
			got, err := Transition(from, ev)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Transition(%s, %s) error = %v, want ErrInvalidTransition", from, ev, err)
			}
			if got != from {
				t.Errorf("Transition(%s, %s) status = %q, want unchanged", from, ev, got)
			}
			var te *TransitionError
			if !errors.As(err, &te) || te.From != from || te.Event != ev {
				t.Errorf("Transition(%s, %s) error = %#v, want TransitionError", from, ev, err)
			}
		}
	}
}

func TestRefusedTransitionLeavesVisitUnchanged(t *testing.T) {
	now := time.Date(2026, 11, 2, 12, 0, 0, 0, time.UTC)
	start := now.Add(24 * time.Hour)

	ops := map[string]func(v *Visit) error{
		"confirm":    func(v *Visit) error { return v.Confirm(now) },
		"cancel":     func(v *Visit) error { return v.Cancel("client ill", now) },
		"done":       func(v *Visit) error { return v.MarkDone("sold", now) },
		"reschedule": func(v *Visit) error { return v.Reschedule(start.Add(time.Hour), now) },
	}

	for _, status := range []Status{Done, Cancelled} {
		for name, op := range ops {
			t.Run(string(status)+"/"+name, func(t *testing.T) {
				v := Visit{ID: "v1", Status: status, StartAt: start, DurationMinutes: 60, Notes: "before"}
				before := v

				if err := op(&v); !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("error = %v, want ErrInvalidTransition", err)
				}
				if v != before {
					t.Errorf("visit changed: got %+v, want %+v", v, before)
				}
			})
		}
	}
}

func TestVisitTransitions(t *testing.T) {
	now := time.Date(2026, 11, 2, 12, 0, 0, 0, time.UTC)

	v := &Visit{ID: "v1", Status: Pending, Notes: "gate code 1234"}
	if err := v.Confirm(now); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if v.Status != Confirmed {
		t.Errorf("status = %q, want confirmed", v.Status)
	}
	if err := v.Confirm(now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second confirm error = %v, want ErrInvalidTransition", err)
	}

	if err := v.MarkDone("  client liked the kitchen ", now); err != nil {
		t.Fatalf("done: %v", err)
	}
	if v.Notes != "gate code 1234\nclient liked the kitchen" {
		t.Errorf("notes = %q", v.Notes)
	}
	if !v.UpdatedAt.Equal(now) {
		t.Errorf("updated_at = %v, want %v", v.UpdatedAt, now)
	}
}

func TestCancelSetsReason(t *testing.T) {
	now := time.Date(2026, 11, 2, 12, 0, 0, 0, time.UTC)
	v := &Visit{Status: Confirmed}
	if err := v.Cancel(" client moved away ", now); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if v.Status != Cancelled {
		t.Errorf("status = %q, want cancelled", v.Status)
	}
	if v.CancellationReason != "client moved away" {
		t.Errorf("reason = %q", v.CancellationReason)
	}
}

func TestAppendNotes(t *testing.T) {
	tests := []struct {
		existing, more, want string
	}{
		{"", "", ""},
		{"", "new", "new"},
		{"old", "", "old"},
		{"old", "new", "old\nnew"},
		{"old", "   ", "old"},
	}
	for _, tt := range tests {
		if got := appendNotes(tt.existing, tt.more); got != tt.want {
			t.Errorf("appendNotes(%q, %q) = %q, want %q", tt.existing, tt.more, got, tt.want)
		}
	}
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		s        Status
		valid    bool
		active   bool
		terminal bool
		label    string
	}{
		{Pending, true, true, false, "Pending"},
		{Confirmed, true, true, false, "Confirmed"},
		{Done, true, true, true, "Done"},
		{Cancelled, true, false, true, "Cancelled"},
		{"bogus", false, false, false, "bogus"},
	}
	for _, tt := range tests {
		if tt.s.IsValid() != tt.valid {
			t.Errorf("%s.IsValid() = %v", tt.s, !tt.valid)
		}
		if tt.s.IsActive() != tt.active {
			t.Errorf("%s.IsActive() = %v", tt.s, !tt.active)
		}
		if tt.s.IsTerminal() != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v", tt.s, !tt.terminal)
		}
		if tt.s.Label() != tt.label {
			t.Errorf("%s.Label() = %q, want %q", tt.s, tt.s.Label(), tt.label)
		}
	}
}
