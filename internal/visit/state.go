package visit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is a request to move a visit through its lifecycle.
type Event string

const (
	EventCreate     Event = "create"
	EventConfirm    Event = "confirm"
	EventCancel     Event = "cancel"
	EventDone       Event = "done"
	EventReschedule Event = "reschedule"
	EventUpdate     Event = "update"
)

// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("visit: invalid transition")

// TransitionError reports an event the current status does not allow.
type TransitionError struct {
	From  Status
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s visit", e.Event, e.From)
}

// Is makes errors.Is(err, ErrInvalidTransition) match.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// transitions lists every legal (status, event) pair and its resulting
// status. Anything missing is an invalid transition.
var transitions = map[Status]map[Event]Status{
	Pending: {
		EventConfirm:    Confirmed,
		EventCancel:     Cancelled,
		EventReschedule: Pending,
		EventUpdate:     Pending,
	},
	Confirmed: {
		EventCancel:     Cancelled,
		EventDone:       Done,
		EventReschedule: Confirmed,
		EventUpdate:     Confirmed,
	},
}

// Transition returns the status that event leads to from the given status.
func Transition(from Status, event Event) (Status, error) {
	to, ok := transitions[from][event]
	if !ok {
		return from, &TransitionError{From: from, Event: event}
	}
	return to, nil
}

// Confirm moves a pending visit to confirmed.
func (v *Visit) Confirm(now time.Time) error {
	to, err := Transition(v.Status, EventConfirm)
	if err != nil {
		return err
	}
	v.Status = to
	v.UpdatedAt = now
	return nil
}

// Cancel moves a pending or confirmed visit to cancelled and records why.
func (v *Visit) Cancel(reason string, now time.Time) error {
	to, err := Transition(v.Status, EventCancel)
	if err != nil {
		return err
	}
	v.Status = to
	v.CancellationReason = strings.TrimSpace(reason)
	v.UpdatedAt = now
	return nil
}

// MarkDone completes a confirmed visit, appending notes to any existing ones.
func (v *Visit) MarkDone(notes string, now time.Time) error {
	to, err := Transition(v.Status, EventDone)
	if err != nil {
		return err
	}
	v.Status = to
	v.Notes = appendNotes(v.Notes, notes)
	v.UpdatedAt = now
	return nil
}

// Reschedule moves the visit to a new start time without changing status.
func (v *Visit) Reschedule(start time.Time, now time.Time) error {
	to, err := Transition(v.Status, EventReschedule)
	if err != nil {
		return err
	}
	v.Status = to
	v.StartAt = start
	v.UpdatedAt = now
	return nil
}

func appendNotes(existing, more string) string {
	more = strings.TrimSpace(more)
	switch {
	case more == "":
		return existing
	case existing == "":
		return more
	default:
		return existing + "\n" + more
	}
}
