// Package visit provides the property visit domain model, its status state
// machine, and data access.
package visit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/evcraddock/visit-scheduler/internal/interval"
)

// Status is the lifecycle state of a visit.
type Status string

const (
	Pending   Status = "pending"
	Confirmed Status = "confirmed"
	Done      Status = "done"
	Cancelled Status = "cancelled"
)

// ValidStatuses is the set of allowed statuses.
var ValidStatuses = []Status{Pending, Confirmed, Done, Cancelled}

// IsValid checks if a status is recognized.
func (s Status) IsValid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsActive reports whether a visit in this status holds its time slot.
func (s Status) IsActive() bool {
	return s.IsValid() && s != Cancelled
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == Done || s == Cancelled
}

// Label returns a human-readable label for the status.
func (s Status) Label() string {
	switch s {
	case Pending:
		return "Pending"
	case Confirmed:
		return "Confirmed"
	case Done:
		return "Done"
	case Cancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// Duration limits in minutes.
const (
	MinDuration = 30
	MaxDuration = 480
)

// Visit is a scheduled property showing owned by one agent.
type Visit struct {
	ID                 string    `db:"id" json:"id"`
	PropertyID         int64     `db:"property_id" json:"property_id"`
	AgentID            int64     `db:"agent_id" json:"agent_id"`
	ClientName         string    `db:"client_name" json:"client_name"`
	ClientPhone        string    `db:"client_phone" json:"client_phone,omitempty"`
	ClientEmail        string    `db:"client_email" json:"client_email,omitempty"`
	StartAt            time.Time `db:"start_at" json:"start_at"`
	DurationMinutes    int       `db:"duration_minutes" json:"duration_minutes"`
	Status             Status    `db:"status" json:"status"`
	Notes              string    `db:"notes" json:"notes,omitempty"`
	CancellationReason string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// EndAt returns the exclusive end of the visit.
func (v *Visit) EndAt() time.Time {
	return v.StartAt.Add(time.Duration(v.DurationMinutes) * time.Minute)
}

// Interval returns the half-open time range the visit occupies.
func (v *Visit) Interval() interval.Interval {
	return interval.FromDuration(v.StartAt, v.DurationMinutes)
}

// MarshalJSON adds the derived end_at field.
func (v Visit) MarshalJSON() ([]byte, error) {
	type plain Visit
	return json.Marshal(struct {
		plain
		EndAt time.Time `json:"end_at"`
	}{plain(v), v.EndAt()})
}

// normalize converts timestamps read from the database to UTC.
func (v *Visit) normalize() {
	v.StartAt = v.StartAt.UTC()
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
}

// Record is one entry of a visit's audit history.
type Record struct {
	ID         int64     `db:"id" json:"id"`
	VisitID    string    `db:"visit_id" json:"visit_id"`
	Event      Event     `db:"event" json:"event"`
	FromStatus Status    `db:"from_status" json:"from_status,omitempty"`
	ToStatus   Status    `db:"to_status" json:"to_status"`
	Details    Details   `db:"details" json:"details"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Details is a JSON object stored as text alongside an audit record.
type Details []byte

// Scan implements sql.Scanner.
func (d *Details) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		*d = nil
	case string:
		*d = Details(s)
	case []byte:
		*d = append(Details(nil), s...)
	default:
		return fmt.Errorf("scanning details: unsupported type %T", src)
	}
	return nil
}

// MarshalJSON emits the stored object verbatim.
func (d Details) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("{}"), nil
	}
	return []byte(d), nil
}

// UnmarshalJSON keeps the raw object.
func (d *Details) UnmarshalJSON(b []byte) error {
	*d = append(Details(nil), b...)
	return nil
}
