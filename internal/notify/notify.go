// Package notify delivers visit notifications after confirm, cancel and
// reschedule.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/evcraddock/visit-scheduler/internal/visit"
)

// Kind identifies what happened to a visit.
type Kind string

const (
	Confirmed   Kind = "confirmed"
	Cancelled   Kind = "cancelled"
	Rescheduled Kind = "rescheduled"
)

// Message describes a committed change to a visit and who should hear
// about it.
type Message struct {
	Kind            Kind
	Visit           visit.Visit
	AgentName       string
	AgentEmail      string
	PropertyCode    string
	PropertyAddress string
	PreviousStart   time.Time
}

// Notifier delivers a message. Implementations must be safe for concurrent
// use.
type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// Log writes each notification to a structured logger.
type Log struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (l Log) Notify(ctx context.Context, m Message) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"kind", m.Kind,
		"visit_id", m.Visit.ID,
		"agent_id", m.Visit.AgentID,
		"start_at", m.Visit.StartAt,
	}
	if !m.PreviousStart.IsZero() {
		attrs = append(attrs, "previous_start", m.PreviousStart)
	}
	logger.InfoContext(ctx, "visit notification", attrs...)
	return nil
}

// Multi fans a message out to several notifiers and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FormatMessage builds the subject and plain-text body for a message, with
// times rendered in loc.
func FormatMessage(m Message, loc *time.Location) (subject, body string) {
	if loc == nil {
		loc = time.UTC
	}
	v := m.Visit
	where := m.PropertyAddress
	if where == "" {
		where = m.PropertyCode
	}

	const layout = "Mon Jan 2 2006 15:04 MST"

	switch m.Kind {
	case Confirmed:
		subject = "Visit confirmed: " + where
	case Cancelled:
		subject = "Visit cancelled: " + where
	case Rescheduled:
		subject = "Visit rescheduled: " + where
	default:
		subject = "Visit update: " + where
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Hi %s,\n\n", v.ClientName)

	switch m.Kind {
	case Confirmed:
		fmt.Fprintf(&buf, "Your visit is confirmed.\n\n")
	case Cancelled:
		fmt.Fprintf(&buf, "Your visit has been cancelled.\n")
		if v.CancellationReason != "" {
			fmt.Fprintf(&buf, "Reason: %s\n", v.CancellationReason)
		}
		fmt.Fprintln(&buf)
	case Rescheduled:
		fmt.Fprintf(&buf, "Your visit has moved.\n")
		if !m.PreviousStart.IsZero() {
			fmt.Fprintf(&buf, "Was: %s\n", m.PreviousStart.In(loc).Format(layout))
		}
		fmt.Fprintln(&buf)
	}

	fmt.Fprintf(&buf, "Property: %s", where)
	if m.PropertyCode != "" && m.PropertyCode != where {
		fmt.Fprintf(&buf, " (%s)", m.PropertyCode)
	}
	fmt.Fprintln(&buf)
	fmt.Fprintf(&buf, "When: %s - %s\n", v.StartAt.In(loc).Format(layout), v.EndAt().In(loc).Format("15:04"))
	if m.AgentName != "" {
		fmt.Fprintf(&buf, "Agent: %s\n", m.AgentName)
	}
	fmt.Fprintf(&buf, "\nThanks!\n")

	return subject, buf.String()
}
