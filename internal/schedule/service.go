// Package schedule books, validates, reschedules and bulk-manages visits.
// Every mutation runs under a per-agent lock that spans the conflict check,
// the database transaction and the interval store update.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evcraddock/visit-scheduler/internal/conflict"
	"github.com/evcraddock/visit-scheduler/internal/directory"
	"github.com/evcraddock/visit-scheduler/internal/interval"
	"github.com/evcraddock/visit-scheduler/internal/notify"
	"github.com/evcraddock/visit-scheduler/internal/visit"
)

// Store persists visits.
type Store interface {
	Get(ctx context.Context, id string) (*visit.Visit, error)
	ListActive(ctx context.Context) ([]*visit.Visit, error)
	History(ctx context.Context, visitID string) ([]*visit.Record, error)
	InTx(ctx context.Context, agentID int64, fn func(visit.Tx) error) error
}

// Directory resolves the agents and properties visits refer to.
type Directory interface {
	Agent(ctx context.Context, id int64) (*directory.Agent, error)
	Property(ctx context.Context, id int64) (*directory.Property, error)
}

// Options tune a Service. Zero values select the defaults.
type Options struct {
	Location     *time.Location // working hours are local to this zone; UTC by default
	WorkdayStart time.Duration  // 08:00
	WorkdayEnd   time.Duration  // 19:00
	SlotStep     time.Duration  // 30m
	BulkParallel int            // 4
	Notifier     notify.Notifier
	Logger       *slog.Logger
	Now          func() time.Time
}

func (o *Options) setDefaults() {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.WorkdayStart == 0 && o.WorkdayEnd == 0 {
		o.WorkdayStart, o.WorkdayEnd = 8*time.Hour, 19*time.Hour
	}
	if o.SlotStep <= 0 {
		o.SlotStep = 30 * time.Minute
	}
	if o.BulkParallel <= 0 {
		o.BulkParallel = 4
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

const notifyTimeout = 30 * time.Second

// Service is the scheduling engine.
type Service struct {
	store     Store
	dir       Directory
	intervals *interval.Store
	detector  *conflict.Detector
	locks     *agentLocks
	opts      Options
	log       *slog.Logger

	pending sync.WaitGroup
}

// New creates a Service. Call Load before serving requests so the interval
// store reflects persisted visits.
func New(store Store, dir Directory, opts Options) *Service {
	opts.setDefaults()
	intervals := interval.NewStore()
	return &Service{
		store:     store,
		dir:       dir,
		intervals: intervals,
		detector:  conflict.NewDetector(intervals),
		locks:     newAgentLocks(),
		opts:      opts,
		log:       opts.Logger,
	}
}

// Load rebuilds the interval store from every visit that is not cancelled.
func (s *Service) Load(ctx context.Context) error {
	visits, err := s.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("loading active visits: %w", err)
	}

	s.intervals.Reset()
	for _, v := range visits {
		s.intervals.Upsert(v.AgentID, v.ID, v.Interval())
	}

	s.log.Info("interval store loaded", "visits", len(visits))
	return nil
}

// Close waits for in-flight notifications to finish.
func (s *Service) Close() {
	s.pending.Wait()
}

// Location returns the zone working hours are expressed in.
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC().Truncate(time.Second)
}

// Get returns a visit by ID.
func (s *Service) Get(ctx context.Context, id string) (*visit.Visit, error) {
	return s.store.Get(ctx, id)
}

// History returns a visit's audit records, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]*visit.Record, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id)
}

// CreateRequest holds the fields of a new booking.
type CreateRequest struct {
	PropertyID          int64     `json:"property_id"`
	AgentID             int64     `json:"agent_id"`
	ClientName          string    `json:"client_name"`
	ClientPhone         string    `json:"client_phone"`
	ClientEmail         string    `json:"client_email"`
	StartAt             time.Time `json:"start_at"`
	DurationMinutes     int       `json:"duration_minutes"`
	Notes               string    `json:"notes"`
	AcknowledgeConflict bool      `json:"acknowledge_conflict"`
}

// CreateVisit books a pending visit. An overlap with another active visit of
// the same agent fails with *ConflictError unless AcknowledgeConflict is set.
func (s *Service) CreateVisit(ctx context.Context, req CreateRequest) (*visit.Visit, error) {
	now := s.now()

	req.ClientName = strings.TrimSpace(req.ClientName)
	switch {
	case req.AgentID <= 0:
		return nil, invalid("agent_id", "is required")
	case req.PropertyID <= 0:
		return nil, invalid("property_id", "is required")
	case req.ClientName == "":
		return nil, invalid("client_name", "is required")
	}
	if err := validateDuration(req.DurationMinutes); err != nil {
		return nil, err
	}
	start, err := validateStart(req.StartAt, now)
	if err != nil {
		return nil, err
	}
	if err := s.checkAgent(ctx, req.AgentID); err != nil {
		return nil, err
	}
	if err := s.checkProperty(ctx, req.PropertyID); err != nil {
		return nil, err
	}

	v := &visit.Visit{
		ID:              uuid.NewString(),
		PropertyID:      req.PropertyID,
		AgentID:         req.AgentID,
		ClientName:      req.ClientName,
		ClientPhone:     strings.TrimSpace(req.ClientPhone),
		ClientEmail:     strings.TrimSpace(req.ClientEmail),
		StartAt:         start,
		DurationMinutes: req.DurationMinutes,
		Status:          visit.Pending,
		Notes:           strings.TrimSpace(req.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	release, err := s.locks.acquire(ctx, v.AgentID)
	if err != nil {
		return nil, fmt.Errorf("waiting for agent %d: %w", v.AgentID, err)
	}
	defer release()

	overlaps := s.detector.Conflicts(v.AgentID, v.StartAt, v.DurationMinutes, "")
	if len(overlaps) > 0 && !req.AcknowledgeConflict {
		return nil, &ConflictError{VisitIDs: overlaps}
	}

	details := map[string]any{"start_at": v.StartAt, "duration_minutes": v.DurationMinutes}
	if len(overlaps) > 0 {
		details["acknowledged_conflicts"] = overlaps
	}

	err = s.store.InTx(ctx, v.AgentID, func(tx visit.Tx) error {
		if err := tx.Insert(ctx, v); err != nil {
			return err
		}
		return tx.Record(ctx, v.ID, visit.EventCreate, "", v.Status, details, now)
	})
	if err != nil {
		return nil, err
	}

	s.intervals.Upsert(v.AgentID, v.ID, v.Interval())

	s.logMutation(ctx, visit.EventCreate, v, overlaps)
	return v, nil
}

// UpdateRequest holds the mutable fields of a visit. Nil fields are left
// unchanged.
type UpdateRequest struct {
	ClientName          *string    `json:"client_name"`
	ClientPhone         *string    `json:"client_phone"`
	ClientEmail         *string    `json:"client_email"`
	StartAt             *time.Time `json:"start_at"`
	DurationMinutes     *int       `json:"duration_minutes"`
	Notes               *string    `json:"notes"`
	AcknowledgeConflict bool       `json:"acknowledge_conflict"`
}

// UpdateVisit applies changes to a pending or confirmed visit, re-checking
// conflicts against its new interval.
func (s *Service) UpdateVisit(ctx context.Context, id string, req UpdateRequest) (*visit.Visit, error) {
	return s.mutate(ctx, id, func(v *visit.Visit, now time.Time) (*change, error) {
		to, err := visit.Transition(v.Status, visit.EventUpdate)
		if err != nil {
			return nil, err
		}

		ch := &change{
			event:         visit.EventUpdate,
			details:       map[string]any{},
			checkConflict: true,
			ack:           req.AcknowledgeConflict,
		}
		var fields []string

		if req.ClientName != nil {
			name := strings.TrimSpace(*req.ClientName)
			if name == "" {
				return nil, invalid("client_name", "is required")
			}
			v.ClientName = name
			fields = append(fields, "client_name")
		}
		if req.ClientPhone != nil {
			v.ClientPhone = strings.TrimSpace(*req.ClientPhone)
			fields = append(fields, "client_phone")
		}
		if req.ClientEmail != nil {
			v.ClientEmail = strings.TrimSpace(*req.ClientEmail)
			fields = append(fields, "client_email")
		}
		if req.Notes != nil {
			v.Notes = strings.TrimSpace(*req.Notes)
			fields = append(fields, "notes")
		}
		if req.DurationMinutes != nil {
			v.DurationMinutes = *req.DurationMinutes
			fields = append(fields, "duration_minutes")
		}
		if err := validateDuration(v.DurationMinutes); err != nil {
			return nil, err
		}
		if req.StartAt != nil {
			start := req.StartAt.UTC().Truncate(time.Second)
			if !start.Equal(v.StartAt) {
				if _, err := validateStart(start, now); err != nil {
					return nil, err
				}
				ch.details["previous_start"] = v.StartAt
				ch.previousStart = v.StartAt
				ch.notify = notify.Rescheduled
				v.StartAt = start
			}
			fields = append(fields, "start_at")
		}

		v.Status = to
		v.UpdatedAt = now
		ch.details["fields"] = fields
		return ch, nil
	})
}

// Reschedule moves a visit to newStart, keeping its duration and status.
func (s *Service) Reschedule(ctx context.Context, id string, newStart time.Time, acknowledgeConflict bool) (*visit.Visit, error) {
	if newStart.IsZero() {
		return nil, invalid("new_start", "is required")
	}
	return s.reschedule(ctx, id, func(time.Time) time.Time { return newStart }, acknowledgeConflict)
}

// Shift moves a visit by the given offset.
func (s *Service) Shift(ctx context.Context, id string, by time.Duration, acknowledgeConflict bool) (*visit.Visit, error) {
	if by == 0 {
		return nil, invalid("shift_minutes", "must not be zero")
	}
	return s.reschedule(ctx, id, func(cur time.Time) time.Time { return cur.Add(by) }, acknowledgeConflict)
}

func (s *Service) reschedule(ctx context.Context, id string, target func(time.Time) time.Time, ack bool) (*visit.Visit, error) {
	return s.mutate(ctx, id, func(v *visit.Visit, now time.Time) (*change, error) {
		prev := v.StartAt
		start := target(prev).UTC().Truncate(time.Second)
		if _, err := visit.Transition(v.Status, visit.EventReschedule); err != nil {
			return nil, err
		}
		if _, err := validateStart(start, now); err != nil {
			return nil, err
		}
		if err := v.Reschedule(start, now); err != nil {
			return nil, err
		}
		return &change{
			event:         visit.EventReschedule,
			details:       map[string]any{"previous_start": prev, "start_at": start},
			checkConflict: true,
			ack:           ack,
			notify:        notify.Rescheduled,
			previousStart: prev,
		}, nil
	})
}

// Confirm moves a pending visit to confirmed.
func (s *Service) Confirm(ctx context.Context, id string) (*visit.Visit, error) {
	return s.mutate(ctx, id, func(v *visit.Visit, now time.Time) (*change, error) {
		if err := v.Confirm(now); err != nil {
			return nil, err
		}
		return &change{event: visit.EventConfirm, notify: notify.Confirmed}, nil
	})
}

// Cancel cancels a pending or confirmed visit and frees its slot.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*visit.Visit, error) {
	return s.mutate(ctx, id, func(v *visit.Visit, now time.Time) (*change, error) {
		if err := v.Cancel(reason, now); err != nil {
			return nil, err
		}
		ch := &change{event: visit.EventCancel, notify: notify.Cancelled}
		if v.CancellationReason != "" {
			ch.details = map[string]any{"reason": v.CancellationReason}
		}
		return ch, nil
	})
}

// MarkDone completes a confirmed visit, appending notes.
func (s *Service) MarkDone(ctx context.Context, id, notes string) (*visit.Visit, error) {
	return s.mutate(ctx, id, func(v *visit.Visit, now time.Time) (*change, error) {
		if err := v.MarkDone(notes, now); err != nil {
			return nil, err
		}
		return &change{event: visit.EventDone}, nil
	})
}

// change describes what a mutation did, for the audit record, the conflict
// check and the notification that follow it.
type change struct {
	event         visit.Event
	details       map[string]any
	checkConflict bool
	ack           bool
	notify        notify.Kind
	previousStart time.Time
}

// mutate loads visit id, applies fn under the agent's lock and commits the
// result with an audit record. fn works on a fresh copy read inside the
// transaction, so an error leaves the stored visit unchanged.
func (s *Service) mutate(ctx context.Context, id string, fn func(v *visit.Visit, now time.Time) (*change, error)) (*visit.Visit, error) {
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.acquire(ctx, cur.AgentID)
	if err != nil {
		return nil, fmt.Errorf("waiting for agent %d: %w", cur.AgentID, err)
	}
	defer release()

	now := s.now()
	var (
		out      *visit.Visit
		ch       *change
		overlaps []string
	)
	err = s.store.InTx(ctx, cur.AgentID, func(tx visit.Tx) error {
		v, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		from := v.Status

		ch, err = fn(v, now)
		if err != nil {
			return err
		}

		if ch.checkConflict && v.Status.IsActive() {
			overlaps = s.detector.Conflicts(v.AgentID, v.StartAt, v.DurationMinutes, v.ID)
			if len(overlaps) > 0 {
				if !ch.ack {
					return &ConflictError{VisitIDs: overlaps}
				}
				if ch.details == nil {
					ch.details = map[string]any{}
				}
				ch.details["acknowledged_conflicts"] = overlaps
			}
		}

		if err := tx.Update(ctx, v); err != nil {
			return err
		}
		if err := tx.Record(ctx, v.ID, ch.event, from, v.Status, ch.details, now); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Status.IsActive() {
		s.intervals.Upsert(out.AgentID, out.ID, out.Interval())
	} else {
		s.intervals.Remove(out.AgentID, out.ID)
	}

	s.logMutation(ctx, ch.event, out, overlaps)
	if ch.notify != "" {
		s.dispatch(ctx, ch.notify, out, ch.previousStart)
	}
	return out, nil
}

func (s *Service) logMutation(ctx context.Context, event visit.Event, v *visit.Visit, overlaps []string) {
	attrs := []any{
		"event", event,
		"visit_id", v.ID,
		"agent_id", v.AgentID,
		"status", v.Status,
		"start_at", v.StartAt,
	}
	if len(overlaps) > 0 {
		s.log.WarnContext(ctx, "visit committed over acknowledged conflict", append(attrs, "conflicts", overlaps)...)
		return
	}
	s.log.InfoContext(ctx, "visit "+string(event), attrs...)
}

// dispatch sends a notification in the background. Failures are logged.
func (s *Service) dispatch(ctx context.Context, kind notify.Kind, v *visit.Visit, previousStart time.Time) {
	if s.opts.Notifier == nil {
		return
	}
	msg := notify.Message{Kind: kind, Visit: *v, PreviousStart: previousStart}
	ctx = context.WithoutCancel(ctx)

	s.pending.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()

		if a, err := s.dir.Agent(ctx, msg.Visit.AgentID); err == nil {
			msg.AgentName, msg.AgentEmail = a.Name, a.Email
		}
		if p, err := s.dir.Property(ctx, msg.Visit.PropertyID); err == nil {
			msg.PropertyCode, msg.PropertyAddress = p.Code, p.Address
		}

		if err := s.opts.Notifier.Notify(ctx, msg); err != nil {
			s.log.WarnContext(ctx, "notification failed", "kind", kind, "visit_id", msg.Visit.ID, "error", err)
		}
	})
}

func (s *Service) checkAgent(ctx context.Context, id int64) error {
	a, err := s.dir.Agent(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		return invalid("agent_id", "agent %d does not exist", id)
	}
	if err != nil {
		return fmt.Errorf("looking up agent: %w", err)
	}
	if !a.Active {
		return invalid("agent_id", "agent %d is not active", id)
	}
	return nil
}

func (s *Service) checkProperty(ctx context.Context, id int64) error {
	_, err := s.dir.Property(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		return invalid("property_id", "property %d does not exist", id)
	}
	if err != nil {
		return fmt.Errorf("looking up property: %w", err)
	}
	return nil
}

func validateDuration(minutes int) error {
	if minutes < visit.MinDuration || minutes > visit.MaxDuration {
		return invalid("duration_minutes", "must be between %d and %d", visit.MinDuration, visit.MaxDuration)
	}
	return nil
}

// validateStart normalizes start to whole seconds in UTC and rejects zero
// and past times.
func validateStart(start, now time.Time) (time.Time, error) {
	if start.IsZero() {
		return time.Time{}, invalid("start_at", "is required")
	}
	start = start.UTC().Truncate(time.Second)
	if start.Before(now) {
		return time.Time{}, invalid("start_at", "must not be in the past")
	}
	return start, nil
}
