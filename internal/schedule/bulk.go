package schedule

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evcraddock/visit-scheduler/internal/visit"
)

// BulkAction names the operation a bulk request applies.
type BulkAction string

const (
	BulkConfirm    BulkAction = "confirm"
	BulkCancel     BulkAction = "cancel"
	BulkReschedule BulkAction = "reschedule"
)

// BulkOptions parameterize a bulk action. Reschedule takes exactly one of
// NewStart and ShiftMinutes; Cancel takes an optional Reason.
type BulkOptions struct {
	Reason              string     `json:"reason,omitempty"`
	NewStart            *time.Time `json:"new_start,omitempty"`
	ShiftMinutes        *int       `json:"shift_minutes,omitempty"`
	AcknowledgeConflict bool       `json:"acknowledge_conflict,omitempty"`
}

// BulkRequest applies one action to many visits.
type BulkRequest struct {
	VisitIDs []string    `json:"visit_ids"`
	Action   BulkAction  `json:"action"`
	Options  BulkOptions `json:"options"`
}

// BulkResult is the outcome for one visit id.
type BulkResult struct {
	VisitID   string       `json:"visit_id"`
	Success   bool         `json:"success"`
	Visit     *visit.Visit `json:"visit,omitempty"`
	ErrorKind Kind         `json:"error_kind,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// BulkAction applies req.Action to every id independently, with bounded
// parallelism. A failing item is reported in its result and does not stop
// the others; each item takes its agent's lock on its own. Results are in
// request order. Only a malformed request returns an error.
func (s *Service) BulkAction(ctx context.Context, req BulkRequest) ([]BulkResult, error) {
	apply, err := s.bulkFunc(req)
	if err != nil {
		return nil, err
	}

	results := make([]BulkResult, len(req.VisitIDs))

	var g errgroup.Group
	g.SetLimit(s.opts.BulkParallel)
	for i, id := range req.VisitIDs {
		g.Go(func() error {
			v, err := apply(ctx, id)
			results[i] = BulkResult{VisitID: id, Success: err == nil, Visit: v}
			if err != nil {
				results[i].ErrorKind = KindOf(err)
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	s.log.InfoContext(ctx, "bulk action", "action", req.Action, "visits", len(results), "failed", failed)

	return results, nil
}

func (s *Service) bulkFunc(req BulkRequest) (func(context.Context, string) (*visit.Visit, error), error) {
	if len(req.VisitIDs) == 0 {
		return nil, invalid("visit_ids", "must not be empty")
	}

	opts := req.Options
	switch req.Action {
	case BulkConfirm:
		return s.Confirm, nil
	case BulkCancel:
		return func(ctx context.Context, id string) (*visit.Visit, error) {
			return s.Cancel(ctx, id, opts.Reason)
		}, nil
	case BulkReschedule:
		switch {
		case opts.NewStart != nil && opts.ShiftMinutes != nil:
			return nil, invalid("options", "give either new_start or shift_minutes, not both")
		case opts.NewStart != nil:
			return func(ctx context.Context, id string) (*visit.Visit, error) {
				return s.Reschedule(ctx, id, *opts.NewStart, opts.AcknowledgeConflict)
			}, nil
		case opts.ShiftMinutes != nil:
			if *opts.ShiftMinutes == 0 {
				return nil, invalid("shift_minutes", "must not be zero")
			}
			by := time.Duration(*opts.ShiftMinutes) * time.Minute
			return func(ctx context.Context, id string) (*visit.Visit, error) {
				return s.Shift(ctx, id, by, opts.AcknowledgeConflict)
			}, nil
		default:
			return nil, invalid("options", "reschedule needs new_start or shift_minutes")
		}
	default:
		return nil, invalid("action", "unknown action %q", req.Action)
	}
}
