package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/evcraddock/visit-scheduler/internal/schedule"
	"github.com/evcraddock/visit-scheduler/internal/visit"
)

// handleVisits routes /visits requests.
func (s *Server) handleVisits(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/visits")
	path = strings.Trim(path, "/")

	switch path {
	case "":
		if r.Method != http.MethodPost {
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.apiCreateVisit(w, r)
		return
	case "bulk-action":
		if r.Method != http.MethodPost {
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.apiBulkAction(w, r)
		return
	case "check-conflict":
		if r.Method != http.MethodPost {
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.apiCheckConflict(w, r)
		return
	case "calendar":
		if r.Method != http.MethodGet {
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.apiCalendar(w, r)
		return
	case "slots":
		if r.Method != http.MethodGet {
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.apiSlots(w, r)
		return
	}

	id, action, _ := strings.Cut(path, "/")
	if id == "" || strings.Contains(action, "/") {
		apiError(w, "not found", http.StatusNotFound)
		return
	}

	// /visits/{id}
	if action == "" {
		switch r.Method {
		case http.MethodGet:
			s.apiGetVisit(w, r, id)
		case http.MethodPut:
			s.apiUpdateVisit(w, r, id)
		default:
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	// /visits/{id}/ics and /visits/{id}/history are reads; the rest are
	// state changes.
	want := http.MethodPatch
	if action == "ics" || action == "history" {
		want = http.MethodGet
	}

	var handle func(http.ResponseWriter, *http.Request, string)
	switch action {
	case "confirm":
		handle = s.apiConfirm
	case "cancel":
		handle = s.apiCancel
	case "done":
		handle = s.apiDone
	case "reschedule":
		handle = s.apiReschedule
	case "ics":
		handle = s.apiICS
	case "history":
		handle = s.apiHistory
	default:
		apiError(w, "not found", http.StatusNotFound)
		return
	}
	if r.Method != want {
		apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handle(w, r, id)
}

// apiCreateVisit books a new visit.
func (s *Server) apiCreateVisit(w http.ResponseWriter, r *http.Request) {
	var req schedule.CreateRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	v, err := s.svc.CreateVisit(r.Context(), req)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	apiJSON(w, v, http.StatusCreated)
}

func (s *Server) apiGetVisit(w http.ResponseWriter, r *http.Request, id string) {
	v, err := s.svc.Get(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	apiJSON(w, v, http.StatusOK)
}

func (s *Server) apiUpdateVisit(w http.ResponseWriter, r *http.Request, id string) {
	var req schedule.UpdateRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	v, err := s.svc.UpdateVisit(r.Context(), id, req)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	apiJSON(w, v, http.StatusOK)
}

func (s *Server) apiConfirm(w http.ResponseWriter, r *http.Request, id string) {
	var req struct{}
	if !decodeJSON(w, r, &req, true) {
		return
	}
	s.respondVisit(w, r)(s.svc.Confirm(r.Context(), id))
}

func (s *Server) apiCancel(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req, true) {
		return
	}
	s.respondVisit(w, r)(s.svc.Cancel(r.Context(), id, req.Reason))
}

func (s *Server) apiDone(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Notes string `json:"notes"`
	}
	if !decodeJSON(w, r, &req, true) {
		return
	}
	s.respondVisit(w, r)(s.svc.MarkDone(r.Context(), id, req.Notes))
}

// rescheduleRequest moves a visit to StartAt or by ShiftMinutes; exactly one
// must be given.
type rescheduleRequest struct {
	StartAt             *time.Time `json:"start_at"`
	ShiftMinutes        *int       `json:"shift_minutes"`
	AcknowledgeConflict bool       `json:"acknowledge_conflict"`
}

func (s *Server) apiReschedule(w http.ResponseWriter, r *http.Request, id string) {
	var req rescheduleRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	switch {
	case req.StartAt != nil && req.ShiftMinutes != nil:
		apiError(w, "give either start_at or shift_minutes, not both", http.StatusBadRequest)
	case req.StartAt != nil:
		s.respondVisit(w, r)(s.svc.Reschedule(r.Context(), id, *req.StartAt, req.AcknowledgeConflict))
	case req.ShiftMinutes != nil:
		by := time.Duration(*req.ShiftMinutes) * time.Minute
		s.respondVisit(w, r)(s.svc.Shift(r.Context(), id, by, req.AcknowledgeConflict))
	default:
		apiError(w, "start_at or shift_minutes is required", http.StatusBadRequest)
	}
}

func (s *Server) apiHistory(w http.ResponseWriter, r *http.Request, id string) {
	recs, err := s.svc.History(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if recs == nil {
		recs = make([]*visit.Record, 0)
	}
	apiJSON(w, recs, http.StatusOK)
}

// apiBulkAction always answers 200 once the request is well formed; per-visit
// failures are in the result list.
func (s *Server) apiBulkAction(w http.ResponseWriter, r *http.Request) {
	var req schedule.BulkRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	results, err := s.svc.BulkAction(r.Context(), req)
	if err != nil {
		serviceError(w, r, err)
		return
	}

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}
	apiJSON(w, map[string]any{
		"results":   results,
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	}, http.StatusOK)
}

type checkConflictRequest struct {
	AgentID         int64     `json:"agent_id"`
	StartAt         time.Time `json:"start_at"`
	DurationMinutes int       `json:"duration_minutes"`
	ExcludeVisitID  string    `json:"exclude_visit_id"`
}

func (s *Server) apiCheckConflict(w http.ResponseWriter, r *http.Request) {
	var req checkConflictRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	res, err := s.svc.CheckConflict(r.Context(), req.AgentID, req.StartAt, req.DurationMinutes, req.ExcludeVisitID)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	apiJSON(w, res, http.StatusOK)
}

// respondVisit returns a function writing the outcome of a single-visit
// operation.
func (s *Server) respondVisit(w http.ResponseWriter, r *http.Request) func(*visit.Visit, error) {
	return func(v *visit.Visit, err error) {
		if err != nil {
			serviceError(w, r, err)
			return
		}
		apiJSON(w, v, http.StatusOK)
	}
}
