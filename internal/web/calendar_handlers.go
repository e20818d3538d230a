package web

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/evcraddock/visit-scheduler/internal/calendar"
	"github.com/evcraddock/visit-scheduler/internal/directory"
	"github.com/evcraddock/visit-scheduler/internal/ics"
)

type calendarResponse struct {
	From    time.Time        `json:"from"`
	To      time.Time        `json:"to"`
	View    calendar.View    `json:"view,omitempty"`
	AgentID int64            `json:"agent_id,omitempty"`
	Entries []calendar.Entry `json:"entries"`
	Days    []calendar.Day   `json:"days,omitempty"`
}

// apiCalendar serves GET /visits/calendar?from&to[&agent_id] or
// ?view=day|week&date=YYYY-MM-DD[&agent_id].
func (s *Server) apiCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := s.svc.Location()
	resp := calendarResponse{}

	if v := q.Get("agent_id"); v != "" {
		id, err := parseID(v)
		if err != nil {
			apiError(w, "agent_id: "+err.Error(), http.StatusBadRequest)
			return
		}
		resp.AgentID = id
	}

	var err error
	switch {
	case q.Get("view") != "" || q.Get("date") != "":
		date := time.Now().In(loc)
		if d := q.Get("date"); d != "" {
			date, err = time.ParseInLocation(time.DateOnly, d, loc)
			if err != nil {
				apiError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
				return
			}
		}
		resp.View = calendar.View(q.Get("view"))
		if resp.View == "" {
			resp.View = calendar.DayView
		}
		resp.From, resp.To, err = calendar.Range(resp.View, date, loc)
		if err != nil {
			apiError(w, err.Error(), http.StatusBadRequest)
			return
		}
	default:
		if q.Get("from") == "" || q.Get("to") == "" {
			apiError(w, "from and to are required (or view and date)", http.StatusBadRequest)
			return
		}
		if resp.From, err = parseInstant(q.Get("from"), loc); err != nil {
			apiError(w, "from: "+err.Error(), http.StatusBadRequest)
			return
		}
		if resp.To, err = parseInstant(q.Get("to"), loc); err != nil {
			apiError(w, "to: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	resp.Entries, err = s.calendar.Project(r.Context(), calendar.Query{From: resp.From, To: resp.To, AgentID: resp.AgentID})
	if err != nil {
		if errors.Is(err, calendar.ErrInvalidRange) {
			apiError(w, err.Error(), http.StatusBadRequest)
			return
		}
		serviceError(w, r, err)
		return
	}
	if resp.View != "" {
		resp.Days = calendar.GroupByDay(resp.Entries, resp.From, resp.To, loc)
	}

	apiJSON(w, resp, http.StatusOK)
}

type slotsResponse struct {
	AgentID         int64       `json:"agent_id"`
	Date            string      `json:"date"`
	DurationMinutes int         `json:"duration_minutes"`
	Slots           []time.Time `json:"slots"`
}

// apiSlots serves GET /visits/slots?agent_id&date&duration.
func (s *Server) apiSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := s.svc.Location()

	agentID, err := parseID(q.Get("agent_id"))
	if err != nil {
		apiError(w, "agent_id: "+err.Error(), http.StatusBadRequest)
		return
	}
	date, err := time.ParseInLocation(time.DateOnly, q.Get("date"), loc)
	if err != nil {
		apiError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	duration := 60
	if v := q.Get("duration"); v != "" {
		if duration, err = strconv.Atoi(v); err != nil {
			apiError(w, fmt.Sprintf("duration: %q is not a number of minutes", v), http.StatusBadRequest)
			return
		}
	}

	seq, err := s.svc.AvailableSlots(r.Context(), agentID, date, duration)
	if err != nil {
		serviceError(w, r, err)
		return
	}

	slots := slices.Collect(seq)
	if slots == nil {
		slots = make([]time.Time, 0)
	}
	apiJSON(w, slotsResponse{
		AgentID:         agentID,
		Date:            date.Format(time.DateOnly),
		DurationMinutes: duration,
		Slots:           slots,
	}, http.StatusOK)
}

// apiICS serves the visit as a calendar file download.
func (s *Server) apiICS(w http.ResponseWriter, r *http.Request, id string) {
	v, err := s.svc.Get(r.Context(), id)
	if err != nil {
		serviceError(w, r, err)
		return
	}

	ev := ics.Event{Visit: v}
	agent, err := s.dir.Agent(r.Context(), v.AgentID)
	switch {
	case err == nil:
		ev.AgentName = agent.Name
	case !errors.Is(err, directory.ErrNotFound):
		serviceError(w, r, err)
		return
	}
	prop, err := s.dir.Property(r.Context(), v.PropertyID)
	switch {
	case err == nil:
		ev.PropertyCode, ev.PropertyAddress = prop.Code, prop.Address
	case !errors.Is(err, directory.ErrNotFound):
		serviceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", ics.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ics.Filename(v.ID)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(ics.Export(ev))
}
