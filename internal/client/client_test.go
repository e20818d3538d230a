package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evcraddock/visit-scheduler/internal/calendar"
	"github.com/evcraddock/visit-scheduler/internal/directory"
	"github.com/evcraddock/visit-scheduler/internal/schedule"
	"github.com/evcraddock/visit-scheduler/internal/visit"
)

func writeJSON(t *testing.T, w http.ResponseWriter, code int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func TestCreateVisit(t *testing.T) {
	start := time.Date(2026, 11, 2, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/visits" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer testkey" {
			t.Error("expected Bearer testkey")
		}
		var req schedule.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.AgentID != 7 || !req.StartAt.Equal(start) || !req.AcknowledgeConflict {
			t.Errorf("request = %+v", req)
		}
		writeJSON(t, w, http.StatusCreated, visit.Visit{ID: "v1", AgentID: 7, StartAt: start, DurationMinutes: 60, Status: visit.Pending})
	}))
	defer srv.Close()

	c := New(srv.URL, "testkey")
	v, err := c.CreateVisit(context.Background(), schedule.CreateRequest{
		AgentID: 7, PropertyID: 1, ClientName: "Dana", StartAt: start, DurationMinutes: 60, AcknowledgeConflict: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v.ID != "v1" || v.Status != visit.Pending {
		t.Errorf("visit = %+v", v)
	}
}

func TestConflictError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusConflict, map[string]any{
			"error":                 "conflicts with visit(s) a",
			"kind":                  "conflict",
			"conflicting_visit_ids": []string{"a"},
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").CreateVisit(context.Background(), schedule.CreateRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T %v, want *APIError", err, err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Kind != schedule.KindConflict {
		t.Errorf("error = %+v", apiErr)
	}
	if len(apiErr.ConflictIDs) != 1 || apiErr.ConflictIDs[0] != "a" {
		t.Errorf("ids = %v", apiErr.ConflictIDs)
	}
	if apiErr.Error() != "conflicts with visit(s) a" {
		t.Errorf("message = %q", apiErr.Error())
	}
}

func TestErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, "").Health(context.Background())
	if err == nil || err.Error() != "server error: Bad Gateway" {
		t.Errorf("error = %v", err)
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name     string
		call     func(*Client) (*visit.Visit, error)
		wantPath string
		wantBody string
	}{
		{"confirm", func(c *Client) (*visit.Visit, error) { return c.Confirm(context.Background(), "v1") }, "/visits/v1/confirm", "{}"},
		{"cancel", func(c *Client) (*visit.Visit, error) { return c.Cancel(context.Background(), "v1", "sick") }, "/visits/v1/cancel", `{"reason":"sick"}`},
		{"done", func(c *Client) (*visit.Visit, error) { return c.MarkDone(context.Background(), "v1", "ok") }, "/visits/v1/done", `{"notes":"ok"}`},
		{"shift", func(c *Client) (*visit.Visit, error) {
			by := 30
			return c.Reschedule(context.Background(), "v1", RescheduleRequest{ShiftMinutes: &by})
		}, "/visits/v1/reschedule", `{"shift_minutes":30}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPatch || r.URL.Path != tt.wantPath {
					t.Errorf("request = %s %s", r.Method, r.URL.Path)
				}
				body, _ := io.ReadAll(r.Body)
				if string(body) != tt.wantBody {
					t.Errorf("body = %s, want %s", body, tt.wantBody)
				}
				writeJSON(t, w, http.StatusOK, visit.Visit{ID: "v1"})
			}))
			defer srv.Close()

			if _, err := tt.call(New(srv.URL, "")); err != nil {
				t.Fatalf("call: %v", err)
			}
		})
	}
}

func TestBulkAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req schedule.BulkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Action != schedule.BulkCancel || len(req.VisitIDs) != 2 {
			t.Errorf("request = %+v", req)
		}
		writeJSON(t, w, http.StatusOK, BulkResponse{
			Results: []schedule.BulkResult{
				{VisitID: "a", Success: true},
				{VisitID: "b", ErrorKind: schedule.KindInvalidTransition, Error: "done"},
			},
			Succeeded: 1,
			Failed:    1,
		})
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "").BulkAction(context.Background(), schedule.BulkRequest{
		VisitIDs: []string{"a", "b"}, Action: schedule.BulkCancel,
	})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if resp.Failed != 1 || resp.Results[1].ErrorKind != schedule.KindInvalidTransition {
		t.Errorf("response = %+v", resp)
	}
}

func TestCalendarQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("view") != "week" || q.Get("date") != "2026-11-04" || q.Get("agent_id") != "7" || q.Has("from") {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		writeJSON(t, w, http.StatusOK, CalendarResponse{
			View:    calendar.WeekView,
			Entries: []calendar.Entry{{VisitID: "a", Color: "#3b82f6"}},
		})
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "").Calendar(context.Background(), CalendarQuery{View: "week", Date: "2026-11-04", AgentID: 7})
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].VisitID != "a" {
		t.Errorf("entries = %+v", resp.Entries)
	}
}

func TestSlots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/visits/slots" || q.Get("agent_id") != "3" || q.Get("duration") != "90" {
			t.Errorf("request = %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		writeJSON(t, w, http.StatusOK, SlotsResponse{AgentID: 3, Slots: []time.Time{time.Date(2026, 11, 2, 8, 0, 0, 0, time.UTC)}})
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "").Slots(context.Background(), 3, "2026-11-02", 90)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(resp.Slots) != 1 {
		t.Errorf("slots = %v", resp.Slots)
	}
}

func TestICS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="visit-v1.ics"`)
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()

	body, name, err := New(srv.URL, "").ICS(context.Background(), "v1")
	if err != nil {
		t.Fatalf("ics: %v", err)
	}
	if name != "visit-v1.ics" {
		t.Errorf("name = %q", name)
	}
	if string(body) != "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n" {
		t.Errorf("body = %q", body)
	}
}

func TestDirectory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "GET /agents":
			writeJSON(t, w, http.StatusOK, []*directory.Agent{{ID: 1, Name: "A", Active: true}})
		case "PATCH /agents/1":
			writeJSON(t, w, http.StatusOK, directory.Agent{ID: 1, Name: "A"})
		case "POST /properties":
			writeJSON(t, w, http.StatusCreated, directory.Property{ID: 2, Code: "MLS-2"})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "")
	ctx := context.Background()

	agents, err := c.ListAgents(ctx)
	if err != nil || len(agents) != 1 {
		t.Fatalf("list agents = %v, %v", agents, err)
	}
	a, err := c.SetAgentActive(ctx, 1, false)
	if err != nil || a.Active {
		t.Fatalf("deactivate = %+v, %v", a, err)
	}
	p, err := c.AddProperty(ctx, "MLS-2", "2 Elm")
	if err != nil || p.Code != "MLS-2" {
		t.Fatalf("add property = %+v, %v", p, err)
	}
}
