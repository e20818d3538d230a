// Package client provides an HTTP client for the visit scheduler REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/evcraddock/visit-scheduler/internal/calendar"
	"github.com/evcraddock/visit-scheduler/internal/directory"
	"github.com/evcraddock/visit-scheduler/internal/schedule"
	"github.com/evcraddock/visit-scheduler/internal/visit"
)

// Client is an HTTP client for the visit scheduler API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode  int
	Message     string
	Kind        schedule.Kind
	ConflictIDs []string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: %s", http.StatusText(e.StatusCode))
	}
	return e.Message
}

// CreateVisit books a visit.
func (c *Client) CreateVisit(ctx context.Context, req schedule.CreateRequest) (*visit.Visit, error) {
	var v visit.Visit
	if err := c.send(ctx, http.MethodPost, "/visits", req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVisit returns one visit.
func (c *Client) GetVisit(ctx context.Context, id string) (*visit.Visit, error) {
	var v visit.Visit
	if err := c.get(ctx, "/visits/"+url.PathEscape(id), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// UpdateVisit changes the mutable fields of a visit.
func (c *Client) UpdateVisit(ctx context.Context, id string, req schedule.UpdateRequest) (*visit.Visit, error) {
	var v visit.Visit
	if err := c.send(ctx, http.MethodPut, "/visits/"+url.PathEscape(id), req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Confirm confirms a pending visit.
func (c *Client) Confirm(ctx context.Context, id string) (*visit.Visit, error) {
	return c.transition(ctx, id, "confirm", struct{}{})
}

// Cancel cancels a visit with an optional reason.
func (c *Client) Cancel(ctx context.Context, id, reason string) (*visit.Visit, error) {
	return c.transition(ctx, id, "cancel", map[string]string{"reason": reason})
}

// MarkDone completes a confirmed visit.
func (c *Client) MarkDone(ctx context.Context, id, notes string) (*visit.Visit, error) {
	return c.transition(ctx, id, "done", map[string]string{"notes": notes})
}

// RescheduleRequest moves a visit to StartAt or by ShiftMinutes.
type RescheduleRequest struct {
	StartAt             *time.Time `json:"start_at,omitempty"`
	ShiftMinutes        *int       `json:"shift_minutes,omitempty"`
	AcknowledgeConflict bool       `json:"acknowledge_conflict,omitempty"`
}

// Reschedule moves a visit.
func (c *Client) Reschedule(ctx context.Context, id string, req RescheduleRequest) (*visit.Visit, error) {
	return c.transition(ctx, id, "reschedule", req)
}

func (c *Client) transition(ctx context.Context, id, action string, body any) (*visit.Visit, error) {
	var v visit.Visit
	if err := c.send(ctx, http.MethodPatch, "/visits/"+url.PathEscape(id)+"/"+action, body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// History returns the audit records of a visit.
func (c *Client) History(ctx context.Context, id string) ([]*visit.Record, error) {
	var recs []*visit.Record
	if err := c.get(ctx, "/visits/"+url.PathEscape(id)+"/history", &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// BulkResponse is the response from POST /visits/bulk-action.
type BulkResponse struct {
	Results   []schedule.BulkResult `json:"results"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
}

// BulkAction applies one action to many visits.
func (c *Client) BulkAction(ctx context.Context, req schedule.BulkRequest) (*BulkResponse, error) {
	var resp BulkResponse
	if err := c.send(ctx, http.MethodPost, "/visits/bulk-action", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckRequest is a speculative conflict query.
type CheckRequest struct {
	AgentID         int64     `json:"agent_id"`
	StartAt         time.Time `json:"start_at"`
	DurationMinutes int       `json:"duration_minutes"`
	ExcludeVisitID  string    `json:"exclude_visit_id,omitempty"`
}

// CheckConflict asks whether a booking would conflict.
func (c *Client) CheckConflict(ctx context.Context, req CheckRequest) (*schedule.ConflictCheck, error) {
	var resp schedule.ConflictCheck
	if err := c.send(ctx, http.MethodPost, "/visits/check-conflict", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SlotsResponse is the response from GET /visits/slots.
type SlotsResponse struct {
	AgentID         int64       `json:"agent_id"`
	Date            string      `json:"date"`
	DurationMinutes int         `json:"duration_minutes"`
	Slots           []time.Time `json:"slots"`
}

// Slots lists free start times for an agent on date (YYYY-MM-DD).
func (c *Client) Slots(ctx context.Context, agentID int64, date string, durationMinutes int) (*SlotsResponse, error) {
	q := url.Values{}
	q.Set("agent_id", strconv.FormatInt(agentID, 10))
	q.Set("date", date)
	q.Set("duration", strconv.Itoa(durationMinutes))

	var resp SlotsResponse
	if err := c.get(ctx, "/visits/slots?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CalendarQuery selects a calendar range either by From/To or by View/Date.
type CalendarQuery struct {
	From    string
	To      string
	View    string
	Date    string
	AgentID int64
}

// CalendarResponse is the response from GET /visits/calendar.
type CalendarResponse struct {
	From    time.Time        `json:"from"`
	To      time.Time        `json:"to"`
	View    calendar.View    `json:"view,omitempty"`
	AgentID int64            `json:"agent_id,omitempty"`
	Entries []calendar.Entry `json:"entries"`
	Days    []calendar.Day   `json:"days,omitempty"`
}

// Calendar returns calendar entries.
func (c *Client) Calendar(ctx context.Context, q CalendarQuery) (*CalendarResponse, error) {
	params := url.Values{}
	for k, v := range map[string]string{"from": q.From, "to": q.To, "view": q.View, "date": q.Date} {
		if v != "" {
			params.Set(k, v)
		}
	}
	if q.AgentID != 0 {
		params.Set("agent_id", strconv.FormatInt(q.AgentID, 10))
	}

	var resp CalendarResponse
	if err := c.get(ctx, "/visits/calendar?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ICS downloads a visit as an iCalendar file and returns its contents and
// suggested file name.
func (c *Client) ICS(ctx context.Context, id string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/visits/"+url.PathEscape(id)+"/ics", nil)
	if err != nil {
		return nil, "", err
	}
	body, header, err := c.do(req)
	if err != nil {
		return nil, "", err
	}

	name := "visit-" + id + ".ics"
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return body, name, nil
}

// ListAgents returns all agents.
func (c *Client) ListAgents(ctx context.Context) ([]*directory.Agent, error) {
	var agents []*directory.Agent
	if err := c.get(ctx, "/agents", &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// AddAgent creates an agent.
func (c *Client) AddAgent(ctx context.Context, name, email string) (*directory.Agent, error) {
	var a directory.Agent
	if err := c.send(ctx, http.MethodPost, "/agents", map[string]string{"name": name, "email": email}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SetAgentActive activates or deactivates an agent.
func (c *Client) SetAgentActive(ctx context.Context, id int64, active bool) (*directory.Agent, error) {
	var a directory.Agent
	if err := c.send(ctx, http.MethodPatch, fmt.Sprintf("/agents/%d", id), map[string]bool{"active": active}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListProperties returns all properties.
func (c *Client) ListProperties(ctx context.Context) ([]*directory.Property, error) {
	var props []*directory.Property
	if err := c.get(ctx, "/properties", &props); err != nil {
		return nil, err
	}
	return props, nil
}

// AddProperty creates a property.
func (c *Client) AddProperty(ctx context.Context, code, address string) (*directory.Property, error) {
	var p directory.Property
	if err := c.send(ctx, http.MethodPost, "/properties", map[string]string{"code": code, "address": address}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}

// get performs a GET request and decodes the response.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.decode(req, result)
}

// send performs a request with a JSON body and decodes the response.
func (c *Client) send(ctx context.Context, method, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := c.newRequest(ctx, method, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.decode(req, result)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return req, nil
}

func (c *Client) decode(req *http.Request, result any) error {
	body, _, err := c.do(req)
	if err != nil {
		return err
	}
	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// do executes an HTTP request with auth header and handles errors.
func (c *Client) do(req *http.Request) ([]byte, http.Header, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("closing response body", "error", cerr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp struct {
			Error       string        `json:"error"`
			Kind        schedule.Kind `json:"kind"`
			ConflictIDs []string      `json:"conflicting_visit_ids"`
		}
		if json.Unmarshal(respBody, &errResp) == nil {
			apiErr.Message = errResp.Error
			apiErr.Kind = errResp.Kind
			apiErr.ConflictIDs = errResp.ConflictIDs
		}
		return nil, nil, apiErr
	}

	return respBody, resp.Header, nil
}
