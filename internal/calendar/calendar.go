// Package calendar materializes display-ready calendar entries from stored
// visits.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/evcraddock/visit-scheduler/internal/directory"
	"github.com/evcraddock/visit-scheduler/internal/visit"
)

// ErrInvalidRange is returned for a missing or inverted date range.
var ErrInvalidRange = errors.New("calendar: invalid range")

// MaxRange bounds a single projection.
const MaxRange = 62 * 24 * time.Hour

// Palette colors agents in the multi-agent view.
var Palette = []string{
	"#2563eb", "#dc2626", "#16a34a", "#9333ea", "#ea580c",
	"#0891b2", "#db2777", "#65a30d", "#4f46e5", "#b45309",
}

// StatusColors color visits in the single-agent view.
var StatusColors = map[visit.Status]string{
	visit.Pending:   "#f59e0b",
	visit.Confirmed: "#3b82f6",
	visit.Done:      "#10b981",
	visit.Cancelled: "#9ca3af",
}

const unknownStatusColor = "#6b7280"

// AgentColor returns the palette color for an agent. The same id always
// maps to the same color.
func AgentColor(agentID int64) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(agentID, 10)))
	return Palette[h.Sum32()%uint32(len(Palette))]
}

// StatusColor returns the color for a visit status.
func StatusColor(s visit.Status) string {
	if c, ok := StatusColors[s]; ok {
		return c
	}
	return unknownStatusColor
}

// Entry is one visit as a calendar renders it.
type Entry struct {
	VisitID      string       `json:"visit_id"`
	Title        string       `json:"title"`
	Start        time.Time    `json:"start"`
	End          time.Time    `json:"end"`
	Color        string       `json:"color"`
	Status       visit.Status `json:"status"`
	PropertyCode string       `json:"property_code"`
	ClientName   string       `json:"client_name"`
	AgentID      int64        `json:"agent_id"`
	AgentName    string       `json:"agent_name"`
}

// Query selects visits overlapping [From, To). AgentID 0 means every agent.
type Query struct {
	From    time.Time
	To      time.Time
	AgentID int64
}

// Source lists stored visits.
type Source interface {
	List(ctx context.Context, f visit.Filter) ([]*visit.Visit, error)
}

// Directory resolves display names.
type Directory interface {
	Agent(ctx context.Context, id int64) (*directory.Agent, error)
	Property(ctx context.Context, id int64) (*directory.Property, error)
}

// Projector turns stored visits into calendar entries. It never writes.
type Projector struct {
	visits Source
	dir    Directory
}

// NewProjector creates a projector.
func NewProjector(visits Source, dir Directory) *Projector {
	return &Projector{visits: visits, dir: dir}
}

// Project returns the entries for q ordered by start time. Visits of every
// status are included. With no agent filter entries are colored per agent;
// with one they are colored by status.
func (p *Projector) Project(ctx context.Context, q Query) ([]Entry, error) {
	if q.From.IsZero() || q.To.IsZero() || !q.To.After(q.From) {
		return nil, fmt.Errorf("%w: from must be before to", ErrInvalidRange)
	}
	if q.To.Sub(q.From) > MaxRange {
		return nil, fmt.Errorf("%w: range exceeds %d days", ErrInvalidRange, int(MaxRange.Hours()/24))
	}

	visits, err := p.visits.List(ctx, visit.Filter{From: q.From, To: q.To, AgentID: q.AgentID})
	if err != nil {
		return nil, fmt.Errorf("projecting calendar: %w", err)
	}

	agents := map[int64]string{}
	props := map[int64]string{}
	entries := make([]Entry, 0, len(visits))
	for _, v := range visits {
		agentName, err := p.agentName(ctx, agents, v.AgentID)
		if err != nil {
			return nil, err
		}
		code, err := p.propertyCode(ctx, props, v.PropertyID)
		if err != nil {
			return nil, err
		}

		color := AgentColor(v.AgentID)
		if q.AgentID != 0 {
			color = StatusColor(v.Status)
		}

		entries = append(entries, Entry{
			VisitID:      v.ID,
			Title:        title(code, v.ClientName),
			Start:        v.StartAt,
			End:          v.EndAt(),
			Color:        color,
			Status:       v.Status,
			PropertyCode: code,
			ClientName:   v.ClientName,
			AgentID:      v.AgentID,
			AgentName:    agentName,
		})
	}
	return entries, nil
}

func (p *Projector) agentName(ctx context.Context, cache map[int64]string, id int64) (string, error) {
	if name, ok := cache[id]; ok {
		return name, nil
	}
	a, err := p.dir.Agent(ctx, id)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		cache[id] = ""
	case err != nil:
		return "", fmt.Errorf("resolving agent: %w", err)
	default:
		cache[id] = a.Name
	}
	return cache[id], nil
}

func (p *Projector) propertyCode(ctx context.Context, cache map[int64]string, id int64) (string, error) {
	if code, ok := cache[id]; ok {
		return code, nil
	}
	prop, err := p.dir.Property(ctx, id)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		cache[id] = ""
	case err != nil:
		return "", fmt.Errorf("resolving property: %w", err)
	default:
		cache[id] = prop.Code
	}
	return cache[id], nil
}

func title(code, client string) string {
	switch {
	case code == "":
		return client
	case client == "":
		return code
	default:
		return code + " - " + client
	}
}
