// Package directory stores the agents and properties that visits refer to.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when an agent or property does not exist.
	ErrNotFound = errors.New("directory: not found")
	// ErrInvalid is returned for missing required fields.
	ErrInvalid = errors.New("directory: invalid input")
	// ErrDuplicate is returned when a property code is already taken.
	ErrDuplicate = errors.New("directory: already exists")
)

// Agent is a sales agent that can be assigned visits.
type Agent struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Property is a listing that can be visited.
type Property struct {
	ID        int64     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Address   string    `db:"address" json:"address"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Store provides access to agents and properties.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a directory store.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// AddAgent creates an active agent.
func (s *Store) AddAgent(ctx context.Context, name, email string) (*Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("agent name is required: %w", ErrInvalid)
	}

	var id int64
	err := s.db.GetContext(ctx, &id, s.db.Rebind(
		"INSERT INTO agents (name, email, active) VALUES (?, ?, ?) RETURNING id"),
		name, strings.TrimSpace(email), true,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting agent: %w", err)
	}

	return s.Agent(ctx, id)
}

// Agent returns an agent by ID.
func (s *Store) Agent(ctx context.Context, id int64) (*Agent, error) {
	var a Agent
	err := s.db.GetContext(ctx, &a, s.db.Rebind(
		"SELECT id, name, email, active, created_at FROM agents WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting agent: %w", err)
	}
	return &a, nil
}

// ListAgents returns all agents ordered by name.
func (s *Store) ListAgents(ctx context.Context) ([]*Agent, error) {
	var agents []*Agent
	if err := s.db.SelectContext(ctx, &agents,
		"SELECT id, name, email, active, created_at FROM agents ORDER BY name, id"); err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	return agents, nil
}

// SetAgentActive activates or deactivates an agent. Inactive agents keep
// their existing visits but cannot be booked.
func (s *Store) SetAgentActive(ctx context.Context, id int64, active bool) (*Agent, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE agents SET active = ? WHERE id = ?"), active, id)
	if err != nil {
		return nil, fmt.Errorf("updating agent: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("agent %d: %w", id, ErrNotFound)
	}

	return s.Agent(ctx, id)
}

// AddProperty creates a property. Codes are unique.
func (s *Store) AddProperty(ctx context.Context, code, address string) (*Property, error) {
	code = strings.TrimSpace(code)
	address = strings.TrimSpace(address)
	if code == "" {
		return nil, fmt.Errorf("property code is required: %w", ErrInvalid)
	}
	if address == "" {
		return nil, fmt.Errorf("property address is required: %w", ErrInvalid)
	}

	var id int64
	err := s.db.GetContext(ctx, &id, s.db.Rebind(
		"INSERT INTO properties (code, address) VALUES (?, ?) RETURNING id"),
		code, address,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("property code %q: %w", code, ErrDuplicate)
		}
		return nil, fmt.Errorf("inserting property: %w", err)
	}

	return s.Property(ctx, id)
}

// Property returns a property by ID.
func (s *Store) Property(ctx context.Context, id int64) (*Property, error) {
	var p Property
	err := s.db.GetContext(ctx, &p, s.db.Rebind(
		"SELECT id, code, address, created_at FROM properties WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("property %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting property: %w", err)
	}
	return &p, nil
}

// ListProperties returns all properties ordered by code.
func (s *Store) ListProperties(ctx context.Context) ([]*Property, error) {
	var props []*Property
	if err := s.db.SelectContext(ctx, &props,
		"SELECT id, code, address, created_at FROM properties ORDER BY code"); err != nil {
		return nil, fmt.Errorf("listing properties: %w", err)
	}
	return props, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
