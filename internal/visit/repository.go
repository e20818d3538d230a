package visit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/evcraddock/visit-scheduler/internal/db"
)

// ErrNotFound is returned when a visit id does not exist.
var ErrNotFound = errors.New("visit: not found")

const visitColumns = `id, property_id, agent_id, client_name, client_phone, client_email,
	start_at, duration_minutes, status, notes, cancellation_reason, created_at, updated_at`

// Filter narrows List to visits overlapping [From, To). Zero times leave
// that side of the range open.
type Filter struct {
	From    time.Time
	To      time.Time
	AgentID int64
}

// Repository provides persistence for visits and their audit history.
type Repository struct {
	db      *sqlx.DB
	dialect db.Dialect
}

// NewRepository creates a visit repository.
func NewRepository(d *sqlx.DB) *Repository {
	return &Repository{db: d, dialect: db.DialectOf(d)}
}

// Get returns a visit by ID.
func (r *Repository) Get(ctx context.Context, id string) (*Visit, error) {
	return getVisit(ctx, r.db, id)
}

// List returns visits matching the filter, ordered by start time.
func (r *Repository) List(ctx context.Context, f Filter) ([]*Visit, error) {
	q := "SELECT " + visitColumns + " FROM visits WHERE 1 = 1"
	var args []any
	if !f.To.IsZero() {
		q += " AND start_at < ?"
		args = append(args, f.To.UTC())
	}
	if !f.From.IsZero() {
		q += " AND end_at > ?"
		args = append(args, f.From.UTC())
	}
	if f.AgentID != 0 {
		q += " AND agent_id = ?"
		args = append(args, f.AgentID)
	}
	q += " ORDER BY start_at, id"

	return r.selectVisits(ctx, q, args...)
}

// ListActive returns every visit that still holds its time slot, that is
// every visit not cancelled.
func (r *Repository) ListActive(ctx context.Context) ([]*Visit, error) {
	return r.selectVisits(ctx,
		"SELECT "+visitColumns+" FROM visits WHERE status <> ? ORDER BY agent_id, start_at",
		Cancelled,
	)
}

func (r *Repository) selectVisits(ctx context.Context, q string, args ...any) ([]*Visit, error) {
	var visits []*Visit
	if err := r.db.SelectContext(ctx, &visits, r.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("listing visits: %w", err)
	}
	for _, v := range visits {
		v.normalize()
	}
	return visits, nil
}

// History returns the audit records of a visit, oldest first.
func (r *Repository) History(ctx context.Context, visitID string) ([]*Record, error) {
	var recs []*Record
	err := r.db.SelectContext(ctx, &recs, r.db.Rebind(
		"SELECT id, visit_id, event, from_status, to_status, details, created_at FROM visit_events WHERE visit_id = ? ORDER BY id",
	), visitID)
	if err != nil {
		return nil, fmt.Errorf("listing visit history: %w", err)
	}
	for _, rec := range recs {
		rec.CreatedAt = rec.CreatedAt.UTC()
	}
	return recs, nil
}

// Tx is the set of writes available inside InTx.
type Tx interface {
	Get(ctx context.Context, id string) (*Visit, error)
	Insert(ctx context.Context, v *Visit) error
	Update(ctx context.Context, v *Visit) error
	Record(ctx context.Context, visitID string, event Event, from, to Status, details any, at time.Time) error
}

// InTx runs fn in a transaction that serializes writers for agentID.
// SQLite takes its write lock at BEGIN; PostgreSQL takes a transaction-scoped
// advisory lock keyed by the agent. The transaction commits only if fn
// returns nil.
func (r *Repository) InTx(ctx context.Context, agentID int64, fn func(Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
	}()

	if r.dialect == db.Postgres {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", agentID); err != nil {
			return fmt.Errorf("locking agent %d: %w", agentID, err)
		}
	}

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) Get(ctx context.Context, id string) (*Visit, error) {
	return getVisit(ctx, t.tx, id)
}

func (t *sqlTx) Insert(ctx context.Context, v *Visit) error {
	_, err := t.tx.ExecContext(ctx, t.tx.Rebind(
		`INSERT INTO visits (id, property_id, agent_id, client_name, client_phone, client_email,
			start_at, end_at, duration_minutes, status, notes, cancellation_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		v.ID, v.PropertyID, v.AgentID, v.ClientName, v.ClientPhone, v.ClientEmail,
		v.StartAt.UTC(), v.EndAt().UTC(), v.DurationMinutes, v.Status, v.Notes, v.CancellationReason,
		v.CreatedAt.UTC(), v.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting visit: %w", err)
	}
	return nil
}

func (t *sqlTx) Update(ctx context.Context, v *Visit) error {
	result, err := t.tx.ExecContext(ctx, t.tx.Rebind(
		`UPDATE visits SET client_name = ?, client_phone = ?, client_email = ?,
			start_at = ?, end_at = ?, duration_minutes = ?, status = ?, notes = ?,
			cancellation_reason = ?, updated_at = ?
		 WHERE id = ?`),
		v.ClientName, v.ClientPhone, v.ClientEmail,
		v.StartAt.UTC(), v.EndAt().UTC(), v.DurationMinutes, v.Status, v.Notes,
		v.CancellationReason, v.UpdatedAt.UTC(), v.ID,
	)
	if err != nil {
		return fmt.Errorf("updating visit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("visit %s: %w", v.ID, ErrNotFound)
	}
	return nil
}

func (t *sqlTx) Record(ctx context.Context, visitID string, event Event, from, to Status, details any, at time.Time) error {
	if details == nil {
		details = struct{}{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encoding event details: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, t.tx.Rebind(
		"INSERT INTO visit_events (visit_id, event, from_status, to_status, details, created_at) VALUES (?, ?, ?, ?, ?, ?)"),
		visitID, event, from, to, string(raw), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording %s event: %w", event, err)
	}
	return nil
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(string) string
}

func getVisit(ctx context.Context, q queryer, id string) (*Visit, error) {
	var v Visit
	err := sqlx.GetContext(ctx, q, &v, q.Rebind("SELECT "+visitColumns+" FROM visits WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("visit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting visit: %w", err)
	}
	v.normalize()
	return &v, nil
}
