package visit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/evcraddock/visit-scheduler/internal/db/dbtest"
)

var day = time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)

func newVisit(id string, agentID int64, hour, minutes int, status Status) *Visit {
	created := day.Add(-24 * time.Hour)
	return &Visit{
		ID:              id,
		PropertyID:      1,
		AgentID:         agentID,
		ClientName:      "Dana Client",
		ClientPhone:     "555-0100",
		StartAt:         day.Add(time.Duration(hour) * time.Hour),
		DurationMinutes: minutes,
		Status:          status,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func insert(t *testing.T, repo *Repository, v *Visit) {
	t.Helper()
	err := repo.InTx(context.Background(), v.AgentID, func(tx Tx) error {
		if err := tx.Insert(context.Background(), v); err != nil {
			return err
		}
		return tx.Record(context.Background(), v.ID, EventCreate, "", v.Status, nil, v.CreatedAt)
	})
	if err != nil {
		t.Fatalf("insert %s: %v", v.ID, err)
	}
}

func TestInsertAndGet(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	want := newVisit("v1", 7, 10, 60, Pending)
	insert(t, repo, want)

	got, err := repo.Get(context.Background(), "v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AgentID != 7 || got.PropertyID != 1 {
		t.Errorf("agent/property = %d/%d, want 7/1", got.AgentID, got.PropertyID)
	}
	if !got.StartAt.Equal(want.StartAt) {
		t.Errorf("start_at = %v, want %v", got.StartAt, want.StartAt)
	}
	if got.StartAt.Location() != time.UTC {
		t.Errorf("start_at location = %v, want UTC", got.StartAt.Location())
	}
	if got.DurationMinutes != 60 || got.Status != Pending {
		t.Errorf("duration/status = %d/%s", got.DurationMinutes, got.Status)
	}
	if got.ClientPhone != "555-0100" {
		t.Errorf("client_phone = %q", got.ClientPhone)
	}
}

func TestGetNotFound(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdate(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	v := newVisit("v1", 7, 10, 60, Pending)
	insert(t, repo, v)

	err := repo.InTx(ctx, 7, func(tx Tx) error {
		cur, err := tx.Get(ctx, "v1")
		if err != nil {
			return err
		}
		if err := cur.Cancel("no show", day); err != nil {
			return err
		}
		return tx.Update(ctx, cur)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.Get(ctx, "v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != Cancelled || got.CancellationReason != "no show" {
		t.Errorf("status/reason = %s/%q", got.Status, got.CancellationReason)
	}
}

func TestUpdateMissing(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	err := repo.InTx(ctx, 7, func(tx Tx) error {
		return tx.Update(ctx, newVisit("ghost", 7, 10, 60, Pending))
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestInTxRollsBack(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.InTx(ctx, 7, func(tx Tx) error {
		if err := tx.Insert(ctx, newVisit("v1", 7, 10, 60, Pending)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}

	if _, err := repo.Get(ctx, "v1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("visit persisted after rollback: %v", err)
	}
}

func TestList(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	insert(t, repo, newVisit("a", 7, 9, 60, Pending))
	insert(t, repo, newVisit("b", 7, 13, 30, Confirmed))
	insert(t, repo, newVisit("c", 8, 10, 120, Cancelled))
	insert(t, repo, newVisit("d", 8, 30, 60, Pending)) // next day

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"everything", Filter{}, []string{"a", "c", "b", "d"}},
		{"one day", Filter{From: day, To: day.Add(24 * time.Hour)}, []string{"a", "c", "b"}},
		{"agent filter", Filter{AgentID: 7}, []string{"a", "b"}},
		{"overlapping range start", Filter{From: day.Add(9*time.Hour + 30*time.Minute), To: day.Add(11 * time.Hour)}, []string{"a", "c"}},
		{"touching range excluded", Filter{From: day.Add(10 * time.Hour), To: day.Add(10 * time.Hour).Add(time.Minute)}, []string{"c"}},
		{"open ended from", Filter{From: day.Add(24 * time.Hour)}, []string{"d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d visits, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("visit %d = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestListActive(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	insert(t, repo, newVisit("p", 7, 9, 60, Pending))
	insert(t, repo, newVisit("c", 7, 11, 60, Cancelled))
	insert(t, repo, newVisit("d", 7, 13, 60, Done))
	insert(t, repo, newVisit("f", 6, 9, 60, Confirmed))

	got, err := repo.ListActive(context.Background())
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	ids := make([]string, len(got))
	for i, v := range got {
		ids[i] = v.ID
	}
	want := []string{"f", "p", "d"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("got %v, want %v", ids, want)
			break
		}
	}
}

func TestHistory(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	insert(t, repo, newVisit("v1", 7, 10, 60, Pending))

	err := repo.InTx(ctx, 7, func(tx Tx) error {
		return tx.Record(ctx, "v1", EventReschedule, Pending, Pending,
			map[string]string{"previous_start": "2026-11-02T10:00:00Z"}, day.Add(time.Hour))
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	recs, err := repo.History(ctx, "v1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Event != EventCreate || recs[0].ToStatus != Pending {
		t.Errorf("first record = %s -> %s", recs[0].Event, recs[0].ToStatus)
	}
	if string(recs[0].Details) != "{}" {
		t.Errorf("empty details = %q, want {}", recs[0].Details)
	}

	var details map[string]string
	if err := json.Unmarshal(recs[1].Details, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details["previous_start"] != "2026-11-02T10:00:00Z" {
		t.Errorf("details = %v", details)
	}

	out, err := json.Marshal(recs[1])
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if _, ok := decoded["details"].(map[string]any); !ok {
		t.Errorf("details not embedded as object: %s", out)
	}
}

func TestVisitJSONIncludesEnd(t *testing.T) {
	v := newVisit("v1", 7, 10, 90, Pending)
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["end_at"] != "2026-11-02T11:30:00Z" {
		t.Errorf("end_at = %v", decoded["end_at"])
	}
	if decoded["client_name"] != "Dana Client" {
		t.Errorf("client_name = %v", decoded["client_name"])
	}
	if _, ok := decoded["cancellation_reason"]; ok {
		t.Error("empty cancellation_reason should be omitted")
	}
}

func TestRepositoryPostgres(t *testing.T) {
	d := dbtest.OpenPostgres(t)
	repo := NewRepository(d)
	ctx := context.Background()

	insert(t, repo, newVisit("pg1", 7, 10, 60, Pending))
	insert(t, repo, newVisit("pg2", 7, 12, 30, Confirmed))

	got, err := repo.Get(ctx, "pg1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.StartAt.Equal(day.Add(10 * time.Hour)) {
		t.Errorf("start_at = %v", got.StartAt)
	}

	visits, err := repo.List(ctx, Filter{From: day.Add(11 * time.Hour), To: day.Add(13 * time.Hour), AgentID: 7})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visits) != 1 || visits[0].ID != "pg2" {
		t.Errorf("list = %v, want [pg2]", visits)
	}

	recs, err := repo.History(ctx, "pg2")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("got %d records, want 1", len(recs))
	}

	assertAdvisoryLockReleased(t, d)
}

// assertAdvisoryLockReleased checks that no advisory locks outlive their
// transaction.
func assertAdvisoryLockReleased(t *testing.T, d *sqlx.DB) {
	t.Helper()
	var n int
	if err := d.Get(&n, "SELECT count(*) FROM pg_locks WHERE locktype = 'advisory'"); err != nil {
		t.Fatalf("query pg_locks: %v", err)
	}
	if n != 0 {
		t.Errorf("%d advisory locks still held", n)
	}
}
