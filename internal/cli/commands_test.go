package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evcraddock/visit-scheduler/internal/auth"
	"github.com/evcraddock/visit-scheduler/internal/client"
	"github.com/evcraddock/visit-scheduler/internal/db/dbtest"
	"github.com/evcraddock/visit-scheduler/internal/directory"
	"github.com/evcraddock/visit-scheduler/internal/schedule"
	"github.com/evcraddock/visit-scheduler/internal/visit"
	"github.com/evcraddock/visit-scheduler/internal/web"
)

var testClock = time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	url   string
	token string
}

// startTestServer runs the API against a fresh database and points the CLI
// at it through the environment.
func startTestServer(t *testing.T) *testEnv {
	t.Helper()
	d := dbtest.Open(t)
	ctx := context.Background()

	svc := schedule.New(visit.NewRepository(d), directory.NewStore(d), schedule.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return testClock },
	})
	t.Cleanup(svc.Close)
	if err := svc.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	raw, _, err := auth.NewAPIKeyStore(d).Create(ctx, "cli", "ops@example.com")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}

	srv := httptest.NewServer(web.NewServer(d, svc, web.Config{RequireAPIKey: true, RequestTimeout: 5 * time.Second}))
	t.Cleanup(srv.Close)

	t.Setenv("HOME", t.TempDir())
	t.Setenv("VS_SERVER_URL", srv.URL)
	t.Setenv("VS_API_KEY", raw)
	t.Setenv("VS_TIMEZONE", "UTC")

	return &testEnv{url: srv.URL, token: raw}
}

// runJSON executes a command with --format json and decodes its output.
func runJSON[T any](t *testing.T, args ...string) T {
	t.Helper()
	out, err := executeCommand(append(args, "--format", "json")...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("%s: decode %q: %v", strings.Join(args, " "), out, err)
	}
	return v
}

// seed adds one agent and one property and returns their IDs as strings.
func seed(t *testing.T) (agent, property string) {
	t.Helper()
	a := runJSON[directory.Agent](t, "agents", "add", "Alice", "Agent", "--email", "alice@example.com")
	p := runJSON[directory.Property](t, "properties", "add", "MLS-1", "1", "Main", "St")
	if a.Name != "Alice Agent" || p.Address != "1 Main St" {
		t.Fatalf("seeded %+v %+v", a, p)
	}
	return fmt.Sprint(a.ID), fmt.Sprint(p.ID)
}

func book(t *testing.T, agent, property, at string, extra ...string) visit.Visit {
	t.Helper()
	args := append([]string{"book", "--agent", agent, "--property", property, "--client", "Dana", "--at", at}, extra...)
	return runJSON[visit.Visit](t, args...)
}

func TestBookAndLifecycle(t *testing.T) {
	startTestServer(t)
	agent, property := seed(t)

	v := book(t, agent, property, "2026-11-02 10:00", "--duration", "90", "--phone", "555-0100")
	if v.Status != visit.Pending || v.DurationMinutes != 90 || !v.StartAt.Equal(time.Date(2026, 11, 2, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("booked = %+v", v)
	}

	out, err := executeCommand("show", v.ID)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "Mon 2026-11-02 10:00-11:30 UTC") || !strings.Contains(out, "555-0100") {
		t.Errorf("show output = %q", out)
	}

	if got := runJSON[visit.Visit](t, "confirm", v.ID); got.Status != visit.Confirmed {
		t.Errorf("confirm status = %s", got.Status)
	}
	if got := runJSON[visit.Visit](t, "reschedule", v.ID, "--shift", "30m"); !got.StartAt.Equal(v.StartAt.Add(30 * time.Minute)) {
		t.Errorf("shifted start = %v", got.StartAt)
	}
	if got := runJSON[visit.Visit](t, "update", v.ID, "--notes", "bring keys"); got.Notes != "bring keys" || got.ClientPhone != "555-0100" {
		t.Errorf("updated = %+v", got)
	}
	if got := runJSON[visit.Visit](t, "done", v.ID, "--notes", "went well"); got.Status != visit.Done {
		t.Errorf("done status = %s", got.Status)
	}

	if _, err := executeCommand("cancel", v.ID); err == nil || !strings.Contains(err.Error(), "done") {
		t.Errorf("cancel done visit err = %v", err)
	}

	recs := runJSON[[]visit.Record](t, "history", v.ID)
	if len(recs) != 5 {
		t.Errorf("history has %d records, want 5", len(recs))
	}
}

func TestBookConflictNeedsAck(t *testing.T) {
	startTestServer(t)
	agent, property := seed(t)

	first := book(t, agent, property, "2026-11-02T10:00:00Z")

	_, err := executeCommand("book", "--agent", agent, "--property", property, "--client", "Eve", "--at", "2026-11-02 10:30")
	if err == nil {
		t.Fatal("expected conflict")
	}
	if !strings.Contains(err.Error(), first.ID) || !strings.Contains(err.Error(), "--ack") {
		t.Errorf("conflict error = %v", err)
	}

	book(t, agent, property, "2026-11-02 10:30", "--ack")

	check := runJSON[schedule.ConflictCheck](t, "check", "--agent", agent, "--at", "2026-11-02 10:15", "--duration", "30")
	if !check.HasConflict || len(check.VisitIDs) != 2 {
		t.Errorf("check = %+v", check)
	}
	out, err := executeCommand("check", "--agent", agent, "--at", "2026-11-02 15:00")
	if err != nil || !strings.Contains(out, "No conflict.") {
		t.Errorf("free check = %q, %v", out, err)
	}
}

func TestBulkCommand(t *testing.T) {
	startTestServer(t)
	agent, property := seed(t)

	a := book(t, agent, property, "2026-11-02 09:00")
	b := book(t, agent, property, "2026-11-02 11:00")
	if _, err := executeCommand("cancel", b.ID, "--reason", "client sick"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	resp := runJSON[client.BulkResponse](t, "bulk", "confirm", a.ID, b.ID, "missing")
	if resp.Succeeded != 1 || resp.Failed != 2 {
		t.Fatalf("bulk = %+v", resp)
	}
	if resp.Results[1].ErrorKind != schedule.KindInvalidTransition || resp.Results[2].ErrorKind != schedule.KindNotFound {
		t.Errorf("results = %+v", resp.Results)
	}

	out, err := executeCommand("bulk", "reschedule", a.ID, "--to", "2026-11-03 09:00")
	if err != nil {
		t.Fatalf("bulk reschedule: %v", err)
	}
	if !strings.Contains(out, "Succeeded: 1  Failed: 0") {
		t.Errorf("output = %q", out)
	}

	for _, args := range [][]string{
		{"bulk", "archive", a.ID},
		{"bulk", "reschedule", a.ID},
		{"bulk", "reschedule", a.ID, "--shift", "90s"},
	} {
		if _, err := executeCommand(args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestCalendarAndSlots(t *testing.T) {
	startTestServer(t)
	agent, property := seed(t)
	book(t, agent, property, "2026-11-02 08:00", "--duration", "480")
	book(t, agent, property, "2026-11-04 09:00")

	out, err := executeCommand("calendar", "--view", "week", "--date", "2026-11-04", "--agent", agent)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	for _, want := range []string{"2026-11-02\n", "2026-11-04\n", "08:00-16:00", "MLS-1 - Dana", "Total: 2 visits"} {
		if !strings.Contains(out, want) {
			t.Errorf("calendar output missing %q:\n%s", want, out)
		}
	}

	resp := runJSON[client.CalendarResponse](t, "calendar", "--from", "2026-11-03", "--to", "2026-11-05")
	if len(resp.Entries) != 1 {
		t.Errorf("range entries = %+v", resp.Entries)
	}

	slots := runJSON[client.SlotsResponse](t, "slots", "--agent", agent, "--date", "2026-11-02", "--duration", "120")
	if len(slots.Slots) != 3 || !slots.Slots[0].Equal(time.Date(2026, 11, 2, 16, 0, 0, 0, time.UTC)) {
		t.Errorf("slots = %v", slots.Slots)
	}
}

func TestICSCommand(t *testing.T) {
	startTestServer(t)
	agent, property := seed(t)
	v := book(t, agent, property, "2026-11-02 10:00")

	dir := t.TempDir()
	path := filepath.Join(dir, "out.ics")
	if _, err := executeCommand("ics", v.ID, "-o", path); err != nil {
		t.Fatalf("ics: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "UID:"+v.ID+"@vsched\r\n") {
		t.Errorf("ics = %q", data)
	}

	out, err := executeCommand("ics", v.ID, "-o", "-")
	if err != nil || !strings.HasPrefix(out, "BEGIN:VCALENDAR\r\n") {
		t.Errorf("stdout ics = %q, %v", out, err)
	}
}

func TestAgentDeactivate(t *testing.T) {
	startTestServer(t)
	agent, property := seed(t)

	if a := runJSON[directory.Agent](t, "agents", "deactivate", agent); a.Active {
		t.Error("agent still active")
	}
	if _, err := executeCommand("book", "--agent", agent, "--property", property, "--client", "x", "--at", "2026-11-02 10:00"); err == nil {
		t.Error("booked an inactive agent")
	}
	if a := runJSON[directory.Agent](t, "agents", "activate", agent); !a.Active {
		t.Error("agent not reactivated")
	}

	out, err := executeCommand("agents", "list")
	if err != nil || !strings.Contains(out, "alice@example.com") {
		t.Errorf("list = %q, %v", out, err)
	}
}

func TestKeysCommands(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "keys.db")

	created := runJSON[struct {
		Key    string      `json:"key"`
		APIKey auth.APIKey `json:"api_key"`
	}](t, "keys", "create", "laptop", "--owner", "dana@example.com", "--db", path)
	if !strings.HasPrefix(created.Key, "vs_") || created.APIKey.Owner != "dana@example.com" {
		t.Fatalf("created = %+v", created)
	}

	out, err := executeCommand("keys", "list", "--db", path)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "laptop") || strings.Contains(out, created.Key) {
		t.Errorf("list output = %q", out)
	}

	id := fmt.Sprint(created.APIKey.ID)
	if _, err := executeCommand("keys", "revoke", id, "--db", path); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := executeCommand("keys", "revoke", id, "--db", path); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("second revoke err = %v", err)
	}
}

func TestUnauthenticatedHint(t *testing.T) {
	startTestServer(t)
	t.Setenv("VS_API_KEY", "")

	_, err := executeCommand("agents", "list")
	if err == nil || !strings.Contains(err.Error(), "vsched login") {
		t.Errorf("err = %v", err)
	}
}
