package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evcraddock/visit-scheduler/internal/logging"
)

func TestHealthIsPublic(t *testing.T) {
	e := testAPIServer(t)

	w := apiRequest(t, e.srv, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decode[map[string]string](t, w); body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestAPIRequiresKey(t *testing.T) {
	e := testAPIServer(t)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"bad token", "vs_nope", http.StatusUnauthorized},
		{"good token", e.token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := apiRequest(t, e.srv, "GET", "/agents", tt.token, nil); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAPIKeyOptional(t *testing.T) {
	e := testAPIServer(t)
	open := NewServer(e.db, e.srv.svc, Config{})

	if w := apiRequest(t, open, "GET", "/agents", "", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 without key requirement", w.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	e := testAPIServer(t)

	r := httptest.NewRequest("GET", "/health", nil)
	r.Header.Set(logging.RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, r)
	if got := w.Header().Get(logging.RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q", got)
	}

	w = apiRequest(t, e.srv, "GET", "/agents", e.token, nil)
	if w.Header().Get(logging.RequestIDHeader) == "" {
		t.Error("expected a generated request id")
	}
}

func TestWithTimeout(t *testing.T) {
	var deadline time.Time
	var ok bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	})

	withTimeout(time.Second, inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !ok || time.Until(deadline) > time.Second {
		t.Errorf("deadline = %v (set %v)", deadline, ok)
	}

	withTimeout(0, inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if ok {
		t.Error("zero timeout should not set a deadline")
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	e := testAPIServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
