// Package web provides the HTTP API for the visit scheduler.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/evcraddock/visit-scheduler/internal/auth"
	"github.com/evcraddock/visit-scheduler/internal/calendar"
	"github.com/evcraddock/visit-scheduler/internal/directory"
	"github.com/evcraddock/visit-scheduler/internal/logging"
	"github.com/evcraddock/visit-scheduler/internal/schedule"
	"github.com/evcraddock/visit-scheduler/internal/visit"
)

// Config controls the HTTP boundary.
type Config struct {
	RequireAPIKey  bool
	RequestTimeout time.Duration // 0 disables the per-request deadline
}

// Server is the API HTTP server.
type Server struct {
	svc      *schedule.Service
	calendar *calendar.Projector
	dir      *directory.Store
	apiKeys  *auth.APIKeyStore
	mux      *http.ServeMux
	handler  http.Handler
}

// NewServer creates a server for svc backed by the database d.
func NewServer(d *sqlx.DB, svc *schedule.Service, cfg Config) *Server {
	dir := directory.NewStore(d)
	s := &Server{
		svc:      svc,
		calendar: calendar.NewProjector(visit.NewRepository(d), dir),
		dir:      dir,
		apiKeys:  auth.NewAPIKeyStore(d),
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/visits", s.handleVisits)
	s.mux.HandleFunc("/visits/", s.handleVisits)
	s.mux.HandleFunc("/agents", s.handleAgents)
	s.mux.HandleFunc("/agents/", s.handleAgents)
	s.mux.HandleFunc("/properties", s.handleProperties)
	s.mux.HandleFunc("/properties/", s.handleProperties)

	var h http.Handler = withTimeout(cfg.RequestTimeout, s.mux)
	if cfg.RequireAPIKey {
		h = auth.RequireAPIKey(s.apiKeys, h)
	}
	s.handler = logging.RequestLogger(h)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	apiJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func withTimeout(d time.Duration, next http.Handler) http.Handler {
	if d <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
