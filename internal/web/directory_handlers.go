package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/evcraddock/visit-scheduler/internal/directory"
)

// directoryError maps directory sentinels to status codes.
func directoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalid):
		apiError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, directory.ErrNotFound):
		apiError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, directory.ErrDuplicate):
		apiError(w, err.Error(), http.StatusConflict)
	default:
		serviceError(w, r, err)
	}
}

// handleAgents routes /agents requests.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/agents"), "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			s.apiListAgents(w, r)
		case http.MethodPost:
			s.apiAddAgent(w, r)
		default:
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id, err := parseID(path)
	if err != nil {
		apiError(w, "invalid agent ID", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodGet:
		a, err := s.dir.Agent(r.Context(), id)
		if err != nil {
			directoryError(w, r, err)
			return
		}
		apiJSON(w, a, http.StatusOK)
	case http.MethodPatch:
		s.apiUpdateAgent(w, r, id)
	default:
		apiError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) apiListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.dir.ListAgents(r.Context())
	if err != nil {
		directoryError(w, r, err)
		return
	}
	if agents == nil {
		agents = make([]*directory.Agent, 0)
	}
	apiJSON(w, agents, http.StatusOK)
}

func (s *Server) apiAddAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req, false) {
		return
	}

	a, err := s.dir.AddAgent(r.Context(), req.Name, req.Email)
	if err != nil {
		directoryError(w, r, err)
		return
	}
	apiJSON(w, a, http.StatusCreated)
}

// apiUpdateAgent toggles the active flag.
func (s *Server) apiUpdateAgent(w http.ResponseWriter, r *http.Request, id int64) {
	var req struct {
		Active *bool `json:"active"`
	}
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Active == nil {
		apiError(w, "active is required", http.StatusBadRequest)
		return
	}

	a, err := s.dir.SetAgentActive(r.Context(), id, *req.Active)
	if err != nil {
		directoryError(w, r, err)
		return
	}
	apiJSON(w, a, http.StatusOK)
}

// handleProperties routes /properties requests.
func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/properties"), "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			props, err := s.dir.ListProperties(r.Context())
			if err != nil {
				directoryError(w, r, err)
				return
			}
			if props == nil {
				props = make([]*directory.Property, 0)
			}
			apiJSON(w, props, http.StatusOK)
		case http.MethodPost:
			s.apiAddProperty(w, r)
		default:
			apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id, err := parseID(path)
	if err != nil {
		apiError(w, "invalid property ID", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodGet {
		apiError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, err := s.dir.Property(r.Context(), id)
	if err != nil {
		directoryError(w, r, err)
		return
	}
	apiJSON(w, p, http.StatusOK)
}

func (s *Server) apiAddProperty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code    string `json:"code"`
		Address string `json:"address"`
	}
	if !decodeJSON(w, r, &req, false) {
		return
	}

	p, err := s.dir.AddProperty(r.Context(), req.Code, req.Address)
	if err != nil {
		directoryError(w, r, err)
		return
	}
	apiJSON(w, p, http.StatusCreated)
}
