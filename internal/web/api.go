package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/evcraddock/visit-scheduler/internal/logging"
	"github.com/evcraddock/visit-scheduler/internal/schedule"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error       string        `json:"error"`
	Kind        schedule.Kind `json:"kind,omitempty"`
	ConflictIDs []string      `json:"conflicting_visit_ids,omitempty"`
}

// apiError writes a JSON error response.
func apiError(w http.ResponseWriter, msg string, code int) {
	apiJSON(w, errorBody{Error: msg}, code)
}

// apiJSON writes a JSON response with the given status code.
func apiJSON(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// serviceError maps a scheduling error to its status code.
func serviceError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error(), Kind: schedule.KindOf(err)}

	var code int
	switch body.Kind {
	case schedule.KindValidation:
		code = http.StatusBadRequest
	case schedule.KindNotFound:
		code = http.StatusNotFound
	case schedule.KindConflict:
		code = http.StatusConflict
		var ce *schedule.ConflictError
		if errors.As(err, &ce) {
			body.ConflictIDs = ce.VisitIDs
		}
	case schedule.KindInvalidTransition:
		code = http.StatusUnprocessableEntity
	default:
		code = http.StatusInternalServerError
		slog.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", logging.RequestID(r.Context()),
		)
	}
	apiJSON(w, body, code)
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
// An empty body is accepted when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		apiError(w, fmt.Sprintf("invalid JSON body: %v", err), http.StatusBadRequest)
		return false
	}
	if dec.More() {
		apiError(w, "invalid JSON body: trailing data", http.StatusBadRequest)
		return false
	}
	return true
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseInstant accepts RFC 3339 timestamps or YYYY-MM-DD dates, the latter
// meaning local midnight in loc.
func parseInstant(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}
