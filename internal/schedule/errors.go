package schedule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evcraddock/visit-scheduler/internal/visit"
)

// ErrNotFound is returned for an unknown visit id.
var ErrNotFound = visit.ErrNotFound

// ValidationError reports a request the caller must fix before retrying.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports that a booking overlaps active visits of the same
// agent.
type ConflictError struct {
	VisitIDs []string
}

func (e *ConflictError) Error() string {
	return "conflicts with visit(s) " + strings.Join(e.VisitIDs, ", ")
}

// Kind classifies an error for callers that report outcomes rather than
// errors, such as bulk results and HTTP status codes.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindInternal          Kind = "internal"
)

// KindOf returns the kind of err. Nil has no kind.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		ce *ConflictError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &ce):
		return KindConflict
	case errors.Is(err, visit.ErrInvalidTransition):
		return KindInvalidTransition
	default:
		return KindInternal
	}
}
