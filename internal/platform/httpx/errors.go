package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the domain layer. Modules either return these directly
// or wrap them so RespondError can pick the right status and code.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrInvalidRole  = errors.New("referenced party has the wrong role")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflicting state")
	ErrTransient    = errors.New("temporarily unavailable")
	ErrConsistency  = errors.New("internal consistency violation")
)

// StatusError lets typed domain errors choose their own response. Detail is
// the caller-safe message; internal causes are never sent verbatim.
type StatusError interface {
	error
	HTTPStatus() int
	ErrorCode() string
}

// RespondError maps domain errors to RFC7807 responses.
func RespondError(w http.ResponseWriter, err error) {
	var se StatusError
	if errors.As(err, &se) {
		Problem(w, se.HTTPStatus(), http.StatusText(se.HTTPStatus()), se.ErrorCode(), se.Error())
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "not_found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", "duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", "validation_failed", err.Error())
	case errors.Is(err, ErrInvalidRole):
		Problem(w, http.StatusBadRequest, "Invalid Role", "invalid_role", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "permission_denied", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "unauthorized", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", "conflict", err.Error())
	case errors.Is(err, ErrTransient):
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "transient", "temporarily unavailable, retry later")
	case errors.Is(err, ErrConsistency):
		Problem(w, http.StatusInternalServerError, "Internal Error", "consistency_violation", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "internal", "")
	}
}
