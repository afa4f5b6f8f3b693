package httpx

import (
	"errors"
	"net/http"

	"github.com/brokerdesk/brokerdesk/internal/shared"
)

// denial matches authorization errors without importing the engine; the
// engine's error type carries the marker method.
type denial interface {
	error
	AuthorizationDenial()
}

// Sentinel errors for the domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to RFC7807 responses and notes the
// failure against the ambient request state so the request audit wrapper
// grades the terminal entry from the real cause.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	shared.NoteFailure(r.Context(), err)

	var denied denial
	switch {
	case errors.As(err, &denied):
		// A denial never leaks permission names; the typed error already
		// carries only the action and a resource description.
		Problem(w, http.StatusForbidden, "Access Denied", denied.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "")
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, ErrUnauthorized), errors.Is(err, shared.ErrInvalidToken),
		errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
