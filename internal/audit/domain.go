package audit

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/brokerdesk/brokerdesk/internal/authz"
	"github.com/brokerdesk/brokerdesk/internal/shared"
)

// Category classifies what kind of activity an entry records.
type Category string

const (
	CategoryAuthentication   Category = "authentication"
	CategoryAuthorization    Category = "authorization"
	CategoryDataAccess       Category = "data_access"
	CategoryDataModification Category = "data_modification"
	CategorySecurity         Category = "security"
	CategorySystemAccess     Category = "system_access"
)

// Severity grades an entry for review and alerting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Entry is one immutable audit record. Once appended it is never mutated or
// deleted through this core.
type Entry struct {
	ID           uuid.UUID
	PrincipalID  *int64
	OrgID        *int64
	Action       string
	Category     Category
	Severity     Severity
	ResourceType string
	ResourceID   string
	IP           string
	UserAgent    string
	Details      map[string]any
	CreatedAt    time.Time
}

// CategoryForAction infers the category of a request start entry from the
// handler action name.
func CategoryForAction(action string) Category {
	switch strings.ToLower(action) {
	case "index", "show", "list", "view":
		return CategoryDataAccess
	case "new", "create", "edit", "update", "destroy", "delete":
		return CategoryDataModification
	case "sign_in", "sign_out", "login", "logout":
		return CategoryAuthentication
	default:
		return CategorySystemAccess
	}
}

// Duration thresholds for terminal severity on the success path. Behavioral
// contract, not tunables.
const (
	slowRequest     = time.Second
	verySlowRequest = 5 * time.Second
)

// SeverityForDuration grades a successful request by how long it took.
func SeverityForDuration(d time.Duration) Severity {
	switch {
	case d > verySlowRequest:
		return SeverityError
	case d >= slowRequest:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// SeverityForError grades a failed request: not-found is a warning, typed
// security failures are errors, recognized errors are errors, anything
// unclassified is critical. Failing safe means more visibility, not less.
func SeverityForError(err error) Severity {
	switch {
	case err == nil:
		return SeverityInfo
	case errors.Is(err, shared.ErrNotFound):
		return SeverityWarning
	case isSecurityError(err):
		return SeverityError
	case errors.Is(err, shared.ErrInvalidCredentials):
		return SeverityError
	default:
		return SeverityCritical
	}
}

// ShouldAlert reports whether the failure belongs to the security denylist:
// authorization denials, invalid tokens, raw storage statement errors, or
// anything self-describing as unauthorized/forbidden.
func ShouldAlert(err error) bool {
	if err == nil {
		return false
	}
	if isSecurityError(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden")
}

func isSecurityError(err error) bool {
	var denial *authz.Error
	if errors.As(err, &denial) {
		return true
	}
	if errors.Is(err, shared.ErrInvalidToken) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
