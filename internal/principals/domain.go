package principals

import (
	"strconv"
	"time"
)

// Account is the management view of a principal record.
type Account struct {
	ID           int64
	Email        string
	OrgID        *int64
	IsActive     bool
	RoleNames    []string
	CreatedAt    time.Time
	LastSignInAt *time.Time
}

// ResourceType implements audit.Auditable.
func (a Account) ResourceType() string { return "principal" }

// ResourceID implements audit.Auditable.
func (a Account) ResourceID() string { return strconv.FormatInt(a.ID, 10) }

// AuditFields implements audit.Auditable.
func (a Account) AuditFields() map[string]any {
	fields := map[string]any{
		"email":     a.Email,
		"is_active": a.IsActive,
		"roles":     a.RoleNames,
	}
	if a.OrgID != nil {
		fields["org_id"] = *a.OrgID
	}
	return fields
}
