package applications

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the product line an application belongs to.
type Kind string

const (
	KindFire      Kind = "fire"
	KindLiability Kind = "liability"
	KindGeneral   Kind = "general"
)

// Status is the workflow state of an application.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// ValidKind reports whether k names a known product line.
func ValidKind(k Kind) bool {
	switch k {
	case KindFire, KindLiability, KindGeneral:
		return true
	}
	return false
}

// Application is an insurance application owned by a broker, scoped to the
// submitting agency, and optionally shared with invited carriers.
type Application struct {
	ID              uuid.UUID
	Number          string
	Kind            Kind
	Status          Status
	ApplicantName   string
	PropertyAddress string
	CoverageAmount  int64
	Premium         int64
	BrokerID        int64
	AgencyOrgID     int64
	CarrierOrgIDs   []int64
	Notes           string
	SubmittedAt     *time.Time
	DecidedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ResourceType implements the policy resource contract.
func (a Application) ResourceType() string { return "application" }

// ResourceID implements the policy resource contract.
func (a Application) ResourceID() string { return a.ID.String() }

// OwnerID reports the owning broker for ownership checks.
func (a Application) OwnerID() int64 { return a.BrokerID }

// OrganizationID reports the agency the application belongs to.
func (a Application) OrganizationID() (int64, bool) { return a.AgencyOrgID, a.AgencyOrgID != 0 }

// CollaboratorOrgIDs lists carriers invited to quote.
func (a Application) CollaboratorOrgIDs() []int64 { return a.CarrierOrgIDs }

// AuditFields exposes the tracked attributes for change diffing.
func (a Application) AuditFields() map[string]any {
	return map[string]any{
		"number":           a.Number,
		"kind":             string(a.Kind),
		"status":           string(a.Status),
		"applicant_name":   a.ApplicantName,
		"property_address": a.PropertyAddress,
		"coverage_amount":  a.CoverageAmount,
		"premium":          a.Premium,
		"broker_id":        a.BrokerID,
		"agency_org_id":    a.AgencyOrgID,
		"notes":            a.Notes,
	}
}

// CanTransition reports whether the workflow permits moving to next.
func (a Application) CanTransition(next Status) bool {
	switch a.Status {
	case StatusDraft:
		return next == StatusSubmitted
	case StatusSubmitted:
		return next == StatusApproved || next == StatusRejected
	}
	return false
}
