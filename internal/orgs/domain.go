package orgs

import "time"

// Kind distinguishes the two sides of the brokerage marketplace.
type Kind string

const (
	// KindAgency originates applications on behalf of insureds.
	KindAgency Kind = "agency"
	// KindCarrier is invited to quote on applications.
	KindCarrier Kind = "carrier"
)

// Organization is a tenant: an agency or a carrier.
type Organization struct {
	ID        int64
	Name      string
	Kind      Kind
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
