package roles

import "time"

// Role is the management view of a role definition.
type Role struct {
	ID          int64
	Name        string
	DisplayName string
	Level       int
	OrgID       *int64
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
