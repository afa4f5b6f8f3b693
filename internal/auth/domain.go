package auth

import "time"

// Credential is the login-facing view of a principal record.
type Credential struct {
	ID           int64
	Email        string
	PasswordHash string
	OrgID        *int64
	IsActive     bool
}

// Session is an issued bearer token and the identity behind it.
type Session struct {
	Token       string    `json:"token"`
	PrincipalID int64     `json:"principal_id"`
	Email       string    `json:"email"`
	OrgID       *int64    `json:"org_id,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}
