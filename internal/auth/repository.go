package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokerdesk/brokerdesk/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	TouchSignIn(ctx context.Context, principalID int64) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches login credentials by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Credential, error) {
	var (
		cred  Credential
		orgID pgtype.Int8
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, org_id, is_active FROM principals WHERE lower(email) = lower($1)`,
		email,
	).Scan(&cred.ID, &cred.Email, &cred.PasswordHash, &orgID, &cred.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if orgID.Valid {
		v := orgID.Int64
		cred.OrgID = &v
	}
	return &cred, nil
}

// TouchSignIn stamps the last successful login time.
func (r *PGRepository) TouchSignIn(ctx context.Context, principalID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE principals SET last_sign_in_at = now() WHERE id = $1`, principalID)
	return err
}

var _ Repository = (*PGRepository)(nil)
