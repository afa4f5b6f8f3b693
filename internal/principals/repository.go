package principals

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokerdesk/brokerdesk/internal/shared"
)

// Repository provides PostgreSQL backed access to principal accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns active accounts, scoped to an organization when orgID is set.
func (r *Repository) List(ctx context.Context, orgID *int64) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `
SELECT p.id, p.email, p.org_id, p.is_active, p.created_at, p.last_sign_in_at,
       COALESCE(array_agg(ro.name) FILTER (WHERE ro.name IS NOT NULL), '{}')
FROM principals p
LEFT JOIN principal_roles pr ON pr.principal_id = p.id AND pr.revoked_at IS NULL
LEFT JOIN roles ro ON ro.id = pr.role_id
WHERE p.is_active AND ($1::bigint IS NULL OR p.org_id = $1)
GROUP BY p.id
ORDER BY p.email`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// Get loads a single account by id.
func (r *Repository) Get(ctx context.Context, id int64) (Account, error) {
	row := r.pool.QueryRow(ctx, `
SELECT p.id, p.email, p.org_id, p.is_active, p.created_at, p.last_sign_in_at,
       COALESCE(array_agg(ro.name) FILTER (WHERE ro.name IS NOT NULL), '{}')
FROM principals p
LEFT JOIN principal_roles pr ON pr.principal_id = p.id AND pr.revoked_at IS NULL
LEFT JOIN roles ro ON ro.id = pr.role_id
WHERE p.id = $1
GROUP BY p.id`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, err
	}
	return account, nil
}

// Deactivate soft-deletes an account. The row survives for the audit trail.
func (r *Repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE principals SET is_active = false, updated_at = now() WHERE id = $1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		account    Account
		orgID      pgtype.Int8
		lastSignIn pgtype.Timestamptz
	)
	err := row.Scan(&account.ID, &account.Email, &orgID, &account.IsActive,
		&account.CreatedAt, &lastSignIn, &account.RoleNames)
	if err != nil {
		return Account{}, err
	}
	if orgID.Valid {
		v := orgID.Int64
		account.OrgID = &v
	}
	if lastSignIn.Valid {
		t := lastSignIn.Time
		account.LastSignInAt = &t
	}
	return account, nil
}
