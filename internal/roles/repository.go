package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokerdesk/brokerdesk/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, display_name, level, org_id, is_system, created_at, updated_at`

// ListRoles returns all roles ordered by level then name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY level DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// UpdateRole changes the mutable attributes of a non-system role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, displayName string, level int) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `
UPDATE roles SET display_name = $2, level = $3, updated_at = NOW()
WHERE id = $1 AND NOT is_system
RETURNING `+roleColumns, id, displayName, level))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	var orgID pgtype.Int8
	if err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Level,
		&orgID, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	if orgID.Valid {
		v := orgID.Int64
		role.OrgID = &v
	}
	return role, nil
}
