package authz

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokerdesk/brokerdesk/internal/shared"
)

// Repository provides PostgreSQL backed access to the principal, role and
// permission reference data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindPrincipal loads the principal with its active, non-expired role
// grants and the permissions behind them. Returns shared.ErrNotFound when
// the principal does not exist or is deactivated.
func (r *Repository) FindPrincipal(ctx context.Context, id int64) (*Principal, error) {
	var (
		orgID pgtype.Int8
		email string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT org_id, email FROM principals WHERE id = $1 AND is_active`, id,
	).Scan(&orgID, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	grants, err := r.grantsFor(ctx, id)
	if err != nil {
		return nil, err
	}

	var org *int64
	if orgID.Valid {
		v := orgID.Int64
		org = &v
	}
	return NewPrincipal(id, org, email, grants), nil
}

func (r *Repository) grantsFor(ctx context.Context, principalID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
SELECT r.id, r.name, r.display_name, r.level, r.org_id, r.is_system,
       pr.granted_at, pr.expires_at
FROM principal_roles pr
JOIN roles r ON r.id = pr.role_id
WHERE pr.principal_id = $1
  AND pr.revoked_at IS NULL
  AND (pr.expires_at IS NULL OR pr.expires_at > NOW())
ORDER BY r.level DESC`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var (
			role      Role
			orgID     pgtype.Int8
			grantedAt time.Time
			expiresAt pgtype.Timestamptz
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Level,
			&orgID, &role.IsSystem, &grantedAt, &expiresAt); err != nil {
			return nil, err
		}
		if orgID.Valid {
			v := orgID.Int64
			role.OrgID = &v
		}
		grant := Grant{Role: role, GrantedAt: grantedAt}
		if expiresAt.Valid {
			t := expiresAt.Time
			grant.ExpiresAt = &t
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range grants {
		perms, err := r.permissionsFor(ctx, grants[i].Role.ID)
		if err != nil {
			return nil, err
		}
		grants[i].Role.Permissions = perms
	}
	return grants, nil
}

func (r *Repository) permissionsFor(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
SELECT p.id, p.name, p.is_system, p.is_active
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = $1 AND p.is_active
ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.IsSystem, &perm.IsActive); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}
