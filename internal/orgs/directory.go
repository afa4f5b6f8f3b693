package orgs

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokerdesk/brokerdesk/internal/shared"
)

// Directory provides read access to organizations. The authorization layer
// consults it when an organization-access check needs the stored record.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory constructs a Directory.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// Find returns one organization by id, shared.ErrNotFound when absent.
func (d *Directory) Find(ctx context.Context, id int64) (Organization, error) {
	var org Organization
	var kind string
	err := d.pool.QueryRow(ctx,
		`SELECT id, name, kind, is_active, created_at, updated_at FROM organizations WHERE id = $1`, id,
	).Scan(&org.ID, &org.Name, &kind, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, shared.ErrNotFound
		}
		return Organization{}, err
	}
	org.Kind = Kind(kind)
	return org, nil
}

// List returns all active organizations ordered by name.
func (d *Directory) List(ctx context.Context) ([]Organization, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, name, kind, is_active, created_at, updated_at FROM organizations WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Organization
	for rows.Next() {
		var org Organization
		var kind string
		if err := rows.Scan(&org.ID, &org.Name, &kind, &org.IsActive, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		org.Kind = Kind(kind)
		result = append(result, org)
	}
	return result, rows.Err()
}
