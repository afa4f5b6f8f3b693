package applications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brokerdesk/brokerdesk/internal/platform/db"
	"github.com/brokerdesk/brokerdesk/internal/platform/httpx"
	"github.com/brokerdesk/brokerdesk/internal/shared"
)

// ListFilter narrows List results.
type ListFilter struct {
	AgencyOrgID  *int64
	CarrierOrgID *int64
	BrokerID     *int64
	Status       *Status
	Kind         *Kind
	Limit        int
}

// Repository provides PostgreSQL backed access to applications.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const applicationColumns = `id, number, kind, status, applicant_name, property_address,
coverage_amount, premium, broker_id, agency_org_id, carrier_org_ids, notes,
submitted_at, decided_at, created_at, updated_at`

// Create allocates a document number and inserts the draft in one
// transaction, so a failed insert never burns a visible number gap under
// concurrent creates.
func (r *Repository) Create(ctx context.Context, app Application) (Application, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var seq int64
		if err := tx.QueryRow(ctx, `SELECT nextval('application_number_seq')`).Scan(&seq); err != nil {
			return err
		}
		app.Number = fmt.Sprintf("APP-%d-%06d", app.CreatedAt.Year(), seq)
		_, err := tx.Exec(ctx, `
INSERT INTO applications (id, number, kind, status, applicant_name, property_address,
  coverage_amount, premium, broker_id, agency_org_id, carrier_org_ids, notes,
  created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`,
			app.ID, app.Number, app.Kind, app.Status, app.ApplicantName, app.PropertyAddress,
			app.CoverageAmount, app.Premium, app.BrokerID, app.AgencyOrgID, app.CarrierOrgIDs,
			app.Notes, app.CreatedAt)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Application{}, fmt.Errorf("%w: application number %s", httpx.ErrDuplicate, app.Number)
		}
		return Application{}, err
	}
	return app, nil
}

// Get loads one application.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Application, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, shared.ErrNotFound
		}
		return Application{}, err
	}
	return app, nil
}

// Update rewrites the mutable fields of a draft or submitted application.
func (r *Repository) Update(ctx context.Context, app Application) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE applications
SET applicant_name = $2, property_address = $3, coverage_amount = $4,
    premium = $5, carrier_org_ids = $6, notes = $7, updated_at = now()
WHERE id = $1`,
		app.ID, app.ApplicantName, app.PropertyAddress, app.CoverageAmount,
		app.Premium, app.CarrierOrgIDs, app.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateStatus moves an application through the workflow.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) error {
	var submitted, decided any
	switch status {
	case StatusSubmitted:
		submitted = at
	case StatusApproved, StatusRejected:
		decided = at
	}
	tag, err := r.pool.Exec(ctx, `
UPDATE applications
SET status = $2,
    submitted_at = COALESCE($3, submitted_at),
    decided_at = COALESCE($4, decided_at),
    updated_at = now()
WHERE id = $1`, id, status, submitted, decided)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// List returns applications matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Application, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
SELECT `+applicationColumns+`
FROM applications
WHERE ($1::bigint IS NULL OR agency_org_id = $1)
  AND ($2::bigint IS NULL OR $2 = ANY(carrier_org_ids))
  AND ($3::bigint IS NULL OR broker_id = $3)
  AND ($4::text IS NULL OR status = $4)
  AND ($5::text IS NULL OR kind = $5)
ORDER BY created_at DESC
LIMIT $6`,
		filter.AgencyOrgID, filter.CarrierOrgID, filter.BrokerID, filter.Status, filter.Kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func scanApplication(row pgx.Row) (Application, error) {
	var (
		app       Application
		submitted pgtype.Timestamptz
		decided   pgtype.Timestamptz
	)
	err := row.Scan(&app.ID, &app.Number, &app.Kind, &app.Status, &app.ApplicantName,
		&app.PropertyAddress, &app.CoverageAmount, &app.Premium, &app.BrokerID,
		&app.AgencyOrgID, &app.CarrierOrgIDs, &app.Notes, &submitted, &decided,
		&app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return Application{}, err
	}
	if submitted.Valid {
		t := submitted.Time
		app.SubmittedAt = &t
	}
	if decided.Valid {
		t := decided.Time
		app.DecidedAt = &t
	}
	return app, nil
}
