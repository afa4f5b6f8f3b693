package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Appender is the narrow write interface consumed by the recorder and the
// request wrapper. Append is the only mutation this core ever performs on
// audit storage.
type Appender interface {
	Append(ctx context.Context, entry Entry) (uuid.UUID, error)
}

// Window bounds a read-model query in time. Zero values are open ends.
type Window struct {
	From time.Time
	To   time.Time
}

// Store persists entries in the audit_entries table and serves the read
// model used by reporting surfaces. It exposes no update or delete.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Append writes one entry and returns its id. Missing id/timestamp are
// filled in here so callers can hand over bare entries.
func (s *Store) Append(ctx context.Context, entry Entry) (uuid.UUID, error) {
	if s == nil || s.pool == nil {
		return uuid.Nil, errors.New("audit: store not initialised")
	}
	if entry.Action == "" {
		return uuid.Nil, errors.New("audit: entry requires an action")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return uuid.Nil, err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO audit_entries
  (id, principal_id, org_id, action, category, severity, resource_type, resource_id, ip, user_agent, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID, entry.PrincipalID, entry.OrgID, entry.Action, string(entry.Category),
		string(entry.Severity), entry.ResourceType, entry.ResourceID, entry.IP,
		entry.UserAgent, detailsJSON, entry.CreatedAt)
	if err != nil {
		return uuid.Nil, err
	}
	return entry.ID, nil
}

// ByOrganization returns entries for one organization within the window,
// newest first.
func (s *Store) ByOrganization(ctx context.Context, orgID int64, window Window, limit int) ([]Entry, error) {
	return s.query(ctx, `
SELECT id, principal_id, org_id, action, category, severity, resource_type, resource_id, ip, user_agent, details, created_at
FROM audit_entries
WHERE org_id = $1
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at <= $3)
ORDER BY created_at DESC
LIMIT $4`, orgID, toPgTime(window.From), toPgTime(window.To), normalizeLimit(limit))
}

// ByActor returns entries recorded for one acting principal within the window.
func (s *Store) ByActor(ctx context.Context, principalID int64, window Window, limit int) ([]Entry, error) {
	return s.query(ctx, `
SELECT id, principal_id, org_id, action, category, severity, resource_type, resource_id, ip, user_agent, details, created_at
FROM audit_entries
WHERE principal_id = $1
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at <= $3)
ORDER BY created_at DESC
LIMIT $4`, principalID, toPgTime(window.From), toPgTime(window.To), normalizeLimit(limit))
}

// ByResource returns the history of one resource, newest first.
func (s *Store) ByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]Entry, error) {
	return s.query(ctx, `
SELECT id, principal_id, org_id, action, category, severity, resource_type, resource_id, ip, user_agent, details, created_at
FROM audit_entries
WHERE resource_type = $1 AND resource_id = $2
ORDER BY created_at DESC
LIMIT $3`, resourceType, resourceID, normalizeLimit(limit))
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		entry       Entry
		principalID pgtype.Int8
		orgID       pgtype.Int8
		category    string
		severity    string
		detailsJSON []byte
	)
	if err := row.Scan(&entry.ID, &principalID, &orgID, &entry.Action, &category,
		&severity, &entry.ResourceType, &entry.ResourceID, &entry.IP,
		&entry.UserAgent, &detailsJSON, &entry.CreatedAt); err != nil {
		return Entry{}, err
	}
	if principalID.Valid {
		v := principalID.Int64
		entry.PrincipalID = &v
	}
	if orgID.Valid {
		v := orgID.Int64
		entry.OrgID = &v
	}
	entry.Category = Category(category)
	entry.Severity = Severity(severity)
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
			return Entry{}, err
		}
	}
	return entry, nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
