package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// PostgresStore reads portal records kept as JSONB rows.
type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS portal_records (
  collection TEXT NOT NULL,
  id TEXT NOT NULL,
  engagement_id TEXT NOT NULL DEFAULT '',
  data JSONB NOT NULL DEFAULT '{}'::jsonb,
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_portal_records_engagement ON portal_records (collection, engagement_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_portal_records_recent ON portal_records (collection, updated_at DESC);
`)
	})
	return s.schemaErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec       Record
		data      []byte
		updatedAt time.Time
	)
	if err := row.Scan(&rec.Collection, &rec.ID, &rec.EngagementID, &data, &updatedAt); err != nil {
		return Record{}, err
	}
	rec.Data = data
	rec.UpdatedAt = updatedAt
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Record{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT collection, id, engagement_id, data, updated_at
FROM portal_records WHERE collection = $1 AND id = $2`, strings.TrimSpace(collection), strings.TrimSpace(id))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

func (s *PostgresStore) ListByEngagement(ctx context.Context, collection, engagementID string, limit int) ([]Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s.query(ctx, `SELECT collection, id, engagement_id, data, updated_at
FROM portal_records WHERE collection = $1 AND engagement_id = $2
ORDER BY updated_at DESC LIMIT $3`, strings.TrimSpace(collection), strings.TrimSpace(engagementID), clampLimit(limit))
}

func (s *PostgresStore) Recent(ctx context.Context, collection string, limit int) ([]Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s.query(ctx, `SELECT collection, id, engagement_id, data, updated_at
FROM portal_records WHERE collection = $1
ORDER BY updated_at DESC LIMIT $2`, strings.TrimSpace(collection), clampLimit(limit))
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Record, 0, 16)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 500
	}
	return limit
}
