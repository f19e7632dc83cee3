package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"blueprint/internal/blueprint"
)

type PostgresStore struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
	now        func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS blueprint_documents (
  id TEXT PRIMARY KEY,
  engagement_id TEXT NOT NULL,
  status TEXT NOT NULL,
  generated_at TIMESTAMP WITH TIME ZONE NOT NULL,
  version BIGINT NOT NULL DEFAULT 1,
  doc JSONB NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_blueprint_documents_engagement ON blueprint_documents (engagement_id, generated_at DESC);
`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Create(ctx context.Context, doc blueprint.Document) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if doc.Version == 0 {
		doc.Version = 1
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = s.now().UTC()
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO blueprint_documents (id, engagement_id, status, generated_at, version, doc, updated_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
		doc.ID, doc.EngagementID, string(doc.Status), doc.GeneratedAt, doc.Version, string(raw), doc.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrExists
		}
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (blueprint.Document, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return blueprint.Document{}, err
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM blueprint_documents WHERE id = $1`, strings.TrimSpace(id)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return blueprint.Document{}, ErrNotFound
	}
	if err != nil {
		return blueprint.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return decodeDocument(raw)
}

func (s *PostgresStore) ListByEngagement(ctx context.Context, engagementID string, limit int) ([]blueprint.Document, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM blueprint_documents
WHERE engagement_id = $1 ORDER BY generated_at DESC LIMIT $2`, strings.TrimSpace(engagementID), limit)
	if err != nil {
		return nil, fmt.Errorf("list documents for %s: %w", engagementID, err)
	}
	defer rows.Close()
	out := make([]blueprint.Document, 0, limit)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Update holds the row lock for the whole read-mutate-write cycle, so
// concurrent stage handlers for one document serialize here.
func (s *PostgresStore) Update(ctx context.Context, id string, mutate func(*blueprint.Document) error) (blueprint.Document, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return blueprint.Document{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return blueprint.Document{}, err
	}
	defer func() { _ = tx.Rollback() }()

	id = strings.TrimSpace(id)
	var raw []byte
	err = tx.QueryRowContext(ctx, `SELECT doc FROM blueprint_documents WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return blueprint.Document{}, ErrNotFound
	}
	if err != nil {
		return blueprint.Document{}, fmt.Errorf("lock document %s: %w", id, err)
	}
	cur, err := decodeDocument(raw)
	if err != nil {
		return blueprint.Document{}, err
	}
	prevVersion := cur.Version
	if err := mutate(&cur); err != nil {
		return blueprint.Document{}, err
	}
	cur.ID = id
	cur.Version = prevVersion + 1
	cur.UpdatedAt = s.now().UTC()
	next, err := json.Marshal(cur)
	if err != nil {
		return blueprint.Document{}, fmt.Errorf("encode document %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `
UPDATE blueprint_documents
SET status = $2, version = $3, doc = $4::jsonb, updated_at = $5
WHERE id = $1 AND version = $6`,
		id, string(cur.Status), cur.Version, string(next), cur.UpdatedAt, prevVersion)
	if err != nil {
		return blueprint.Document{}, fmt.Errorf("update document %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return blueprint.Document{}, fmt.Errorf("update document %s: version %d changed underneath", id, prevVersion)
	}
	if err := tx.Commit(); err != nil {
		return blueprint.Document{}, err
	}
	return cur, nil
}

func decodeDocument(raw []byte) (blueprint.Document, error) {
	var doc blueprint.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return blueprint.Document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
