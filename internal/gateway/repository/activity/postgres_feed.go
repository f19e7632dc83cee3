package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"sync"
)

// PostgresFeed appends entries to the activity_feed table.
type PostgresFeed struct {
	db         *sql.DB
	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresFeed(db *sql.DB) *PostgresFeed {
	return &PostgresFeed{db: db}
}

func (f *PostgresFeed) ensureSchema(ctx context.Context) error {
	f.schemaOnce.Do(func() {
		_, f.schemaErr = f.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS activity_feed (
  id TEXT PRIMARY KEY,
  engagement_id TEXT NOT NULL,
  blueprint_id TEXT NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL,
  message TEXT NOT NULL,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_activity_feed_engagement ON activity_feed (engagement_id, created_at DESC);
`)
	})
	return f.schemaErr
}

func (f *PostgresFeed) Record(ctx context.Context, engagementID, blueprintID string, ev Event) {
	if f == nil || f.db == nil {
		return
	}
	if err := f.ensureSchema(ctx); err != nil {
		log.Printf("activity feed schema failed: %v", err)
		return
	}
	e := newEntry(engagementID, blueprintID, ev)
	meta, err := json.Marshal(e.Metadata)
	if err != nil || e.Metadata == nil {
		meta = []byte("{}")
	}
	_, err = f.db.ExecContext(ctx, `
INSERT INTO activity_feed (id, engagement_id, blueprint_id, type, status, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
		e.ID, e.EngagementID, e.BlueprintID, e.Type, e.Status, e.Message, string(meta), e.At)
	if err != nil {
		log.Printf("activity feed insert failed blueprint=%s type=%s: %v", blueprintID, ev.Type, err)
	}
}
