package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteWarehouse keeps one table per dataset/table pair, rows stored as JSON.
type SQLiteWarehouse struct {
	db      *sql.DB
	mu      sync.Mutex
	created map[string]bool
}

// OpenSQLite opens or creates the warehouse file at path.
func OpenSQLite(path string) (*SQLiteWarehouse, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create warehouse dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer keeps sqlite from returning SQLITE_BUSY under concurrent exports
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLiteWarehouse{db: db, created: make(map[string]bool)}, nil
}

func (w *SQLiteWarehouse) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *SQLiteWarehouse) ensureTable(ctx context.Context, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.created[name] {
		return nil
	}
	// name is validated by tableName, so it is safe to interpolate.
	_, err := w.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  job_id TEXT PRIMARY KEY,
  inserted_at TEXT NOT NULL,
  row_json TEXT NOT NULL
)`, name))
	if err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	w.created[name] = true
	return nil
}

func (w *SQLiteWarehouse) InsertRow(ctx context.Context, dataset, table string, row any) (string, error) {
	name, err := tableName(dataset, table)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("encode row: %w", err)
	}
	if err := w.ensureTable(ctx, name); err != nil {
		return "", err
	}
	jobID := uuid.NewString()
	_, err = w.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (job_id, inserted_at, row_json) VALUES (?, ?, ?)`, name),
		jobID, time.Now().UTC().Format(time.RFC3339Nano), string(raw))
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", name, err)
	}
	return jobID, nil
}

// Count returns the number of rows in dataset.table.
func (w *SQLiteWarehouse) Count(ctx context.Context, dataset, table string) (int, error) {
	name, err := tableName(dataset, table)
	if err != nil {
		return 0, err
	}
	if err := w.ensureTable(ctx, name); err != nil {
		return 0, err
	}
	var n int
	err = w.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, name)).Scan(&n)
	return n, err
}
