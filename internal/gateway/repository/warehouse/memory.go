package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Row is one inserted row as kept by MemoryWarehouse.
type Row struct {
	JobID string
	Data  json.RawMessage
}

type MemoryWarehouse struct {
	mu     sync.Mutex
	tables map[string][]Row
	fail   error
}

func NewMemoryWarehouse() *MemoryWarehouse {
	return &MemoryWarehouse{tables: make(map[string][]Row)}
}

// FailWith makes subsequent inserts return err until called with nil.
func (w *MemoryWarehouse) FailWith(err error) {
	w.mu.Lock()
	w.fail = err
	w.mu.Unlock()
}

func (w *MemoryWarehouse) InsertRow(_ context.Context, dataset, table string, row any) (string, error) {
	name, err := tableName(dataset, table)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("encode row: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return "", w.fail
	}
	jobID := uuid.NewString()
	w.tables[name] = append(w.tables[name], Row{JobID: jobID, Data: raw})
	return jobID, nil
}

func (w *MemoryWarehouse) Rows(dataset, table string) []Row {
	name, err := tableName(dataset, table)
	if err != nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Row(nil), w.tables[name]...)
}
