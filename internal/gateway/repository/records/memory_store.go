package records

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Record)}
}

// Put stores a record, encoding v as its data.
func (s *MemoryStore) Put(collection, id, engagementID string, updatedAt time.Time, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record %s/%s: %w", collection, id, err)
	}
	collection = strings.TrimSpace(collection)
	id = strings.TrimSpace(id)
	if collection == "" || id == "" {
		return fmt.Errorf("collection and id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.data[collection]
	if !ok {
		col = make(map[string]Record)
		s.data[collection] = col
	}
	col[id] = Record{
		Collection:   collection,
		ID:           id,
		EngagementID: strings.TrimSpace(engagementID),
		Data:         raw,
		UpdatedAt:    updatedAt,
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[strings.TrimSpace(collection)][strings.TrimSpace(id)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) ListByEngagement(_ context.Context, collection, engagementID string, limit int) ([]Record, error) {
	engagementID = strings.TrimSpace(engagementID)
	return s.list(collection, limit, func(r Record) bool { return r.EngagementID == engagementID }), nil
}

func (s *MemoryStore) Recent(_ context.Context, collection string, limit int) ([]Record, error) {
	return s.list(collection, limit, func(Record) bool { return true }), nil
}

func (s *MemoryStore) list(collection string, limit int, keep func(Record) bool) []Record {
	s.mu.RLock()
	out := make([]Record, 0, 8)
	for _, rec := range s.data[strings.TrimSpace(collection)] {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
