package document

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"blueprint/internal/blueprint"
)

type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]blueprint.Document
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]blueprint.Document),
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, doc blueprint.Document) error {
	stored, err := cloneDocument(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return ErrExists
	}
	if stored.Version == 0 {
		stored.Version = 1
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = s.now().UTC()
	}
	s.docs[doc.ID] = stored
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (blueprint.Document, error) {
	s.mu.Lock()
	doc, ok := s.docs[strings.TrimSpace(id)]
	s.mu.Unlock()
	if !ok {
		return blueprint.Document{}, ErrNotFound
	}
	return cloneDocument(doc)
}

func (s *MemoryStore) ListByEngagement(_ context.Context, engagementID string, limit int) ([]blueprint.Document, error) {
	engagementID = strings.TrimSpace(engagementID)
	s.mu.Lock()
	out := make([]blueprint.Document, 0, 4)
	for _, doc := range s.docs {
		if doc.EngagementID == engagementID {
			out = append(out, doc)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].GeneratedAt.After(out[j].GeneratedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		cloned, err := cloneDocument(out[i])
		if err != nil {
			return nil, err
		}
		out[i] = cloned
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutate func(*blueprint.Document) error) (blueprint.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[strings.TrimSpace(id)]
	if !ok {
		return blueprint.Document{}, ErrNotFound
	}
	next, err := cloneDocument(cur)
	if err != nil {
		return blueprint.Document{}, err
	}
	if err := mutate(&next); err != nil {
		return blueprint.Document{}, err
	}
	next.ID = cur.ID
	next.Version = cur.Version + 1
	next.UpdatedAt = s.now().UTC()
	s.docs[cur.ID] = next
	return cloneDocument(next)
}
