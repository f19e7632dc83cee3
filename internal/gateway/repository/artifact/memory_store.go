package artifact

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"
)

type memoryObject struct {
	content     []byte
	contentType string
	metadata    map[string]string
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]memoryObject
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]memoryObject),
		now:  time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, path string, content []byte, contentType string, metadata map[string]string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	key := normalizePath(path)
	if key == "" {
		return fmt.Errorf("path is required")
	}
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = memoryObject{
		content:     append([]byte(nil), content...),
		contentType: contentType,
		metadata:    meta,
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, path string) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	key := normalizePath(path)
	if key == "" {
		return nil, fmt.Errorf("path is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), obj.content...), nil
}

// SignedURL returns a memory:// reference carrying the expiry, so callers
// exercise the same contract as with S3.
func (s *MemoryStore) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	if s == nil {
		return "", fmt.Errorf("store is nil")
	}
	key := normalizePath(path)
	s.mu.RLock()
	_, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(s.now().Add(ttl).Unix(), 10))
	return "memory://" + key + "?" + q.Encode(), nil
}

// Metadata returns content type and metadata stored with path.
func (s *MemoryStore) Metadata(path string) (string, map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.data[normalizePath(path)]
	if !ok {
		return "", nil, false
	}
	return obj.contentType, obj.metadata, true
}
