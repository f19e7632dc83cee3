package records

import (
	"context"
	"strings"
	"time"

	memcache "blueprint/internal/cache/memory"
	recordsrepo "blueprint/internal/gateway/repository/records"
)

type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 30 * time.Second, MaxEntries: 2048}
}

// CachedStore caches single-record reads. Supporting records are fetched by
// id on every generation request, while list reads must stay fresh and bypass
// the cache.
type CachedStore struct {
	origin recordsrepo.Store
	cache  *memcache.Cache[recordsrepo.Record]
}

func NewCachedStore(origin recordsrepo.Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	return &CachedStore{
		origin: origin,
		cache:  memcache.New[recordsrepo.Record](cfg.MaxEntries, 0, cfg.TTL),
	}
}

func (s *CachedStore) Get(ctx context.Context, collection, id string) (recordsrepo.Record, error) {
	key := strings.TrimSpace(collection) + "/" + strings.TrimSpace(id)
	return s.cache.GetOrLoad(key, func() (recordsrepo.Record, int, error) {
		rec, err := s.origin.Get(ctx, collection, id)
		return rec, len(rec.Data), err
	})
}

func (s *CachedStore) ListByEngagement(ctx context.Context, collection, engagementID string, limit int) ([]recordsrepo.Record, error) {
	return s.origin.ListByEngagement(ctx, collection, engagementID, limit)
}

func (s *CachedStore) Recent(ctx context.Context, collection string, limit int) ([]recordsrepo.Record, error) {
	return s.origin.Recent(ctx, collection, limit)
}

func (s *CachedStore) Stats() memcache.Stats {
	return s.cache.Stats()
}
