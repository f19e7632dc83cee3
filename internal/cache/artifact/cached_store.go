package artifact

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	memcache "blueprint/internal/cache/memory"
	artifactrepo "blueprint/internal/gateway/repository/artifact"
)

type CacheConfig struct {
	BlobTTL        time.Duration
	BlobMaxEntries int
	BlobMaxBytes   int
	URLTTL         time.Duration
	URLMaxEntries  int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		BlobTTL:        5 * time.Minute,
		BlobMaxEntries: 256,
		BlobMaxBytes:   64 << 20,
		URLTTL:         5 * time.Minute,
		URLMaxEntries:  1024,
	}
}

type Stats struct {
	Blobs       memcache.Stats
	URLs        memcache.Stats
	OriginPuts  uint64
	OriginFails uint64
}

// CachedStore writes through to object storage and serves reads of payloads
// and rendered documents from memory. Zip bundles are written once and never
// read back by the pipeline, so they skip the blob cache.
type CachedStore struct {
	origin artifactrepo.Store
	blobs  *memcache.Cache[[]byte]
	urls   *memcache.Cache[string]
	urlTTL time.Duration

	puts, fails atomic.Uint64
}

func NewCachedStore(origin artifactrepo.Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.BlobTTL <= 0 {
		cfg.BlobTTL = def.BlobTTL
	}
	if cfg.BlobMaxEntries <= 0 {
		cfg.BlobMaxEntries = def.BlobMaxEntries
	}
	if cfg.BlobMaxBytes < 0 {
		cfg.BlobMaxBytes = def.BlobMaxBytes
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = def.URLTTL
	}
	if cfg.URLMaxEntries <= 0 {
		cfg.URLMaxEntries = def.URLMaxEntries
	}
	return &CachedStore{
		origin: origin,
		blobs:  memcache.New[[]byte](cfg.BlobMaxEntries, cfg.BlobMaxBytes, cfg.BlobTTL),
		urls:   memcache.New[string](cfg.URLMaxEntries, 0, cfg.URLTTL),
		urlTTL: cfg.URLTTL,
	}
}

func (s *CachedStore) Put(ctx context.Context, path string, content []byte, contentType string, metadata map[string]string) error {
	s.puts.Add(1)
	if err := s.origin.Put(ctx, path, content, contentType, metadata); err != nil {
		s.fails.Add(1)
		return err
	}
	key := cacheKey(path)
	s.urls.Delete(key)
	if contentType == "application/zip" {
		s.blobs.Delete(key)
		return nil
	}
	s.blobs.Set(key, append([]byte(nil), content...), len(content))
	return nil
}

func (s *CachedStore) Get(ctx context.Context, path string) ([]byte, error) {
	raw, err := s.blobs.GetOrLoad(cacheKey(path), func() ([]byte, int, error) {
		b, err := s.origin.Get(ctx, path)
		if err != nil {
			s.fails.Add(1)
			return nil, 0, err
		}
		return b, len(b), nil
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), raw...), nil
}

// SignedURL reuses a cached URL only when the requested lifetime outlives
// the cache TTL, so a cached URL never reaches a caller already expired.
func (s *CachedStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if ttl <= s.urlTTL {
		return s.origin.SignedURL(ctx, path, ttl)
	}
	return s.urls.GetOrLoad(cacheKey(path), func() (string, int, error) {
		u, err := s.origin.SignedURL(ctx, path, ttl)
		if err != nil {
			s.fails.Add(1)
			return "", 0, err
		}
		return u, len(u), nil
	})
}

func (s *CachedStore) Stats() Stats {
	return Stats{
		Blobs:       s.blobs.Stats(),
		URLs:        s.urls.Stats(),
		OriginPuts:  s.puts.Load(),
		OriginFails: s.fails.Load(),
	}
}

func cacheKey(path string) string {
	return strings.TrimLeft(strings.TrimSpace(path), "/")
}
