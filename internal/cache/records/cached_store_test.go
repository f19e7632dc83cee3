package records

import (
	"context"
	"errors"
	"testing"
	"time"

	recordsrepo "blueprint/internal/gateway/repository/records"
)

func TestCachedStoreCachesHitsOnly(t *testing.T) {
	origin := recordsrepo.NewMemoryStore()
	if err := origin.Put(recordsrepo.CollectionTrials, "t1", "e1", time.Now(), map[string]string{"name": "POV"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := NewCachedStore(origin, DefaultCacheConfig())

	for i := 0; i < 3; i++ {
		if _, err := store.Get(context.Background(), recordsrepo.CollectionTrials, "t1"); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if _, err := store.Get(context.Background(), recordsrepo.CollectionTrials, "missing"); !errors.Is(err, recordsrepo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	stats := store.Stats()
	if stats.Hits != 2 || stats.Misses != 2 || stats.Loads != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	// a failed load is retried against the origin
	if _, err := store.Get(context.Background(), recordsrepo.CollectionTrials, "missing"); !errors.Is(err, recordsrepo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := store.Stats().Loads; got != 3 {
		t.Fatalf("expected 3 loads, got %d", got)
	}
}
