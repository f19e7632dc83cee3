package document

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blueprint/internal/blueprint"
)

func TestMemoryStoreUpdateVersionsAndGuards(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	doc := blueprint.Document{ID: "d1", EngagementID: "e1", Status: blueprint.StatusProcessing, GeneratedAt: time.Now()}
	if err := store.Create(ctx, doc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, doc); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	updated, err := store.Update(ctx, "d1", func(d *blueprint.Document) error {
		d.Status = blueprint.StatusRendered
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 || updated.Status != blueprint.StatusRendered {
		t.Fatalf("unexpected document after update: version=%d status=%s", updated.Version, updated.Status)
	}

	_, err = store.Update(ctx, "d1", func(d *blueprint.Document) error {
		d.Status = blueprint.StatusFailed
		return blueprint.ErrAlreadyApplied
	})
	if !errors.Is(err, blueprint.ErrAlreadyApplied) {
		t.Fatalf("expected guard error, got %v", err)
	}
	got, err := store.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != blueprint.StatusRendered || got.Version != 2 {
		t.Fatalf("aborted mutation must not be written: %+v", got)
	}

	if _, err := store.Update(ctx, "missing", func(*blueprint.Document) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreConcurrentUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, blueprint.Document{ID: "d1", EngagementID: "e1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(ctx, "d1", func(d *blueprint.Document) error {
				d.Analytics.Categories = append(d.Analytics.Categories, "x")
				return nil
			})
		}()
	}
	wg.Wait()
	got, _ := store.Get(ctx, "d1")
	if len(got.Analytics.Categories) != 20 || got.Version != 21 {
		t.Fatalf("lost updates: categories=%d version=%d", len(got.Analytics.Categories), got.Version)
	}
}

func TestMemoryStoreListByEngagementNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, blueprint.Document{ID: id, EngagementID: "e1", GeneratedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	_ = store.Create(ctx, blueprint.Document{ID: "other", EngagementID: "e2", GeneratedAt: base})

	docs, err := store.ListByEngagement(ctx, "e1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "c" || docs[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", docs)
	}
}
