package document

import (
	"context"
	"encoding/json"
	"fmt"

	"blueprint/internal/blueprint"
)

// Store persists BlueprintDocuments. Update runs mutate against the current
// document under a per-document lock and persists the result with an
// incremented version; if mutate returns an error nothing is written and the
// error is returned unchanged.
type Store interface {
	Create(ctx context.Context, doc blueprint.Document) error
	Get(ctx context.Context, id string) (blueprint.Document, error)
	ListByEngagement(ctx context.Context, engagementID string, limit int) ([]blueprint.Document, error)
	Update(ctx context.Context, id string, mutate func(*blueprint.Document) error) (blueprint.Document, error)
}

// ErrNotFound is blueprint.ErrNotFound so callers only match one sentinel.
var ErrNotFound = blueprint.ErrNotFound

// ErrExists is returned by Create for a duplicate id.
var ErrExists = fmt.Errorf("blueprint document already exists")

func cloneDocument(doc blueprint.Document) (blueprint.Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return blueprint.Document{}, fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	var out blueprint.Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return blueprint.Document{}, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return out, nil
}
