// Package resolver turns a consultant-selected supporting record into a
// normalized augmentation of the blueprint context.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"blueprint/internal/blueprint"
	"blueprint/internal/gateway/repository/records"
)

// candidateCollections lists backing collections per source, primary first.
var candidateCollections = map[blueprint.Source][]string{
	blueprint.SourceEngagement: {records.CollectionEngagements},
	blueprint.SourceTrial:      {records.CollectionTrials, records.CollectionTrialsLegacy},
	blueprint.SourceReview:     {records.CollectionReviews, records.CollectionReviewsLegacy},
	blueprint.SourceHealth:     {records.CollectionHealth, records.CollectionHealthLegacy},
}

// Transcript token estimate coefficients.
const (
	transcriptBaseTokens     = 480
	transcriptTokensScenario = 120
	transcriptTokensNote     = 40
)

type Resolver struct {
	records records.Store
	now     func() time.Time
}

type Option func(*Resolver)

// WithClock overrides the augmentation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func New(store records.Store, opts ...Option) *Resolver {
	r := &Resolver{records: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches (or takes inline) the selection's data and derives its
// augmentation. A record missing from every candidate collection resolves
// as an empty record; fetch errors are returned for the caller to skip.
func (r *Resolver) Resolve(ctx context.Context, sel blueprint.RecordSelection) (blueprint.AugmentedRecord, error) {
	sel.RecordID = strings.TrimSpace(sel.RecordID)
	if sel.RecordID == "" {
		return blueprint.AugmentedRecord{}, fmt.Errorf("recordId is required")
	}
	src, err := blueprint.ParseSource(string(sel.Source))
	if err != nil {
		return blueprint.AugmentedRecord{}, err
	}
	sel.Source = src

	data, err := r.fetch(ctx, sel)
	if err != nil {
		return blueprint.AugmentedRecord{}, err
	}
	aug, err := derive(sel, data)
	if err != nil {
		return blueprint.AugmentedRecord{}, err
	}

	now := r.now().UTC()
	aug.TimelineEntries = append(aug.TimelineEntries, blueprint.TimelineEntry{
		ID:          fmt.Sprintf("blend-%s-%s", sel.Source, sel.RecordID),
		Label:       fmt.Sprintf("Blended %s into blueprint context", sel.Label()),
		Description: aug.Record.TypeLabel,
		Timestamp:   now,
		Category:    "augmentation",
		Source:      string(sel.Source),
	})
	aug.Transcripts = append(aug.Transcripts, blueprint.TranscriptEstimate{
		Source:        sel.Label(),
		TokenEstimate: transcriptBaseTokens + transcriptTokensScenario*len(aug.Scenarios) + transcriptTokensNote*len(aug.Notes),
	})
	aug.Metrics = aug.Metrics.Normalized()
	return aug, nil
}

func (r *Resolver) fetch(ctx context.Context, sel blueprint.RecordSelection) (json.RawMessage, error) {
	if sel.HasInlineContext() {
		return sel.InlineContext, nil
	}
	for _, collection := range candidateCollections[sel.Source] {
		rec, err := r.records.Get(ctx, collection, sel.RecordID)
		if errors.Is(err, records.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch %s/%s: %w", collection, sel.RecordID, err)
		}
		return rec.Data, nil
	}
	log.Printf("resolver source=%s record=%s status=missing fallback=empty", sel.Source, sel.RecordID)
	return json.RawMessage(`{}`), nil
}

// derive decodes the record for its source. Inline context that is valid
// JSON but not an object is kept as the record summary.
func derive(sel blueprint.RecordSelection, data json.RawMessage) (blueprint.AugmentedRecord, error) {
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] != '{' && json.Valid(trimmed) {
		aug, err := deriveRecord(sel, json.RawMessage(`{}`))
		if err != nil {
			return blueprint.AugmentedRecord{}, err
		}
		var text string
		if json.Unmarshal(trimmed, &text) != nil {
			text = string(trimmed)
		}
		if text = strings.TrimSpace(text); text != "" {
			aug.Record.Summary = text
		}
		return aug, nil
	}
	return deriveRecord(sel, data)
}

func deriveRecord(sel blueprint.RecordSelection, data json.RawMessage) (blueprint.AugmentedRecord, error) {
	switch sel.Source {
	case blueprint.SourceEngagement:
		var rec blueprint.EngagementRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return blueprint.AugmentedRecord{}, fmt.Errorf("decode engagement %s: %w", sel.RecordID, err)
		}
		return deriveEngagement(sel, &rec), nil
	case blueprint.SourceTrial:
		var rec blueprint.TrialRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return blueprint.AugmentedRecord{}, fmt.Errorf("decode trial %s: %w", sel.RecordID, err)
		}
		return deriveTrial(sel, &rec), nil
	case blueprint.SourceReview:
		var rec blueprint.ReviewRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return blueprint.AugmentedRecord{}, fmt.Errorf("decode review %s: %w", sel.RecordID, err)
		}
		return deriveReview(sel, &rec), nil
	case blueprint.SourceHealth:
		var rec blueprint.HealthRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return blueprint.AugmentedRecord{}, fmt.Errorf("decode health %s: %w", sel.RecordID, err)
		}
		return deriveHealth(sel, &rec), nil
	}
	return blueprint.AugmentedRecord{}, fmt.Errorf("unsupported source %q", sel.Source)
}

func vary(recordID, salt string, lo, hi float64) float64 {
	return blueprint.Illustrative(recordID, salt, lo, hi)
}

func varyInt(recordID, salt string, lo, hi int) int {
	return lo + int(vary(recordID, salt, 0, float64(hi-lo+1)))
}

func convertNotes(in []blueprint.RecordNote, category string) []blueprint.Note {
	out := make([]blueprint.Note, 0, len(in))
	for _, n := range in {
		text := strings.TrimSpace(n.Note)
		if text == "" {
			continue
		}
		cat := strings.TrimSpace(n.Category)
		if cat == "" {
			cat = category
		}
		out = append(out, blueprint.Note{
			Author:    firstNonEmpty(n.Author, "unknown"),
			Note:      text,
			CreatedAt: n.CreatedAt,
			Category:  cat,
		})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
