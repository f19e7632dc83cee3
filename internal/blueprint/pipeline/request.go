package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"blueprint/internal/blueprint"
)

// RequestGeneration validates req, reuses a recent run for the same
// engagement when one exists, and otherwise aggregates context, generates
// and persists the payload, and creates the document in processing.
//
// Validation and authorization errors are returned. A collaborator failure
// produces a document in failed whose identity is returned; only a store
// that cannot record that document yields an error.
func (o *Orchestrator) RequestGeneration(ctx context.Context, req blueprint.GenerationRequest, requester blueprint.Requester) (blueprint.GenerationResult, error) {
	if strings.TrimSpace(requester.UserID) == "" {
		return blueprint.GenerationResult{}, blueprint.ErrUnauthenticated
	}
	if err := req.Normalize(); err != nil {
		return blueprint.GenerationResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.AcceptTimeout)
	defer cancel()

	if existing, ok := o.reusable(ctx, req.EngagementID); ok {
		log.Printf("pipeline: engagement=%s blueprint=%s status=%s reused=true", req.EngagementID, existing.ID, existing.Status)
		return result(existing), nil
	}

	start := time.Now()
	now := o.now()
	doc := blueprint.Document{
		ID:               blueprint.NewDocumentID(req.EngagementID, now),
		EngagementID:     req.EngagementID,
		CustomerName:     req.EngagementID,
		GeneratedBy:      requester.UserID,
		GeneratedAt:      now,
		Status:           blueprint.StatusProcessing,
		Emphasis:         req.Emphasis,
		RecordSelections: req.RecordSelections,
		TailoredPrompt:   req.TailoredPrompt,
		ExecutiveTone:    req.ExecutiveTone,
	}
	p, err := o.prepare(ctx, req, now, &doc)
	if err != nil {
		return o.createFailed(ctx, doc, err)
	}
	if err := o.docs.Create(ctx, doc); err != nil {
		return o.createFailed(ctx, doc, fmt.Errorf("create document: %w", err))
	}
	log.Printf("pipeline: engagement=%s blueprint=%s sections=%d duration_ms=%d status=processing",
		doc.EngagementID, doc.ID, len(p.Sections), time.Since(start).Milliseconds())
	o.record(ctx, doc, "blueprint.requested", "Blueprint generation started", map[string]any{
		"requestedBy": requester.UserID,
		"selections":  len(req.RecordSelections),
		"payloadPath": doc.Payload.StoragePath,
	})
	o.publishStatus(ctx, doc, "")

	ev := blueprint.PayloadPersistedEvent{
		BlueprintID:  doc.ID,
		EngagementID: doc.EngagementID,
		CustomerName: doc.CustomerName,
		PayloadPath:  doc.Payload.StoragePath,
		Checksum:     doc.Payload.ChecksumSHA256,
	}
	if err := o.topics.Publish(ctx, blueprint.TopicPayloadPersisted, ev); err != nil {
		o.fail(ctx, doc.ID, blueprint.StageRequest, fmt.Errorf("publish payload persisted: %w", err))
		return blueprint.GenerationResult{BlueprintID: doc.ID, Status: blueprint.StatusFailed, PayloadPath: doc.Payload.StoragePath}, nil
	}
	return result(doc), nil
}

// prepare runs aggregation, generation and payload persistence, filling the
// matching document fields.
func (o *Orchestrator) prepare(ctx context.Context, req blueprint.GenerationRequest, now time.Time, doc *blueprint.Document) (blueprint.Payload, error) {
	snap, err := o.aggregator.Aggregate(ctx, req.EngagementID, req.Emphasis, req.RecordSelections, req.TailoredPrompt)
	if err != nil {
		return blueprint.Payload{}, fmt.Errorf("aggregate context: %w", err)
	}
	doc.ContextSnapshot = snap
	if snap.CustomerName != "" {
		doc.CustomerName = snap.CustomerName
	}
	doc.Analytics = initialAnalytics(snap)

	p, run, err := o.generator.Generate(ctx, snap, req.Emphasis, req.ExecutiveTone)
	if err != nil {
		return blueprint.Payload{}, fmt.Errorf("generate payload: %w", err)
	}
	doc.ExtensionRun = &run
	doc.Analytics.Categories = append([]string(nil), p.RecommendationCategories...)

	ref, err := o.payloads.Persist(ctx, req.EngagementID, now, p)
	if err != nil {
		return blueprint.Payload{}, err
	}
	doc.Payload = ref
	return p, nil
}

// createFailed records the request failure as a failed document. When not
// even that document can be stored, the caller gets an error instead of an
// identity nobody can read back.
func (o *Orchestrator) createFailed(ctx context.Context, doc blueprint.Document, cause error) (blueprint.GenerationResult, error) {
	ctx, cancel := detached(ctx)
	defer cancel()
	doc.Status = blueprint.StatusFailed
	doc.Error = &blueprint.StageError{Message: cause.Error(), Stage: blueprint.StageRequest, At: o.now()}
	log.Printf("pipeline: engagement=%s blueprint=%s stage=request status=failed err=%v", doc.EngagementID, doc.ID, cause)
	if err := o.docs.Create(ctx, doc); err != nil {
		log.Printf("pipeline: blueprint=%s record_failure_err=%v", doc.ID, err)
		return blueprint.GenerationResult{}, fmt.Errorf("record failed request %s: %w (cause: %v)", doc.ID, err, cause)
	}
	o.record(ctx, doc, "blueprint.request_failed", cause.Error(), map[string]any{"stage": blueprint.StageRequest})
	o.publishStatus(ctx, doc, cause.Error())
	return result(doc), nil
}

// reusable returns the latest document of the engagement that is still in
// flight or finished inside the idempotency window.
func (o *Orchestrator) reusable(ctx context.Context, engagementID string) (blueprint.Document, bool) {
	docs, err := o.docs.ListByEngagement(ctx, engagementID, o.cfg.IdempotencyLookback)
	if err != nil {
		log.Printf("pipeline: engagement=%s idempotency_lookup_err=%v", engagementID, err)
		return blueprint.Document{}, false
	}
	now := o.now()
	for _, d := range docs {
		if d.Status == blueprint.StatusFailed {
			continue
		}
		if d.GeneratedAt.IsZero() || now.Sub(d.GeneratedAt) <= o.cfg.IdempotencyWindow {
			return d, true
		}
	}
	return blueprint.Document{}, false
}

func initialAnalytics(snap blueprint.EngagementContextSnapshot) blueprint.AnalyticsSnapshot {
	coverage := snap.Metrics.CoveragePercentage
	risk := snap.Metrics.RiskScore
	automation := snap.Metrics.AutomationConfidence
	scenarios := len(snap.Scenarios)
	notes := len(snap.Notes)
	transcripts := len(snap.Transcripts)
	return blueprint.AnalyticsSnapshot{
		CoveragePercentage:   &coverage,
		RiskScore:            &risk,
		AutomationConfidence: &automation,
		ScenarioCount:        &scenarios,
		NotesCount:           &notes,
		TranscriptCount:      &transcripts,
	}
}

func result(doc blueprint.Document) blueprint.GenerationResult {
	return blueprint.GenerationResult{
		BlueprintID: doc.ID,
		Status:      doc.Status,
		PayloadPath: doc.Payload.StoragePath,
	}
}
