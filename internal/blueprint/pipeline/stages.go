package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"blueprint/internal/blueprint"
	"blueprint/internal/blueprint/render"
)

// OnRendered records the rendered artifact of a document that has none yet,
// moves it to rendered and hands it to the bundler. A repeated notification
// is a no-op. Failures mark the document failed and are not retried.
func (o *Orchestrator) OnRendered(ctx context.Context, ev blueprint.RenderedEvent) error {
	doc, err := o.docs.Get(ctx, ev.BlueprintID)
	if err != nil {
		log.Printf("pipeline: rendered blueprint=%s lookup_err=%v", ev.BlueprintID, err)
		return nil
	}
	if doc.RenderedArtifact != nil || doc.Status.Terminal() {
		return nil
	}

	ref, err := o.renderedRef(ctx, ev)
	if err != nil {
		o.fail(ctx, doc.ID, blueprint.StageRender, err)
		return nil
	}
	at := o.now()
	doc, err = o.docs.Update(ctx, doc.ID, func(d *blueprint.Document) error {
		if d.RenderedArtifact != nil {
			return blueprint.ErrAlreadyApplied
		}
		if err := blueprint.CheckTransition(d.Status, blueprint.StatusRendered); err != nil {
			return err
		}
		latency := at.Sub(d.GeneratedAt).Milliseconds()
		d.RenderedArtifact = &ref
		d.Status = blueprint.StatusRendered
		d.Analytics.DeliveryLatencyMs = &latency
		return nil
	})
	switch {
	case errors.Is(err, blueprint.ErrAlreadyApplied), errors.Is(err, blueprint.ErrIllegalTransition):
		return nil
	case err != nil:
		o.fail(ctx, ev.BlueprintID, blueprint.StageRender, fmt.Errorf("record rendered artifact: %w", err))
		return nil
	}
	log.Printf("pipeline: blueprint=%s bytes=%d latency_ms=%d status=rendered",
		doc.ID, ref.Bytes, *doc.Analytics.DeliveryLatencyMs)
	o.record(ctx, doc, "blueprint.rendered", "Blueprint rendered", map[string]any{
		"storagePath": ref.StoragePath,
		"bytes":       ref.Bytes,
	})
	o.publishStatus(ctx, doc, "")

	o.bundle(ctx, doc)
	return nil
}

func (o *Orchestrator) renderedRef(ctx context.Context, ev blueprint.RenderedEvent) (blueprint.ArtifactRef, error) {
	body, err := o.objects.Get(ctx, ev.StoragePath)
	if err != nil {
		return blueprint.ArtifactRef{}, fmt.Errorf("load rendered document %s: %w", ev.StoragePath, err)
	}
	url, err := o.objects.SignedURL(ctx, ev.StoragePath, o.cfg.SignedURLTTL)
	if err != nil {
		return blueprint.ArtifactRef{}, fmt.Errorf("sign rendered document url: %w", err)
	}
	return blueprint.ArtifactRef{
		StoragePath:    ev.StoragePath,
		ChecksumSHA256: blueprint.Checksum(body),
		Bytes:          int64(len(body)),
		ContentType:    ev.ContentType,
		DownloadURL:    url,
		Theme:          render.Theme,
		CreatedAt:      o.now(),
	}, nil
}

// OnRenderFailed marks a document that is still waiting for its rendering
// as failed.
func (o *Orchestrator) OnRenderFailed(ctx context.Context, ev blueprint.RenderFailedEvent) error {
	doc, err := o.docs.Get(ctx, ev.BlueprintID)
	if err != nil {
		log.Printf("pipeline: render_failed blueprint=%s lookup_err=%v", ev.BlueprintID, err)
		return nil
	}
	if doc.RenderedArtifact != nil || doc.Status.Terminal() {
		return nil
	}
	msg := ev.Message
	if msg == "" {
		msg = "renderer reported a failure"
	}
	o.fail(ctx, doc.ID, blueprint.StageRender, errors.New(msg))
	return nil
}

// bundle runs once per document: the bundled transition only succeeds for
// the first writer, and the bundle ready event follows it.
func (o *Orchestrator) bundle(ctx context.Context, doc blueprint.Document) {
	if doc.ArtifactBundle != nil || doc.RenderedArtifact == nil {
		return
	}
	id := doc.ID
	start := time.Now()
	ref, err := o.bundler.Bundle(ctx, doc)
	if err != nil {
		o.fail(ctx, id, blueprint.StageBundle, err)
		return
	}
	doc, err = o.docs.Update(ctx, id, func(d *blueprint.Document) error {
		if d.ArtifactBundle != nil {
			return blueprint.ErrAlreadyApplied
		}
		if err := blueprint.CheckTransition(d.Status, blueprint.StatusBundled); err != nil {
			return err
		}
		d.ArtifactBundle = &ref
		d.Status = blueprint.StatusBundled
		return nil
	})
	switch {
	case errors.Is(err, blueprint.ErrAlreadyApplied), errors.Is(err, blueprint.ErrIllegalTransition):
		return
	case err != nil:
		o.fail(ctx, id, blueprint.StageBundle, fmt.Errorf("record bundle: %w", err))
		return
	}
	log.Printf("pipeline: blueprint=%s bundle_bytes=%d duration_ms=%d status=bundled",
		doc.ID, ref.Bytes, time.Since(start).Milliseconds())
	o.record(ctx, doc, "blueprint.bundled", "Artifact bundle stored", map[string]any{
		"storagePath": ref.StoragePath,
		"checksum":    ref.ChecksumSHA256,
		"bytes":       ref.Bytes,
	})
	o.publishStatus(ctx, doc, "")

	doc, err = o.docs.Update(ctx, id, func(d *blueprint.Document) error {
		if err := blueprint.CheckTransition(d.Status, blueprint.StatusExportPending); err != nil {
			return err
		}
		d.Status = blueprint.StatusExportPending
		return nil
	})
	if err != nil {
		o.fail(ctx, id, blueprint.StageBundle, fmt.Errorf("queue export: %w", err))
		return
	}
	ev := blueprint.BundleReadyEvent{BlueprintID: doc.ID, EngagementID: doc.EngagementID}
	if err := o.topics.Publish(ctx, blueprint.TopicBundleReady, ev); err != nil {
		o.fail(ctx, doc.ID, blueprint.StageBundle, fmt.Errorf("publish bundle ready: %w", err))
		return
	}
	o.publishStatus(ctx, doc, "")
}

// OnBundleReady exports the analytics row of a bundled document. Unlike the
// other stages it returns export failures so delivery retries them.
func (o *Orchestrator) OnBundleReady(ctx context.Context, ev blueprint.BundleReadyEvent) error {
	doc, err := o.docs.Get(ctx, ev.BlueprintID)
	if errors.Is(err, blueprint.ErrNotFound) {
		log.Printf("pipeline: export blueprint=%s status=dropped reason=not_found", ev.BlueprintID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load blueprint %s: %w", ev.BlueprintID, err)
	}
	switch {
	case doc.Status == blueprint.StatusExportPending, doc.ExportRetryable():
	case doc.Status.Terminal():
		return nil
	default:
		return fmt.Errorf("blueprint %s is %s, not ready for export", doc.ID, doc.Status)
	}

	res, err := o.exporter.Export(ctx, doc)
	if err != nil {
		o.fail(ctx, doc.ID, blueprint.StageExport, err)
		return err
	}
	doc, err = o.docs.Update(ctx, ev.BlueprintID, func(d *blueprint.Document) error {
		if d.Status == blueprint.StatusSucceeded {
			return blueprint.ErrAlreadyApplied
		}
		if d.ExportRetryable() {
			d.Status = blueprint.StatusExportPending
		}
		if err := blueprint.CheckTransition(d.Status, blueprint.StatusSucceeded); err != nil {
			return err
		}
		jobID, at := res.JobID, res.ExportedAt
		d.Analytics.ExportJobID = &jobID
		d.Analytics.LastExportedAt = &at
		d.Status = blueprint.StatusSucceeded
		d.Error = nil
		return nil
	})
	switch {
	case errors.Is(err, blueprint.ErrAlreadyApplied):
		return nil
	case err != nil:
		o.fail(ctx, ev.BlueprintID, blueprint.StageExport, fmt.Errorf("record export: %w", err))
		return err
	}
	log.Printf("pipeline: blueprint=%s job=%s status=succeeded", doc.ID, res.JobID)
	o.record(ctx, doc, "blueprint.exported", "Analytics exported", map[string]any{"jobId": res.JobID})
	o.publishStatus(ctx, doc, "")
	return nil
}
