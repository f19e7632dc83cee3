package render

import (
	"context"
	"fmt"
	"log"
	"path"
	"time"

	"blueprint/internal/blueprint"
	"blueprint/internal/blueprint/payload"
	"blueprint/internal/gateway/repository/artifact"
	"blueprint/internal/gateway/repository/topic"
)

// Subscriber is the subscription side of the topic broker.
type Subscriber interface {
	Subscribe(topic string, handler topic.Handler, opts ...topic.SubscribeOption) (func(), error)
}

// Worker renders documents as their payloads are persisted and reports the
// outcome on the rendered or render-failed topic.
type Worker struct {
	renderer Renderer
	payloads *payload.Store
	objects  artifact.Store
	pub      topic.Publisher
	timeout  time.Duration
}

func NewWorker(renderer Renderer, objects artifact.Store, pub topic.Publisher, timeout time.Duration) *Worker {
	return &Worker{
		renderer: renderer,
		payloads: payload.NewStore(objects),
		objects:  objects,
		pub:      pub,
		timeout:  timeout,
	}
}

// Path is where the rendered document of a blueprint is stored.
func Path(engagementID, blueprintID, ext string) string {
	return path.Join("blueprints", engagementID, blueprintID, "blueprint."+ext)
}

// Start subscribes the worker and returns the unsubscribe function.
func (w *Worker) Start(sub Subscriber) (func(), error) {
	return sub.Subscribe(blueprint.TopicPayloadPersisted, w.Handle, topic.WithTimeout(w.timeout))
}

// Handle renders one payload. Render failures are published rather than
// returned; an error is returned only when the outcome could not be published.
func (w *Worker) Handle(ctx context.Context, msg topic.Message) error {
	var ev blueprint.PayloadPersistedEvent
	if err := msg.Decode(&ev); err != nil {
		log.Printf("render: drop message=%s err=%v", msg.ID, err)
		return nil
	}
	start := time.Now()
	out, storagePath, err := w.render(ctx, ev)
	if err != nil {
		log.Printf("render: blueprint=%s attempt=%d duration_ms=%d status=failed err=%v",
			ev.BlueprintID, msg.Attempt, time.Since(start).Milliseconds(), err)
		return w.pub.Publish(ctx, blueprint.TopicRenderFailed, blueprint.RenderFailedEvent{
			BlueprintID:  ev.BlueprintID,
			EngagementID: ev.EngagementID,
			Message:      err.Error(),
		})
	}
	log.Printf("render: blueprint=%s bytes=%d duration_ms=%d status=ok",
		ev.BlueprintID, len(out.Body), time.Since(start).Milliseconds())
	return w.pub.Publish(ctx, blueprint.TopicRendered, blueprint.RenderedEvent{
		BlueprintID:  ev.BlueprintID,
		EngagementID: ev.EngagementID,
		StoragePath:  storagePath,
		ContentType:  out.ContentType,
	})
}

func (w *Worker) render(ctx context.Context, ev blueprint.PayloadPersistedEvent) (Output, string, error) {
	p, _, err := w.payloads.Load(ctx, blueprint.PayloadRef{StoragePath: ev.PayloadPath, ChecksumSHA256: ev.Checksum})
	if err != nil {
		return Output{}, "", err
	}
	out, err := w.renderer.Render(ctx, Meta{
		BlueprintID:  ev.BlueprintID,
		EngagementID: ev.EngagementID,
		CustomerName: ev.CustomerName,
	}, p)
	if err != nil {
		return Output{}, "", err
	}
	storagePath := Path(ev.EngagementID, ev.BlueprintID, out.Ext)
	meta := map[string]string{
		"blueprint-id": ev.BlueprintID,
		"theme":        Theme,
	}
	if err := w.objects.Put(ctx, storagePath, out.Body, out.ContentType, meta); err != nil {
		return Output{}, "", fmt.Errorf("store rendered document %s: %w", storagePath, err)
	}
	return out, storagePath, nil
}
