// Package pipeline owns the lifecycle of blueprint documents: it accepts
// generation requests and moves each document through
// processing -> rendered -> bundled -> export_pending -> succeeded | failed
// as the stage events arrive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"blueprint/internal/blueprint"
	"blueprint/internal/blueprint/export"
	"blueprint/internal/blueprint/payload"
	"blueprint/internal/gateway/repository/activity"
	"blueprint/internal/gateway/repository/artifact"
	"blueprint/internal/gateway/repository/document"
	"blueprint/internal/gateway/repository/topic"
)

// ContextAggregator builds the engagement snapshot for a request.
type ContextAggregator interface {
	Aggregate(ctx context.Context, engagementID string, emphasis *blueprint.Emphasis, selections []blueprint.RecordSelection, tailoredPrompt string) (blueprint.EngagementContextSnapshot, error)
}

// PayloadGenerator calls the text-generation collaborator.
type PayloadGenerator interface {
	Generate(ctx context.Context, snap blueprint.EngagementContextSnapshot, emphasis *blueprint.Emphasis, tone string) (blueprint.Payload, blueprint.ExtensionRun, error)
}

type ArtifactBundler interface {
	Bundle(ctx context.Context, doc blueprint.Document) (blueprint.ArtifactRef, error)
}

type AnalyticsExporter interface {
	Export(ctx context.Context, doc blueprint.Document) (export.Result, error)
}

// Subscriber is the subscription side of the topic broker.
type Subscriber interface {
	Subscribe(topic string, handler topic.Handler, opts ...topic.SubscribeOption) (func(), error)
}

type Config struct {
	IdempotencyWindow   time.Duration
	IdempotencyLookback int
	AcceptTimeout       time.Duration
	BundleTimeout       time.Duration
	ExportTimeout       time.Duration
	SignedURLTTL        time.Duration
}

func DefaultConfig() Config {
	return Config{
		IdempotencyWindow:   5 * time.Minute,
		IdempotencyLookback: 5,
		AcceptTimeout:       60 * time.Second,
		BundleTimeout:       5 * time.Minute,
		ExportTimeout:       5 * time.Minute,
		SignedURLTTL:        time.Hour,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.IdempotencyWindow <= 0 {
		c.IdempotencyWindow = def.IdempotencyWindow
	}
	if c.IdempotencyLookback <= 0 {
		c.IdempotencyLookback = def.IdempotencyLookback
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = def.AcceptTimeout
	}
	if c.BundleTimeout <= 0 {
		c.BundleTimeout = def.BundleTimeout
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = def.ExportTimeout
	}
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = def.SignedURLTTL
	}
	return c
}

// Deps are the collaborators of the Orchestrator. Activity and Now are
// optional.
type Deps struct {
	Documents  document.Store
	Objects    artifact.Store
	Aggregator ContextAggregator
	Generator  PayloadGenerator
	Bundler    ArtifactBundler
	Exporter   AnalyticsExporter
	Topics     topic.Publisher
	Activity   activity.Feed
	Now        func() time.Time
}

type Orchestrator struct {
	docs       document.Store
	objects    artifact.Store
	payloads   *payload.Store
	aggregator ContextAggregator
	generator  PayloadGenerator
	bundler    ArtifactBundler
	exporter   AnalyticsExporter
	topics     topic.Publisher
	activity   activity.Feed
	now        func() time.Time
	cfg        Config
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Documents == nil:
		return nil, errors.New("pipeline: document store is required")
	case deps.Objects == nil:
		return nil, errors.New("pipeline: object store is required")
	case deps.Aggregator == nil:
		return nil, errors.New("pipeline: context aggregator is required")
	case deps.Generator == nil:
		return nil, errors.New("pipeline: payload generator is required")
	case deps.Bundler == nil:
		return nil, errors.New("pipeline: bundler is required")
	case deps.Exporter == nil:
		return nil, errors.New("pipeline: exporter is required")
	case deps.Topics == nil:
		return nil, errors.New("pipeline: topic publisher is required")
	}
	if deps.Activity == nil {
		deps.Activity = activity.LogFeed{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{
		docs:       deps.Documents,
		objects:    deps.Objects,
		payloads:   payload.NewStore(deps.Objects),
		aggregator: deps.Aggregator,
		generator:  deps.Generator,
		bundler:    deps.Bundler,
		exporter:   deps.Exporter,
		topics:     deps.Topics,
		activity:   deps.Activity,
		now:        func() time.Time { return deps.Now().UTC() },
		cfg:        cfg.withDefaults(),
	}, nil
}

// Start subscribes the stage handlers and returns a function that detaches
// all of them.
func (o *Orchestrator) Start(sub Subscriber) (func(), error) {
	var stops []func()
	stopAll := func() {
		for _, stop := range stops {
			stop()
		}
	}
	for _, s := range []struct {
		topic   string
		handler topic.Handler
		timeout time.Duration
	}{
		{blueprint.TopicRendered, o.handleRendered, o.cfg.BundleTimeout},
		{blueprint.TopicRenderFailed, o.handleRenderFailed, o.cfg.AcceptTimeout},
		{blueprint.TopicBundleReady, o.handleBundleReady, o.cfg.ExportTimeout},
	} {
		stop, err := sub.Subscribe(s.topic, s.handler, topic.WithTimeout(s.timeout))
		if err != nil {
			stopAll()
			return nil, fmt.Errorf("subscribe %s: %w", s.topic, err)
		}
		stops = append(stops, stop)
	}
	return stopAll, nil
}

// Get returns the current state of a blueprint document.
func (o *Orchestrator) Get(ctx context.Context, id string) (blueprint.Document, error) {
	return o.docs.Get(ctx, id)
}

func (o *Orchestrator) handleRendered(ctx context.Context, msg topic.Message) error {
	var ev blueprint.RenderedEvent
	if err := msg.Decode(&ev); err != nil {
		log.Printf("pipeline: drop message=%s err=%v", msg.ID, err)
		return nil
	}
	return o.OnRendered(ctx, ev)
}

func (o *Orchestrator) handleRenderFailed(ctx context.Context, msg topic.Message) error {
	var ev blueprint.RenderFailedEvent
	if err := msg.Decode(&ev); err != nil {
		log.Printf("pipeline: drop message=%s err=%v", msg.ID, err)
		return nil
	}
	return o.OnRenderFailed(ctx, ev)
}

func (o *Orchestrator) handleBundleReady(ctx context.Context, msg topic.Message) error {
	var ev blueprint.BundleReadyEvent
	if err := msg.Decode(&ev); err != nil {
		log.Printf("pipeline: drop message=%s err=%v", msg.ID, err)
		return nil
	}
	return o.OnBundleReady(ctx, ev)
}

// publishStatus is best-effort; the document itself is the record of truth.
func (o *Orchestrator) publishStatus(ctx context.Context, doc blueprint.Document, message string) {
	ev := blueprint.StatusEvent{
		BlueprintID:  doc.ID,
		EngagementID: doc.EngagementID,
		Status:       doc.Status,
		Message:      message,
		At:           o.now(),
	}
	if err := o.topics.Publish(ctx, blueprint.TopicStatus, ev); err != nil {
		log.Printf("pipeline: blueprint=%s status=%s publish_status_err=%v", doc.ID, doc.Status, err)
	}
}

func (o *Orchestrator) record(ctx context.Context, doc blueprint.Document, typ, message string, meta map[string]any) {
	o.activity.Record(ctx, doc.EngagementID, doc.ID, activity.Event{
		Type:     typ,
		Status:   string(doc.Status),
		Message:  message,
		Metadata: meta,
	})
}

// failureWriteTimeout bounds writes that record a failure after the stage
// context has ended.
const failureWriteTimeout = 10 * time.Second

// detached keeps ctx values but not its deadline, so a stage that timed out
// can still record its failure.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
}

// fail moves the document to failed with the stage error. A document that
// already reached a terminal state keeps it, except that a repeated export
// failure refreshes the recorded export error.
func (o *Orchestrator) fail(ctx context.Context, id, stage string, cause error) {
	ctx, cancel := detached(ctx)
	defer cancel()
	at := o.now()
	doc, err := o.docs.Update(ctx, id, func(d *blueprint.Document) error {
		switch {
		case d.Status == blueprint.StatusFailed && !(stage == blueprint.StageExport && d.ExportRetryable()):
			return blueprint.ErrAlreadyApplied
		case d.Status != blueprint.StatusFailed:
			if err := blueprint.CheckTransition(d.Status, blueprint.StatusFailed); err != nil {
				return err
			}
		}
		d.Status = blueprint.StatusFailed
		d.Error = &blueprint.StageError{Message: cause.Error(), Stage: stage, At: at}
		return nil
	})
	if err != nil {
		log.Printf("pipeline: blueprint=%s stage=%s cause=%v record_failure_err=%v", id, stage, cause, err)
		return
	}
	log.Printf("pipeline: blueprint=%s stage=%s status=failed err=%v", id, stage, cause)
	o.record(ctx, doc, "blueprint."+stage+"_failed", cause.Error(), map[string]any{"stage": stage})
	o.publishStatus(ctx, doc, cause.Error())
}
