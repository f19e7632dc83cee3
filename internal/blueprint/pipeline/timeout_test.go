package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"blueprint/internal/blueprint"
	"blueprint/internal/blueprint/aggregate"
	"blueprint/internal/blueprint/bundle"
	"blueprint/internal/blueprint/export"
	"blueprint/internal/blueprint/generate"
	"blueprint/internal/blueprint/payload"
	"blueprint/internal/blueprint/resolver"
	"blueprint/internal/gateway/repository/document"
)

// deadlineStore rejects calls on a finished context, like a SQL store that
// cannot begin a transaction.
type deadlineStore struct {
	*document.MemoryStore
	createErr error
}

func (s *deadlineStore) Create(ctx context.Context, doc blueprint.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.createErr != nil {
		return s.createErr
	}
	return s.MemoryStore.Create(ctx, doc)
}

func (s *deadlineStore) Update(ctx context.Context, id string, mutate func(*blueprint.Document) error) (blueprint.Document, error) {
	if err := ctx.Err(); err != nil {
		return blueprint.Document{}, err
	}
	return s.MemoryStore.Update(ctx, id, mutate)
}

type stalledBundler struct{}

func (stalledBundler) Bundle(ctx context.Context, _ blueprint.Document) (blueprint.ArtifactRef, error) {
	<-ctx.Done()
	return blueprint.ArtifactRef{}, ctx.Err()
}

type stalledGenerator struct{}

func (stalledGenerator) Generate(ctx context.Context, _ blueprint.EngagementContextSnapshot, _ *blueprint.Emphasis, _ string) (blueprint.Payload, blueprint.ExtensionRun, error) {
	<-ctx.Done()
	return blueprint.Payload{}, blueprint.ExtensionRun{}, ctx.Err()
}

func newStrictOrchestrator(t *testing.T, h *harness, store document.Store, bundler ArtifactBundler, gen PayloadGenerator, cfg Config) *Orchestrator {
	t.Helper()
	if bundler == nil {
		bundler = bundle.New(h.objects, payload.NewStore(h.objects), time.Hour, h.clock.Now)
	}
	if gen == nil {
		gen = generate.New(h.llm, h.clock.Now)
	}
	orch, err := New(Deps{
		Documents:  store,
		Objects:    h.objects,
		Aggregator: aggregate.New(h.records, resolver.New(h.records), h.clock.Now),
		Generator:  gen,
		Bundler:    bundler,
		Exporter:   export.New(h.wh, export.Config{Enabled: true, Dataset: "analytics", Table: "blueprints"}, h.clock.Now),
		Topics:     h.pub,
		Activity:   h.feed,
		Now:        h.clock.Now,
	}, cfg)
	require.NoError(t, err)
	return orch
}

func TestBundleTimeoutIsRecordedAsFailure(t *testing.T) {
	h := newHarness(t, nil, true)
	res := h.request(t, "E1")
	ev := h.rendered(t, res.BlueprintID)

	strict := newStrictOrchestrator(t, h, &deadlineStore{MemoryStore: h.docs}, stalledBundler{}, nil, DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, strict.OnRendered(ctx, ev))

	doc := h.get(t, res.BlueprintID)
	require.Equal(t, blueprint.StatusFailed, doc.Status)
	require.Equal(t, blueprint.StageBundle, doc.Error.Stage)
	require.Contains(t, doc.Error.Message, context.DeadlineExceeded.Error())
	require.Zero(t, h.pub.Count(blueprint.TopicBundleReady))
}

func TestAcceptTimeoutStillCreatesFailedDocument(t *testing.T) {
	h := newHarness(t, nil, true)
	cfg := DefaultConfig()
	cfg.AcceptTimeout = 50 * time.Millisecond
	strict := newStrictOrchestrator(t, h, &deadlineStore{MemoryStore: h.docs}, nil, stalledGenerator{}, cfg)

	res, err := strict.RequestGeneration(context.Background(), blueprint.GenerationRequest{EngagementID: "E1"}, consultant)
	require.NoError(t, err)
	require.Equal(t, blueprint.StatusFailed, res.Status)

	doc := h.get(t, res.BlueprintID)
	require.Equal(t, blueprint.StatusFailed, doc.Status)
	require.Equal(t, blueprint.StageRequest, doc.Error.Stage)
}

func TestRequestFailureThatCannotBeStoredIsReturned(t *testing.T) {
	h := newHarness(t, nil, true)
	h.llm.FailWith(errors.New("upstream unavailable"))
	store := &deadlineStore{MemoryStore: h.docs, createErr: errors.New("db down")}
	strict := newStrictOrchestrator(t, h, store, nil, nil, DefaultConfig())

	res, err := strict.RequestGeneration(context.Background(), blueprint.GenerationRequest{EngagementID: "E1"}, consultant)
	require.ErrorContains(t, err, "db down")
	require.False(t, blueprint.IsValidation(err))
	require.Empty(t, res.BlueprintID)
}
