package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"blueprint/internal/blueprint"
	"blueprint/internal/blueprint/aggregate"
	"blueprint/internal/blueprint/bundle"
	"blueprint/internal/blueprint/export"
	"blueprint/internal/blueprint/generate"
	"blueprint/internal/blueprint/payload"
	"blueprint/internal/blueprint/render"
	"blueprint/internal/blueprint/resolver"
	"blueprint/internal/gateway/repository/activity"
	"blueprint/internal/gateway/repository/artifact"
	"blueprint/internal/gateway/repository/document"
	"blueprint/internal/gateway/repository/records"
	"blueprint/internal/gateway/repository/topic"
	"blueprint/internal/gateway/repository/warehouse"
	"blueprint/internal/llm"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	counts map[string]int
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts == nil {
		p.counts = make(map[string]int)
	}
	p.counts[topic]++
	return nil
}

func (p *recordingPublisher) Count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[topic]
}

type harness struct {
	orch    *Orchestrator
	docs    *document.MemoryStore
	objects *artifact.MemoryStore
	records *records.MemoryStore
	wh      *warehouse.MemoryWarehouse
	llm     *llm.FakeClient
	feed    *activity.MemoryFeed
	pub     *recordingPublisher
	clock   *clock
}

func newHarness(t *testing.T, pub topic.Publisher, exportEnabled bool) *harness {
	t.Helper()
	h := &harness{
		docs:    document.NewMemoryStore(),
		objects: artifact.NewMemoryStore(),
		records: records.NewMemoryStore(),
		wh:      warehouse.NewMemoryWarehouse(),
		llm:     llm.NewFakeClient(),
		feed:    activity.NewMemoryFeed(),
		clock:   &clock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
	}
	if pub == nil {
		h.pub = &recordingPublisher{}
		pub = h.pub
	}
	orch, err := New(Deps{
		Documents:  h.docs,
		Objects:    h.objects,
		Aggregator: aggregate.New(h.records, resolver.New(h.records, resolver.WithClock(h.clock.Now)), h.clock.Now),
		Generator:  generate.New(h.llm, h.clock.Now),
		Bundler:    bundle.New(h.objects, payload.NewStore(h.objects), time.Hour, h.clock.Now),
		Exporter:   export.New(h.wh, export.Config{Enabled: exportEnabled, Dataset: "analytics", Table: "blueprints"}, h.clock.Now),
		Topics:     pub,
		Activity:   h.feed,
		Now:        h.clock.Now,
	}, DefaultConfig())
	require.NoError(t, err)
	h.orch = orch
	return h
}

var consultant = blueprint.Requester{UserID: "u-17", Email: "consultant@example.com"}

func (h *harness) request(t *testing.T, engagementID string) blueprint.GenerationResult {
	t.Helper()
	res, err := h.orch.RequestGeneration(context.Background(), blueprint.GenerationRequest{EngagementID: engagementID}, consultant)
	require.NoError(t, err)
	return res
}

// rendered stores a rendered document for id the way the render worker does.
func (h *harness) rendered(t *testing.T, id string) blueprint.RenderedEvent {
	t.Helper()
	doc, err := h.docs.Get(context.Background(), id)
	require.NoError(t, err)
	p, _, err := payload.NewStore(h.objects).Load(context.Background(), doc.Payload)
	require.NoError(t, err)
	out, err := render.NewHTMLRenderer().Render(context.Background(), render.Meta{BlueprintID: id, EngagementID: doc.EngagementID}, p)
	require.NoError(t, err)
	path := render.Path(doc.EngagementID, id, out.Ext)
	require.NoError(t, h.objects.Put(context.Background(), path, out.Body, out.ContentType, nil))
	return blueprint.RenderedEvent{BlueprintID: id, EngagementID: doc.EngagementID, StoragePath: path, ContentType: out.ContentType}
}

func (h *harness) get(t *testing.T, id string) blueprint.Document {
	t.Helper()
	doc, err := h.orch.Get(context.Background(), id)
	require.NoError(t, err)
	return doc
}

func TestRequestGenerationWithoutRecordsSynthesizesContext(t *testing.T) {
	h := newHarness(t, nil, true)
	res := h.request(t, "E1")
	require.Equal(t, blueprint.StatusProcessing, res.Status)

	doc := h.get(t, res.BlueprintID)
	require.Len(t, doc.ContextSnapshot.Scenarios, 1)
	require.Len(t, doc.ContextSnapshot.Notes, 2)
	require.Equal(t, consultant.UserID, doc.GeneratedBy)
	require.NotNil(t, doc.ExtensionRun)
	require.Equal(t, generate.ExtensionID, doc.ExtensionRun.ExtensionID)
	require.Equal(t, res.PayloadPath, doc.Payload.StoragePath)
	require.Equal(t, 1, h.pub.Count(blueprint.TopicPayloadPersisted))

	stored, err := h.objects.Get(context.Background(), doc.Payload.StoragePath)
	require.NoError(t, err)
	require.NoError(t, blueprint.VerifyChecksum(stored, doc.Payload.ChecksumSHA256))
	require.Equal(t, int64(len(stored)), doc.Payload.Bytes)

	entries := h.feed.Entries(res.BlueprintID)
	require.NotEmpty(t, entries)
	require.Equal(t, "blueprint.requested", entries[0].Type)
}

func TestRequestGenerationIsIdempotentWithinWindow(t *testing.T) {
	h := newHarness(t, nil, true)
	first := h.request(t, "E1")
	h.clock.Advance(4 * time.Minute)
	second := h.request(t, "E1")
	require.Equal(t, first.BlueprintID, second.BlueprintID)
	require.Equal(t, int64(1), h.llm.Calls())

	h.clock.Advance(2 * time.Minute)
	third := h.request(t, "E1")
	require.NotEqual(t, first.BlueprintID, third.BlueprintID)
}

func TestRequestGenerationDoesNotReuseFailedRuns(t *testing.T) {
	h := newHarness(t, nil, true)
	h.llm.FailWith(errors.New("upstream unavailable"))
	failed := h.request(t, "E1")
	require.Equal(t, blueprint.StatusFailed, failed.Status)
	doc := h.get(t, failed.BlueprintID)
	require.Equal(t, blueprint.StageRequest, doc.Error.Stage)
	require.Contains(t, doc.Error.Message, "upstream unavailable")

	h.llm.FailWith(nil)
	retry := h.request(t, "E1")
	require.NotEqual(t, failed.BlueprintID, retry.BlueprintID)
	require.Equal(t, blueprint.StatusProcessing, retry.Status)
}

func TestRequestGenerationRejectsBeforeCreatingState(t *testing.T) {
	h := newHarness(t, nil, true)
	_, err := h.orch.RequestGeneration(context.Background(), blueprint.GenerationRequest{EngagementID: "E1"}, blueprint.Requester{})
	require.ErrorIs(t, err, blueprint.ErrUnauthenticated)

	_, err = h.orch.RequestGeneration(context.Background(), blueprint.GenerationRequest{EngagementID: "  "}, consultant)
	require.True(t, blueprint.IsValidation(err))

	docs, err := h.docs.ListByEngagement(context.Background(), "E1", 10)
	require.NoError(t, err)
	require.Empty(t, docs)
	require.Zero(t, h.llm.Calls())
}

func TestConcurrentRenderedNotificationsBundleOnce(t *testing.T) {
	h := newHarness(t, nil, true)
	res := h.request(t, "E1")
	ev := h.rendered(t, res.BlueprintID)
	h.clock.Advance(2 * time.Second)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.orch.OnRendered(context.Background(), ev)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	doc := h.get(t, res.BlueprintID)
	require.Equal(t, blueprint.StatusExportPending, doc.Status)
	require.NotNil(t, doc.RenderedArtifact)
	require.NotNil(t, doc.ArtifactBundle)
	require.Equal(t, render.Theme, doc.RenderedArtifact.Theme)
	require.Equal(t, int64(2000), *doc.Analytics.DeliveryLatencyMs)
	require.Equal(t, 1, h.pub.Count(blueprint.TopicBundleReady))

	archive, err := h.objects.Get(context.Background(), doc.ArtifactBundle.StoragePath)
	require.NoError(t, err)
	require.NoError(t, blueprint.VerifyChecksum(archive, doc.ArtifactBundle.ChecksumSHA256))
	rendered, err := h.objects.Get(context.Background(), doc.RenderedArtifact.StoragePath)
	require.NoError(t, err)
	require.NoError(t, blueprint.VerifyChecksum(rendered, doc.RenderedArtifact.ChecksumSHA256))
}

func TestRenderFailureNeverBundles(t *testing.T) {
	h := newHarness(t, nil, true)
	res := h.request(t, "E1")
	require.NoError(t, h.orch.OnRenderFailed(context.Background(), blueprint.RenderFailedEvent{
		BlueprintID: res.BlueprintID, EngagementID: "E1", Message: "renderer crashed",
	}))

	doc := h.get(t, res.BlueprintID)
	require.Equal(t, blueprint.StatusFailed, doc.Status)
	require.Equal(t, "renderer crashed", doc.Error.Message)

	require.NoError(t, h.orch.OnRendered(context.Background(), h.rendered(t, res.BlueprintID)))
	doc = h.get(t, res.BlueprintID)
	require.Equal(t, blueprint.StatusFailed, doc.Status)
	require.Nil(t, doc.ArtifactBundle)
	require.Zero(t, h.pub.Count(blueprint.TopicBundleReady))
}

func TestRenderedDocumentMissingFromStorageFails(t *testing.T) {
	h := newHarness(t, nil, true)
	res := h.request(t, "E1")
	require.NoError(t, h.orch.OnRendered(context.Background(), blueprint.RenderedEvent{
		BlueprintID: res.BlueprintID, StoragePath: "blueprints/E1/missing.html",
	}))
	doc := h.get(t, res.BlueprintID)
	require.Equal(t, blueprint.StatusFailed, doc.Status)
	require.Equal(t, blueprint.StageRender, doc.Error.Stage)
}

func TestExportRetriesUntilWarehouseRecovers(t *testing.T) {
	h := newHarness(t, nil, true)
	res := h.request(t, "E1")
	require.NoError(t, h.orch.OnRendered(context.Background(), h.rendered(t, res.BlueprintID)))
	ev := blueprint.BundleReadyEvent{BlueprintID: res.BlueprintID, EngagementID: "E1"}

	h.wh.FailWith(errors.New("quota exceeded"))
	require.Error(t, h.orch.OnBundleReady(context.Background(), ev))
	doc := h.get(t, res.BlueprintID)
	require.Equal(t, blueprint.StatusFailed, doc.Status)
	require.Equal(t, blueprint.StageExport, doc.Error.Stage)

	h.wh.FailWith(nil)
	require.NoError(t, h.orch.OnBundleReady(context.Background(), ev))
	doc = h.get(t, res.BlueprintID)
	require.Equal(t, blueprint.StatusSucceeded, doc.Status)
	require.Nil(t, doc.Error)
	require.NotNil(t, doc.Analytics.ExportJobID)
	require.NotNil(t, doc.Analytics.LastExportedAt)
	require.Len(t, h.wh.Rows("analytics", "blueprints"), 1)

	// Redelivery after success is a no-op.
	require.NoError(t, h.orch.OnBundleReady(context.Background(), ev))
	require.Len(t, h.wh.Rows("analytics", "blueprints"), 1)
}

func TestExportDisabledRecordsSentinelJob(t *testing.T) {
	h := newHarness(t, nil, false)
	res := h.request(t, "E1")
	require.NoError(t, h.orch.OnRendered(context.Background(), h.rendered(t, res.BlueprintID)))
	require.NoError(t, h.orch.OnBundleReady(context.Background(), blueprint.BundleReadyEvent{BlueprintID: res.BlueprintID}))

	doc := h.get(t, res.BlueprintID)
	require.Equal(t, blueprint.StatusSucceeded, doc.Status)
	require.Equal(t, export.DisabledJobID, *doc.Analytics.ExportJobID)
	require.Empty(t, h.wh.Rows("analytics", "blueprints"))
}

func TestExportDropsUnknownDocument(t *testing.T) {
	h := newHarness(t, nil, true)
	require.NoError(t, h.orch.OnBundleReady(context.Background(), blueprint.BundleReadyEvent{BlueprintID: "missing"}))
}

func TestPipelineRunsOverBroker(t *testing.T) {
	broker := topic.NewBroker(topic.Config{BaseBackoff: 10 * time.Millisecond, Workers: 2})
	t.Cleanup(func() { broker.Close(context.Background()) })
	h := newHarness(t, broker, true)

	stopOrch, err := h.orch.Start(broker)
	require.NoError(t, err)
	t.Cleanup(stopOrch)
	stopWorker, err := render.NewWorker(render.NewHTMLRenderer(), h.objects, broker, time.Minute).Start(broker)
	require.NoError(t, err)
	t.Cleanup(stopWorker)

	res := h.request(t, "E1")
	require.Eventually(t, func() bool {
		return h.get(t, res.BlueprintID).Status == blueprint.StatusSucceeded
	}, 5*time.Second, 10*time.Millisecond)

	doc := h.get(t, res.BlueprintID)
	require.Equal(t, "blueprints/E1/"+res.BlueprintID+"/blueprint.html", doc.RenderedArtifact.StoragePath)
	require.Equal(t, "blueprints/E1/"+res.BlueprintID+"/bundle.zip", doc.ArtifactBundle.StoragePath)
	require.Len(t, h.wh.Rows("analytics", "blueprints"), 1)
}
