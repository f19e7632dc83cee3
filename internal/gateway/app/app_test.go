package app

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"blueprint/internal/blueprint"
	"blueprint/internal/gateway/config"
	"blueprint/internal/gateway/handler/rpc"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:     ":0",
		Env:      "test",
		LLM:      config.LLMConfig{Provider: "fake", Retries: 1},
		Renderer: config.RendererConfig{Kind: "html"},
		Pipeline: config.PipelineConfig{
			IdempotencyWindow:   5 * time.Minute,
			IdempotencyLookback: 5,
			AcceptTimeout:       10 * time.Second,
			RenderTimeout:       10 * time.Second,
			BundleTimeout:       10 * time.Second,
			ExportTimeout:       10 * time.Second,
			SignedURLTTL:        time.Hour,
		},
		Topic: config.TopicConfig{MaxAttempts: 3, BaseBackoff: 10 * time.Millisecond, Workers: 2},
	}
}

func TestInMemoryGatewayCompletesBlueprint(t *testing.T) {
	ctx := context.Background()
	a, err := NewWithConfig(ctx, testConfig())
	require.NoError(t, err)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Shutdown(ctx)
	})

	client := rpc.NewBlueprintClient(srv.Client(), srv.URL, blueprint.Requester{UserID: "u-1", Email: "se@example.com"})
	res, err := client.RequestBlueprint(ctx, blueprint.GenerationRequest{EngagementID: "ENG-7", ExecutiveTone: "confident"})
	require.NoError(t, err)
	require.Equal(t, blueprint.StatusProcessing, res.Status)

	var doc blueprint.Document
	require.Eventually(t, func() bool {
		doc, err = client.GetBlueprint(ctx, res.BlueprintID)
		return err == nil && doc.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, blueprint.StatusSucceeded, doc.Status, "error: %+v", doc.Error)
	require.NotNil(t, doc.RenderedArtifact)
	require.NotNil(t, doc.ArtifactBundle)
	require.Equal(t, "u-1", doc.GeneratedBy)
}

func TestUnknownLLMProviderFailsStartup(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Provider = "llama"
	_, err := NewWithConfig(context.Background(), cfg)
	require.ErrorContains(t, err, "llama")
}
