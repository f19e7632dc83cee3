package generate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"blueprint/internal/blueprint"
	"blueprint/internal/llm"
)

type cannedClient struct {
	raw    string
	prompt string
	phase  string
}

func (c *cannedClient) Name() string { return "canned" }
func (c *cannedClient) Close() error { return nil }
func (c *cannedClient) GenerateJSON(ctx context.Context, prompt string, _ any) (json.RawMessage, error) {
	c.prompt = prompt
	c.phase = llm.PhaseFrom(ctx)
	return json.RawMessage(c.raw), nil
}

func snapshot() blueprint.EngagementContextSnapshot {
	return blueprint.EngagementContextSnapshot{
		EngagementID:   "E1",
		CustomerName:   "Acme",
		Summary:        "Acme engagement.",
		Metrics:        blueprint.MetricSnapshot{RiskScore: 0.42, CoveragePercentage: 64},
		TailoredPrompt: "stress SOC automation",
		Scenarios:      []blueprint.ScenarioOutcome{{ID: "s1", Name: "Ransomware"}},
	}
}

func TestGenerateWithFakeClientFillsDefaults(t *testing.T) {
	g := New(llm.NewFakeClient(), nil)
	emphasis := &blueprint.Emphasis{Focus: []string{"automation"}}
	p, run, err := g.Generate(context.Background(), snapshot(), emphasis, "board-ready")
	require.NoError(t, err)
	require.Len(t, p.Sections, 2)
	require.Equal(t, snapshot().Metrics, p.Metrics)
	require.Equal(t, ExtensionID, run.ExtensionID)
	require.Len(t, run.Prompts, 4)
	require.Contains(t, run.Prompts[1], "board-ready")
	require.Contains(t, run.Prompts[3], "stress SOC automation")
	require.Positive(t, run.CompletionTokens)
}

func TestGenerateMeasuresLatencyAndTagsPhase(t *testing.T) {
	ticks := []time.Time{time.Unix(100, 0), time.Unix(100, int64(1500*time.Millisecond))}
	now := func() time.Time {
		t := ticks[0]
		ticks = ticks[1:]
		return t
	}
	client := &cannedClient{raw: `{"sections":[{"title":""}]}`}
	p, run, err := New(client, now).Generate(context.Background(), snapshot(), nil, "")
	require.NoError(t, err)
	require.Equal(t, int64(1500), run.LatencyMs)
	require.Equal(t, Phase, client.phase)
	require.Equal(t, "Section 1", p.Sections[0].Title)
	require.Equal(t, "Acme engagement blueprint", p.ExecutiveTheme)
	require.Equal(t, "Acme engagement.", p.NarrativeSummary)
}

func TestGenerateRejectsEmptyPayload(t *testing.T) {
	_, _, err := New(&cannedClient{raw: `{"sections":[]}`}, nil).Generate(context.Background(), snapshot(), nil, "")
	require.Error(t, err)
}

func TestGenerateWrapsClientError(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.FailWith(errors.New("quota exceeded"))
	_, _, err := New(fake, nil).Generate(context.Background(), snapshot(), nil, "")
	require.ErrorContains(t, err, "quota exceeded")
}
