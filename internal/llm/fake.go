package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// FakeClient returns deterministic JSON built from the input, for offline
// runs and tests.
type FakeClient struct {
	calls atomic.Int64
	fail  error
}

func NewFakeClient() *FakeClient { return &FakeClient{} }

// FailWith makes every call return err; nil restores normal behaviour.
func (f *FakeClient) FailWith(err error) { f.fail = err }

// Calls reports how many GenerateJSON calls were made.
func (f *FakeClient) Calls() int64 { return f.calls.Load() }

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.fail != nil {
		return nil, f.fail
	}
	var obj any
	switch PhaseFrom(ctx) {
	case "blueprint":
		obj = fakeBlueprint(input)
	default:
		obj = map[string]any{}
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

type fakeInput struct {
	ExecutiveTone string `json:"executiveTone"`
	Context       struct {
		CustomerName string `json:"customerName"`
		Summary      string `json:"summary"`
		Scenarios    []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
			Impact string `json:"impact"`
		} `json:"scenarios"`
	} `json:"context"`
}

func fakeBlueprint(input any) map[string]any {
	var in fakeInput
	if raw, err := json.Marshal(input); err == nil {
		_ = json.Unmarshal(raw, &in)
	}
	customer := in.Context.CustomerName
	if customer == "" {
		customer = "the customer"
	}
	sections := []map[string]any{{
		"title":               "Engagement overview",
		"summary":             in.Context.Summary,
		"details":             []string{fmt.Sprintf("Prepared for %s.", customer)},
		"supportingArtifacts": []string{},
		"recommendedActions":  []string{"Confirm executive success criteria"},
		"visualBlocks":        []map[string]any{{"type": "metrics", "title": "Headline metrics"}},
	}}
	for _, s := range in.Context.Scenarios {
		sections = append(sections, map[string]any{
			"title":               s.Name,
			"summary":             s.Impact,
			"details":             []string{"Status: " + s.Status},
			"supportingArtifacts": []string{},
			"recommendedActions":  []string{"Review outcome with the operations team"},
			"visualBlocks":        []map[string]any{},
		})
	}
	tone := in.ExecutiveTone
	if tone == "" {
		tone = "confident"
	}
	return map[string]any{
		"executiveTheme":           fmt.Sprintf("Security transformation for %s", customer),
		"narrativeSummary":         fmt.Sprintf("A %s summary for %s. %s", tone, customer, in.Context.Summary),
		"sections":                 sections,
		"recommendationCategories": []string{"detection", "automation"},
		"metrics":                  map[string]any{},
		"prompts":                  []string{"fake blueprint prompt"},
	}
}
