// Package generate adapts an engagement context snapshot to the
// text-generation client and validates the returned payload.
package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"blueprint/internal/blueprint"
	"blueprint/internal/llm"
	"blueprint/internal/util/jsonutil"
)

const (
	// Phase tags text-generation calls in logs.
	Phase = "blueprint"
	// ExtensionID identifies this generator in the document audit record.
	ExtensionID = "engagement-blueprint"
	Version     = "2026.10"
)

const basePrompt = `You are preparing an executive engagement blueprint for a security customer.
Using the engagement context below, return a JSON object with keys:
executiveTheme (string), narrativeSummary (string),
sections (array of {title, summary, details[], supportingArtifacts[], recommendedActions[], visualBlocks[{type,title}]}),
recommendationCategories (array of strings), metrics (object), prompts (array of strings).
Only use facts present in the context. Content marked synthetic is illustrative.`

type Generator struct {
	client llm.LLMClient
	now    func() time.Time
}

func New(client llm.LLMClient, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{client: client, now: now}
}

type request struct {
	ExecutiveTone string                              `json:"executiveTone,omitempty"`
	Emphasis      *blueprint.Emphasis                 `json:"emphasis,omitempty"`
	Context       blueprint.EngagementContextSnapshot `json:"context"`
}

// Generate produces the payload for snap and the audit record of the call.
func (g *Generator) Generate(ctx context.Context, snap blueprint.EngagementContextSnapshot, emphasis *blueprint.Emphasis, tone string) (blueprint.Payload, blueprint.ExtensionRun, error) {
	prompts := buildPrompts(snap, emphasis, tone)
	run := blueprint.ExtensionRun{ExtensionID: ExtensionID, Version: Version, Prompts: prompts}

	start := g.now()
	raw, err := g.client.GenerateJSON(llm.WithPhase(ctx, Phase), strings.Join(prompts, "\n\n"), request{
		ExecutiveTone: tone,
		Emphasis:      emphasis,
		Context:       snap,
	})
	run.LatencyMs = g.now().Sub(start).Milliseconds()
	if err != nil {
		return blueprint.Payload{}, run, fmt.Errorf("generate payload with %s: %w", g.client.Name(), err)
	}
	run.CompletionTokens = llm.EstimateTokens(raw)

	var p blueprint.Payload
	if err := jsonutil.UnmarshalFlex(raw, &p); err != nil {
		return blueprint.Payload{}, run, fmt.Errorf("decode payload: %w", err)
	}
	if err := finalize(&p, snap, prompts); err != nil {
		return blueprint.Payload{}, run, err
	}
	return p, run, nil
}

func buildPrompts(snap blueprint.EngagementContextSnapshot, emphasis *blueprint.Emphasis, tone string) []string {
	prompts := []string{basePrompt}
	if t := strings.TrimSpace(tone); t != "" {
		prompts = append(prompts, "Write in a "+t+" executive tone.")
	}
	if !emphasis.Empty() {
		var parts []string
		if len(emphasis.Focus) > 0 {
			parts = append(parts, "focus on "+strings.Join(emphasis.Focus, ", "))
		}
		if len(emphasis.Audiences) > 0 {
			parts = append(parts, "address "+strings.Join(emphasis.Audiences, ", "))
		}
		if len(emphasis.Outcomes) > 0 {
			parts = append(parts, "highlight outcomes "+strings.Join(emphasis.Outcomes, ", "))
		}
		prompts = append(prompts, "Emphasis: "+strings.Join(parts, "; ")+".")
	}
	if p := strings.TrimSpace(snap.TailoredPrompt); p != "" {
		prompts = append(prompts, "Consultant guidance: "+p)
	}
	return prompts
}

// finalize rejects unusable payloads and fills fields the model may omit.
func finalize(p *blueprint.Payload, snap blueprint.EngagementContextSnapshot, prompts []string) error {
	if len(p.Sections) == 0 {
		return fmt.Errorf("decode payload: no sections returned")
	}
	for i := range p.Sections {
		if strings.TrimSpace(p.Sections[i].Title) == "" {
			p.Sections[i].Title = fmt.Sprintf("Section %d", i+1)
		}
	}
	if strings.TrimSpace(p.ExecutiveTheme) == "" {
		p.ExecutiveTheme = snap.CustomerName + " engagement blueprint"
	}
	if strings.TrimSpace(p.NarrativeSummary) == "" {
		p.NarrativeSummary = snap.Summary
	}
	if p.Metrics == (blueprint.MetricSnapshot{}) {
		p.Metrics = snap.Metrics
	}
	if len(p.Prompts) == 0 {
		p.Prompts = prompts
	}
	return nil
}
