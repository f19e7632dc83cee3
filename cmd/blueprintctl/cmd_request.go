package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"blueprint/internal/blueprint"
)

var requestFlags struct {
	engagement string
	tone       string
	prompt     string
	selections []string
	focus      []string
	audiences  []string
	outcomes   []string
}

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Request blueprint generation for an engagement",
	RunE:  runRequest,
}

func init() {
	f := requestCmd.Flags()
	f.StringVar(&requestFlags.engagement, "engagement", "", "engagement id (required)")
	f.StringVar(&requestFlags.tone, "tone", "", "executive tone")
	f.StringVar(&requestFlags.prompt, "prompt", "", "tailored prompt")
	f.StringArrayVar(&requestFlags.selections, "select", nil, "record selection as source:id[:display name]")
	f.StringSliceVar(&requestFlags.focus, "focus", nil, "emphasis focus areas")
	f.StringSliceVar(&requestFlags.audiences, "audience", nil, "emphasis audiences")
	f.StringSliceVar(&requestFlags.outcomes, "outcome", nil, "emphasis outcomes")

	_ = requestCmd.MarkFlagRequired("engagement")
}

func runRequest(cmd *cobra.Command, _ []string) error {
	req, err := buildRequest()
	if err != nil {
		return err
	}
	res, err := newClient().RequestBlueprint(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("request blueprint: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Blueprint: %s\n", res.BlueprintID)
	fmt.Fprintf(out, "Status:    %s\n", res.Status)
	fmt.Fprintf(out, "Payload:   %s\n", res.PayloadPath)
	return nil
}

func buildRequest() (blueprint.GenerationRequest, error) {
	req := blueprint.GenerationRequest{
		EngagementID:   requestFlags.engagement,
		ExecutiveTone:  requestFlags.tone,
		TailoredPrompt: requestFlags.prompt,
	}
	if len(requestFlags.focus)+len(requestFlags.audiences)+len(requestFlags.outcomes) > 0 {
		req.Emphasis = &blueprint.Emphasis{
			Focus:     requestFlags.focus,
			Audiences: requestFlags.audiences,
			Outcomes:  requestFlags.outcomes,
		}
	}
	for _, raw := range requestFlags.selections {
		sel, err := parseSelection(raw)
		if err != nil {
			return blueprint.GenerationRequest{}, err
		}
		req.RecordSelections = append(req.RecordSelections, sel)
	}
	return req, nil
}

// parseSelection reads "source:id[:display name]". Source aliases are
// resolved server side.
func parseSelection(raw string) (blueprint.RecordSelection, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return blueprint.RecordSelection{}, fmt.Errorf("invalid --select %q: want source:id[:name]", raw)
	}
	sel := blueprint.RecordSelection{
		Source:   blueprint.Source(strings.TrimSpace(parts[0])),
		RecordID: strings.TrimSpace(parts[1]),
	}
	if len(parts) == 3 {
		sel.DisplayName = strings.TrimSpace(parts[2])
	}
	return sel, nil
}
