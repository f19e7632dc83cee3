package blueprint

import "encoding/json"

// VisualBlock is a renderer hint attached to a payload section.
type VisualBlock struct {
	Type  string          `json:"type"`
	Title string          `json:"title,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type PayloadSection struct {
	Title               string        `json:"title"`
	Summary             string        `json:"summary"`
	Details             []string      `json:"details"`
	SupportingArtifacts []string      `json:"supportingArtifacts"`
	RecommendedActions  []string      `json:"recommendedActions"`
	VisualBlocks        []VisualBlock `json:"visualBlocks"`
}

// Payload is the structured narrative produced by text generation.
type Payload struct {
	ExecutiveTheme           string           `json:"executiveTheme"`
	NarrativeSummary         string           `json:"narrativeSummary"`
	Sections                 []PayloadSection `json:"sections"`
	RecommendationCategories []string         `json:"recommendationCategories"`
	Metrics                  MetricSnapshot   `json:"metrics"`
	Prompts                  []string         `json:"prompts"`
}
