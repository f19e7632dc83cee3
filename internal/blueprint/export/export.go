// Package export writes a denormalized analytics row per finished blueprint
// to the analytics warehouse.
package export

import (
	"context"
	"fmt"
	"time"

	"blueprint/internal/blueprint"
	"blueprint/internal/gateway/repository/warehouse"
)

// DisabledJobID is recorded instead of a warehouse job id when exporting is
// turned off.
const DisabledJobID = "disabled"

type Config struct {
	Enabled bool
	Dataset string
	Table   string
}

// Row is the warehouse schema of one exported blueprint.
type Row struct {
	BlueprintID          string    `json:"blueprintId"`
	EngagementID         string    `json:"engagementId"`
	CustomerName         string    `json:"customerName"`
	TrialType            string    `json:"trialType,omitempty"`
	ReviewPhase          string    `json:"reviewPhase,omitempty"`
	GeneratedBy          string    `json:"generatedBy"`
	GeneratedAt          time.Time `json:"generatedAt"`
	ExportedAt           time.Time `json:"exportedAt"`
	Categories           []string  `json:"categories"`
	RiskScore            float64   `json:"riskScore"`
	AutomationConfidence float64   `json:"automationConfidence"`
	CoveragePercentage   float64   `json:"coveragePercentage"`
	DeliveryLatencyMs    *int64    `json:"deliveryLatencyMs"`
	PayloadPath          string    `json:"payloadPath"`
	RenderedPath         string    `json:"renderedPath,omitempty"`
	BundlePath           string    `json:"bundlePath,omitempty"`
	Theme                string    `json:"theme,omitempty"`
	SectionCount         int       `json:"sectionCount"`
	ScenarioCount        int       `json:"scenarioCount"`
	NotesCount           int       `json:"notesCount"`
	TranscriptCount      int       `json:"transcriptCount"`
	SupportingRecords    int       `json:"supportingRecords"`
	SyntheticContent     bool      `json:"syntheticContent"`
}

// BuildRow flattens doc. Metrics fall back to the context snapshot when the
// analytics snapshot lacks them.
func BuildRow(doc blueprint.Document, exportedAt time.Time) Row {
	snap := doc.ContextSnapshot
	row := Row{
		BlueprintID:          doc.ID,
		EngagementID:         doc.EngagementID,
		CustomerName:         doc.CustomerName,
		TrialType:            snap.TrialType,
		ReviewPhase:          snap.ReviewPhase,
		GeneratedBy:          doc.GeneratedBy,
		GeneratedAt:          doc.GeneratedAt.UTC(),
		ExportedAt:           exportedAt.UTC(),
		Categories:           append([]string{}, doc.Analytics.Categories...),
		RiskScore:            valueOr(doc.Analytics.RiskScore, snap.Metrics.RiskScore),
		AutomationConfidence: valueOr(doc.Analytics.AutomationConfidence, snap.Metrics.AutomationConfidence),
		CoveragePercentage:   valueOr(doc.Analytics.CoveragePercentage, snap.Metrics.CoveragePercentage),
		DeliveryLatencyMs:    doc.Analytics.DeliveryLatencyMs,
		PayloadPath:          doc.Payload.StoragePath,
		Theme:                doc.Payload.Theme,
		SectionCount:         doc.Payload.SectionCount,
		ScenarioCount:        valueOr(doc.Analytics.ScenarioCount, len(snap.Scenarios)),
		NotesCount:           valueOr(doc.Analytics.NotesCount, len(snap.Notes)),
		TranscriptCount:      valueOr(doc.Analytics.TranscriptCount, len(snap.Transcripts)),
		SupportingRecords:    len(snap.SupportingRecords),
		SyntheticContent:     snap.SyntheticContent,
	}
	if doc.RenderedArtifact != nil {
		row.RenderedPath = doc.RenderedArtifact.StoragePath
		if doc.RenderedArtifact.Theme != "" {
			row.Theme = doc.RenderedArtifact.Theme
		}
	}
	if doc.ArtifactBundle != nil {
		row.BundlePath = doc.ArtifactBundle.StoragePath
	}
	return row
}

func valueOr[T any](p *T, fallback T) T {
	if p != nil {
		return *p
	}
	return fallback
}

type Exporter struct {
	wh  warehouse.Warehouse
	cfg Config
	now func() time.Time
}

func New(wh warehouse.Warehouse, cfg Config, now func() time.Time) *Exporter {
	if now == nil {
		now = time.Now
	}
	return &Exporter{wh: wh, cfg: cfg, now: now}
}

type Result struct {
	JobID      string
	ExportedAt time.Time
}

// Export inserts the row for doc. Each call is a fresh insert with its own
// job id, so retries are safe.
func (e *Exporter) Export(ctx context.Context, doc blueprint.Document) (Result, error) {
	at := e.now().UTC()
	if !e.cfg.Enabled || e.wh == nil {
		return Result{JobID: DisabledJobID, ExportedAt: at}, nil
	}
	jobID, err := e.wh.InsertRow(ctx, e.cfg.Dataset, e.cfg.Table, BuildRow(doc, at))
	if err != nil {
		return Result{}, fmt.Errorf("insert analytics row %s.%s: %w", e.cfg.Dataset, e.cfg.Table, err)
	}
	return Result{JobID: jobID, ExportedAt: at}, nil
}
