package export

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"blueprint/internal/blueprint"
	"blueprint/internal/gateway/repository/warehouse"
)

var exportNow = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

func exportDoc() blueprint.Document {
	risk := 0.31
	latency := int64(4200)
	return blueprint.Document{
		ID:           "E1-1",
		EngagementID: "E1",
		CustomerName: "Acme",
		Payload:      blueprint.PayloadRef{StoragePath: "blueprints/E1/1/payload.json", SectionCount: 3, Theme: "Resilience"},
		ContextSnapshot: blueprint.EngagementContextSnapshot{
			ReviewPhase: "validation",
			Metrics:     blueprint.MetricSnapshot{RiskScore: 0.5, CoveragePercentage: 70},
			Scenarios:   []blueprint.ScenarioOutcome{{ID: "s1"}, {ID: "s2"}},
		},
		RenderedArtifact: &blueprint.ArtifactRef{StoragePath: "blueprints/E1/E1-1/blueprint.html", Theme: "executive-dark"},
		ArtifactBundle:   &blueprint.ArtifactRef{StoragePath: "blueprints/E1/E1-1/bundle.zip"},
		Analytics: blueprint.AnalyticsSnapshot{
			RiskScore:         &risk,
			Categories:        []string{"detection"},
			DeliveryLatencyMs: &latency,
		},
	}
}

func TestBuildRowPrefersAnalyticsOverSnapshot(t *testing.T) {
	row := BuildRow(exportDoc(), exportNow)
	if row.RiskScore != 0.31 || row.CoveragePercentage != 70 || row.ScenarioCount != 2 {
		t.Fatalf("unexpected metrics in row: %+v", row)
	}
	if row.Theme != "executive-dark" || row.BundlePath == "" || *row.DeliveryLatencyMs != 4200 {
		t.Fatalf("unexpected artifact fields: %+v", row)
	}
}

func TestExportInsertsRowWithJobID(t *testing.T) {
	wh := warehouse.NewMemoryWarehouse()
	e := New(wh, Config{Enabled: true, Dataset: "portal", Table: "blueprints"}, func() time.Time { return exportNow })
	res, err := e.Export(context.Background(), exportDoc())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	rows := wh.Rows("portal", "blueprints")
	if len(rows) != 1 || rows[0].JobID != res.JobID || !res.ExportedAt.Equal(exportNow) {
		t.Fatalf("rows=%+v res=%+v", rows, res)
	}
	var row Row
	if err := json.Unmarshal(rows[0].Data, &row); err != nil || row.BlueprintID != "E1-1" {
		t.Fatalf("row=%+v err=%v", row, err)
	}
}

func TestExportDisabledRecordsSentinel(t *testing.T) {
	wh := warehouse.NewMemoryWarehouse()
	res, err := New(wh, Config{Dataset: "portal", Table: "blueprints"}, nil).Export(context.Background(), exportDoc())
	if err != nil || res.JobID != DisabledJobID {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if len(wh.Rows("portal", "blueprints")) != 0 {
		t.Fatalf("disabled export must not insert")
	}
}

func TestExportPropagatesWarehouseError(t *testing.T) {
	wh := warehouse.NewMemoryWarehouse()
	wh.FailWith(errors.New("quota"))
	_, err := New(wh, Config{Enabled: true, Dataset: "portal", Table: "blueprints"}, nil).Export(context.Background(), exportDoc())
	if err == nil {
		t.Fatalf("expected error")
	}
}
