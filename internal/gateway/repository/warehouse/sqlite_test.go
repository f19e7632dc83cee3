package warehouse

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteWarehouseInsertsWithFreshJobIDs(t *testing.T) {
	w, err := OpenSQLite(filepath.Join(t.TempDir(), "analytics", "warehouse.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()

	ctx := context.Background()
	row := map[string]any{"engagementId": "e1", "riskScore": 0.4}
	j1, err := w.InsertRow(ctx, "sales_engineering", "blueprints", row)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	j2, err := w.InsertRow(ctx, "sales_engineering", "blueprints", row)
	if err != nil {
		t.Fatalf("re-insert: %v", err)
	}
	if j1 == "" || j1 == j2 {
		t.Fatalf("expected distinct job ids, got %q and %q", j1, j2)
	}
	n, err := w.Count(ctx, "sales_engineering", "blueprints")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
}

func TestWarehouseRejectsBadIdentifiers(t *testing.T) {
	w := NewMemoryWarehouse()
	if _, err := w.InsertRow(context.Background(), "bad-name", "t", map[string]any{}); err == nil {
		t.Fatalf("expected invalid dataset error")
	}
	if _, err := w.InsertRow(context.Background(), "ok", "drop table;", map[string]any{}); err == nil {
		t.Fatalf("expected invalid table error")
	}
}
