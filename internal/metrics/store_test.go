package metrics_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cookin/internal/database"
	"cookin/internal/metrics"
)

func newTestStore(t *testing.T) *metrics.Store {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return metrics.NewStore(db)
}

func TestRecordAndAggregate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := store.Record(ctx, metrics.ExecutionMetric{
			Caller:           "gateway",
			Model:            "gemini-2.0-flash",
			PromptTokens:     100,
			CompletionTokens: 50,
			LatencyMS:        800,
		})
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	usage, err := store.GetDailyUsage(ctx, 7)
	if err != nil {
		t.Fatalf("GetDailyUsage failed: %v", err)
	}
	if len(usage) != 1 {
		t.Fatalf("expected 1 day of usage, got %d", len(usage))
	}
	day := usage[0]
	if day.TotalPrompt != 300 || day.TotalCompletion != 150 || day.TotalExecution != 3 {
		t.Errorf("unexpected totals: %+v", day)
	}
}

func TestCleanupDropsOldRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Record(ctx, metrics.ExecutionMetric{
		Caller:    "gateway",
		Model:     "gemini-2.0-flash",
		Timestamp: time.Now().UTC().AddDate(0, 0, -60),
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Record(ctx, metrics.ExecutionMetric{Caller: "gateway", Model: "gemini-2.0-flash"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	removed, err := store.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 record removed, got %d", removed)
	}

	usage, err := store.GetDailyUsage(ctx, 90)
	if err != nil {
		t.Fatalf("GetDailyUsage failed: %v", err)
	}
	if len(usage) != 1 || usage[0].TotalExecution != 1 {
		t.Errorf("expected only the fresh record to remain, got %+v", usage)
	}
}

func TestSnapshotMeasuresTheDatabaseFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.New(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	health := metrics.Snapshot(dbPath)
	if health.DatabaseSize == "" || health.DatabaseSize == "0 B" {
		t.Errorf("expected a non-empty database size, got %q", health.DatabaseSize)
	}
	if health.Goroutines < 1 {
		t.Errorf("expected at least one goroutine, got %d", health.Goroutines)
	}
	if health.HeapSysMB == 0 {
		t.Error("expected non-zero heap sys")
	}
}
