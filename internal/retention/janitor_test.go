package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ngx-sales/decision-engine/internal/store"
	"github.com/ngx-sales/decision-engine/pkg/models"
)

func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	t.Setenv("DECISION_DATA_DIR", "")
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	return st
}

func seedAgedData(t *testing.T, st *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	st.CreatePrediction(ctx, &models.Prediction{ID: "old-pred", CreatedAt: now.Add(-40 * 24 * time.Hour)})
	st.CreatePrediction(ctx, &models.Prediction{ID: "fresh-pred", CreatedAt: now})
	st.CreateFeedback(ctx, &models.FeedbackRecord{ConversationID: "c1", CreatedAt: now.Add(-100 * 24 * time.Hour)})
	st.CreateFeedback(ctx, &models.FeedbackRecord{ConversationID: "c1", CreatedAt: now})
	st.CreateOutcome(ctx, &models.RecordedOutcome{ID: "o1", Kind: "objection", ActualCategory: "price", RecordedAt: now.Add(-200 * 24 * time.Hour)})
}

func TestRunCyclePurgeOnly(t *testing.T) {
	st := newTestStore(t)
	seedAgedData(t, st)
	ctx := context.Background()

	j := NewJanitor(st, Config{}, nil)
	stats := j.RunCycle(ctx)

	if len(stats.Errors) != 0 {
		t.Fatalf("cycle errors: %v", stats.Errors)
	}
	if stats.PredictionsPurged != 1 {
		t.Errorf("predictions purged = %d, want 1", stats.PredictionsPurged)
	}
	if stats.FeedbackPurged != 1 {
		t.Errorf("feedback purged = %d, want 1", stats.FeedbackPurged)
	}
	if stats.PredictionsArchived != 0 || stats.FeedbackArchived != 0 {
		t.Error("archived counts set without an archiver")
	}

	if _, err := st.GetPrediction(ctx, "fresh-pred"); err != nil {
		t.Error("fresh prediction was purged")
	}
	// Outcomes are the accuracy history and are never pruned.
	if _, err := st.GetOutcome(ctx, "o1"); err != nil {
		t.Error("outcome was pruned")
	}
}

func TestRunCycleArchivesBeforePurge(t *testing.T) {
	st := newTestStore(t)
	seedAgedData(t, st)
	dir := t.TempDir()

	j := NewJanitor(st, Config{}, NewArchiver(dir, false))
	stats := j.RunCycle(context.Background())

	if len(stats.Errors) != 0 {
		t.Fatalf("cycle errors: %v", stats.Errors)
	}
	if stats.PredictionsArchived != 1 || stats.PredictionsPurged != 1 {
		t.Errorf("predictions archived/purged = %d/%d, want 1/1",
			stats.PredictionsArchived, stats.PredictionsPurged)
	}
	if stats.FeedbackArchived != 1 || stats.FeedbackPurged != 1 {
		t.Errorf("feedback archived/purged = %d/%d, want 1/1",
			stats.FeedbackArchived, stats.FeedbackPurged)
	}

	for _, kind := range []string{"predictions", "feedback"} {
		entries, err := os.ReadDir(filepath.Join(dir, kind))
		if err != nil || len(entries) == 0 {
			t.Errorf("no %s archive written: %v", kind, err)
		}
	}
}

func TestRunCycleKeepsDataWhenArchiveFails(t *testing.T) {
	st := newTestStore(t)
	seedAgedData(t, st)
	ctx := context.Background()

	// A regular file as the archive base makes every write fail.
	base := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(base, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	j := NewJanitor(st, Config{}, NewArchiver(base, false))
	stats := j.RunCycle(ctx)

	if len(stats.Errors) == 0 {
		t.Fatal("expected archive errors")
	}
	if stats.PredictionsPurged != 0 || stats.FeedbackPurged != 0 {
		t.Error("data purged despite failed archive")
	}
	// The expired data is still there for the next cycle.
	if _, err := st.GetPrediction(ctx, "old-pred"); err != nil {
		t.Error("expired prediction lost without an archive")
	}
}

func TestArchiverHealthCheck(t *testing.T) {
	ok := NewArchiver(t.TempDir(), true)
	if err := ok.HealthCheck(); err != nil {
		t.Errorf("HealthCheck on writable dir: %v", err)
	}

	base := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(base, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := NewArchiver(base, true)
	if err := bad.HealthCheck(); err == nil {
		t.Error("HealthCheck on a non-directory path succeeded")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", cfg.Interval, DefaultInterval)
	}
	if cfg.PredictionTTL != DefaultPredictionTTL {
		t.Errorf("prediction ttl = %v, want %v", cfg.PredictionTTL, DefaultPredictionTTL)
	}
	if cfg.FeedbackTTL != DefaultFeedbackTTL {
		t.Errorf("feedback ttl = %v, want %v", cfg.FeedbackTTL, DefaultFeedbackTTL)
	}

	// Sub-minute intervals fall back rather than hammering the store.
	tight := Config{Interval: time.Second}.withDefaults()
	if tight.Interval != DefaultInterval {
		t.Errorf("tight interval = %v, want fallback", tight.Interval)
	}
}
