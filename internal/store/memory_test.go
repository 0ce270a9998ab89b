package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ngx-sales/decision-engine/pkg/models"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	t.Setenv("DECISION_DATA_DIR", "")
	m := NewMemoryStore()
	t.Cleanup(func() { m.Close() })
	return m
}

func TestPredictionCRUD(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	pred := &models.Prediction{
		ID:             "pred-1",
		ConversationID: "conv-1",
		Type:           models.PredictionObjection,
		Category:       "price",
		Confidence:     0.66,
		ModelName:      "objection-model",
		CreatedAt:      time.Now().UTC(),
	}
	if err := m.CreatePrediction(ctx, pred); err != nil {
		t.Fatalf("CreatePrediction: %v", err)
	}

	got, err := m.GetPrediction(ctx, "pred-1")
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if got.Category != "price" || got.Confidence != 0.66 {
		t.Errorf("got %+v", got)
	}

	// Mutating the returned copy must not affect the store.
	got.Category = "trust"
	again, _ := m.GetPrediction(ctx, "pred-1")
	if again.Category != "price" {
		t.Error("GetPrediction returned a shared pointer")
	}

	if _, err := m.GetPrediction(ctx, "missing"); !IsNotFound(err) {
		t.Errorf("missing prediction error = %v, want not-found", err)
	}
}

func TestPredictionPruning(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	old := &models.Prediction{ID: "old", CreatedAt: time.Now().UTC().Add(-48 * time.Hour)}
	fresh := &models.Prediction{ID: "fresh", CreatedAt: time.Now().UTC()}
	m.CreatePrediction(ctx, old)
	m.CreatePrediction(ctx, fresh)

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	expired, err := m.ListPredictionsBefore(ctx, cutoff, 0)
	if err != nil {
		t.Fatalf("ListPredictionsBefore: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "old" {
		t.Fatalf("expired = %+v, want only the old prediction", expired)
	}

	removed, err := m.DeletePredictionsBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeletePredictionsBefore: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := m.GetPrediction(ctx, "old"); !IsNotFound(err) {
		t.Error("old prediction survived the purge")
	}
	if _, err := m.GetPrediction(ctx, "fresh"); err != nil {
		t.Error("fresh prediction was purged")
	}
}

func TestFeedbackLogAndPruning(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	m.CreateFeedback(ctx, &models.FeedbackRecord{ConversationID: "c1", CreatedAt: now.Add(-72 * time.Hour)})
	m.CreateFeedback(ctx, &models.FeedbackRecord{ConversationID: "c1", CreatedAt: now})
	m.CreateFeedback(ctx, &models.FeedbackRecord{ConversationID: "c2", CreatedAt: now})

	byConv, err := m.ListFeedback(ctx, "c1", 0)
	if err != nil {
		t.Fatalf("ListFeedback: %v", err)
	}
	if len(byConv) != 2 {
		t.Errorf("c1 feedback = %d, want 2", len(byConv))
	}

	count, err := m.CountFeedbackSince(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountFeedbackSince: %v", err)
	}
	if count != 2 {
		t.Errorf("recent count = %d, want 2", count)
	}

	removed, err := m.DeleteFeedbackBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteFeedbackBefore: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	all, _ := m.ListFeedback(ctx, "", 0)
	if len(all) != 2 {
		t.Errorf("surviving feedback = %d, want 2", len(all))
	}
}

func TestOutcomeUpsertPreservesLogOrder(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	m.CreateOutcome(ctx, &models.RecordedOutcome{ID: "o1", Kind: "objection", ActualCategory: "price"})
	m.CreateOutcome(ctx, &models.RecordedOutcome{ID: "o2", Kind: "need", ActualCategory: "integration"})
	// Re-recording an id updates in place without duplicating the log entry.
	m.CreateOutcome(ctx, &models.RecordedOutcome{ID: "o1", Kind: "objection", ActualCategory: "value"})

	all, err := m.ListOutcomes(ctx, "", time.Time{}, 0)
	if err != nil {
		t.Fatalf("ListOutcomes: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(all))
	}
	if all[0].ID != "o1" || all[1].ID != "o2" {
		t.Errorf("log order = %s, %s, want o1, o2", all[0].ID, all[1].ID)
	}

	updated, err := m.GetOutcome(ctx, "o1")
	if err != nil {
		t.Fatalf("GetOutcome: %v", err)
	}
	if updated.ActualCategory != "value" {
		t.Errorf("o1 actual = %s, want updated value", updated.ActualCategory)
	}

	byKind, _ := m.ListOutcomes(ctx, "need", time.Time{}, 0)
	if len(byKind) != 1 || byKind[0].ID != "o2" {
		t.Errorf("kind filter = %+v, want only o2", byKind)
	}
}

func TestTrainingJobTransitions(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	job := &models.TrainingJob{
		ID:        "job-1",
		ModelName: "objection-model",
		Status:    models.TrainingScheduled,
		StartTime: time.Now().UTC(),
	}
	if err := m.CreateTrainingJob(ctx, job); err != nil {
		t.Fatalf("CreateTrainingJob: %v", err)
	}

	job.Status = models.TrainingInProgress
	if err := m.UpdateTrainingJob(ctx, job); err != nil {
		t.Fatalf("scheduled -> in_progress: %v", err)
	}

	// Backward transition rejected.
	back := *job
	back.Status = models.TrainingScheduled
	err := m.UpdateTrainingJob(ctx, &back)
	var invalid *ErrInvalidTransition
	if !errors.As(err, &invalid) {
		t.Fatalf("backward transition error = %v, want ErrInvalidTransition", err)
	}

	job.Status = models.TrainingCompleted
	if err := m.UpdateTrainingJob(ctx, job); err != nil {
		t.Fatalf("in_progress -> completed: %v", err)
	}

	// Terminal states accept nothing.
	job.Status = models.TrainingFailed
	if err := m.UpdateTrainingJob(ctx, job); err == nil {
		t.Fatal("transition out of completed accepted")
	}
}

func TestActiveTrainingJob(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	if _, err := m.ActiveTrainingJob(ctx, "objection-model"); !IsNotFound(err) {
		t.Fatalf("error = %v, want not-found with no jobs", err)
	}

	m.CreateTrainingJob(ctx, &models.TrainingJob{
		ID: "job-1", ModelName: "objection-model", Status: models.TrainingScheduled, StartTime: time.Now().UTC(),
	})
	active, err := m.ActiveTrainingJob(ctx, "objection-model")
	if err != nil {
		t.Fatalf("ActiveTrainingJob: %v", err)
	}
	if active.ID != "job-1" {
		t.Errorf("active job = %s", active.ID)
	}

	done := *active
	done.Status = models.TrainingCompleted
	// scheduled -> completed is a forward transition.
	if err := m.UpdateTrainingJob(ctx, &done); err != nil {
		t.Fatalf("complete job: %v", err)
	}
	if _, err := m.ActiveTrainingJob(ctx, "objection-model"); !IsNotFound(err) {
		t.Errorf("error = %v, want not-found after completion", err)
	}
}

func TestSwapActiveModelRetiresPrevious(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	v1 := &models.ModelRecord{
		Name: "objection-model", Type: models.PredictionObjection,
		Version: 1, Status: models.ModelActive, Accuracy: 0.6, UpdatedAt: time.Now().UTC(),
	}
	if err := m.PutModel(ctx, v1); err != nil {
		t.Fatalf("PutModel: %v", err)
	}

	v2 := &models.ModelRecord{
		Name: "objection-model", Type: models.PredictionObjection,
		Version: 2, Status: models.ModelActive, Accuracy: 0.7, UpdatedAt: time.Now().UTC(),
	}
	if err := m.SwapActiveModel(ctx, v2); err != nil {
		t.Fatalf("SwapActiveModel: %v", err)
	}

	active, err := m.GetModel(ctx, "objection-model")
	if err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	if active.Version != 2 || active.Accuracy != 0.7 {
		t.Errorf("active = %+v, want version 2", active)
	}

	versions, err := m.ListModelVersions(ctx, "objection-model")
	if err != nil {
		t.Fatalf("ListModelVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("versions = %d, want full history", len(versions))
	}
	var activeCount int
	for _, v := range versions {
		if v.Status == models.ModelActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Errorf("active versions = %d, want exactly 1", activeCount)
	}
	// Newest first.
	if versions[0].Version != 2 {
		t.Errorf("versions[0] = %d, want the newest", versions[0].Version)
	}
}

func TestListModelsFiltersByType(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	m.PutModel(ctx, &models.ModelRecord{Name: "objection-model", Type: models.PredictionObjection, Version: 1, Status: models.ModelActive})
	m.PutModel(ctx, &models.ModelRecord{Name: "needs-model", Type: models.PredictionNeed, Version: 1, Status: models.ModelActive})

	all, err := m.ListModels(ctx, "")
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("models = %d, want 2", len(all))
	}

	objections, _ := m.ListModels(ctx, models.PredictionObjection)
	if len(objections) != 1 || objections[0].Name != "objection-model" {
		t.Errorf("filtered = %+v", objections)
	}
}
