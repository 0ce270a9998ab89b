// Package store provides the persistence interface and implementations for
// the decision engine. Handlers and the training scheduler depend on the
// Store interface only, so the in-memory implementation (local dev, tests)
// and the PostgreSQL implementation are interchangeable.
package store

import (
	"context"
	"time"

	"github.com/ngx-sales/decision-engine/pkg/models"
)

// Store is the primary persistence interface.
type Store interface {
	PredictionStore
	FeedbackStore
	OutcomeStore
	TrainingJobStore
	ModelStore

	// Ping checks whether the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Prediction Store ─────────────────────────────────────────

// PredictionStore keeps served predictions so recorded outcomes can be
// matched against them later.
type PredictionStore interface {
	CreatePrediction(ctx context.Context, p *models.Prediction) error
	GetPrediction(ctx context.Context, id string) (*models.Prediction, error)

	// ListPredictionsBefore returns predictions created before the cutoff,
	// oldest first. Used by the retention janitor.
	ListPredictionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Prediction, error)

	// DeletePredictionsBefore removes predictions created before the cutoff
	// and returns how many were removed.
	DeletePredictionsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ── Feedback Store ───────────────────────────────────────────

// FeedbackStore persists live feedback records; the retraining criteria
// count them.
type FeedbackStore interface {
	CreateFeedback(ctx context.Context, fb *models.FeedbackRecord) error
	ListFeedback(ctx context.Context, conversationID string, limit int) ([]models.FeedbackRecord, error)
	CountFeedbackSince(ctx context.Context, since time.Time) (int, error)

	// ListFeedbackBefore returns feedback created before the cutoff, oldest
	// first. Used by the retention janitor.
	ListFeedbackBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.FeedbackRecord, error)

	// DeleteFeedbackBefore removes feedback created before the cutoff and
	// returns how many records were removed.
	DeleteFeedbackBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ── Outcome Store ────────────────────────────────────────────

type OutcomeStore interface {
	// CreateOutcome persists a recorded outcome. Creating an outcome with
	// an id that already exists is an upsert; callers handle idempotency
	// before writing.
	CreateOutcome(ctx context.Context, o *models.RecordedOutcome) error
	GetOutcome(ctx context.Context, id string) (*models.RecordedOutcome, error)
	ListOutcomes(ctx context.Context, kind string, since time.Time, limit int) ([]models.RecordedOutcome, error)
}

// ── Training Job Store ───────────────────────────────────────

// TrainingFilter narrows ListTrainingJobs results.
type TrainingFilter struct {
	ModelName string
	Status    models.TrainingStatus
	Limit     int
}

type TrainingJobStore interface {
	CreateTrainingJob(ctx context.Context, job *models.TrainingJob) error

	// UpdateTrainingJob persists a job update. Implementations reject
	// backward status transitions.
	UpdateTrainingJob(ctx context.Context, job *models.TrainingJob) error

	GetTrainingJob(ctx context.Context, id string) (*models.TrainingJob, error)
	ListTrainingJobs(ctx context.Context, filter TrainingFilter) ([]models.TrainingJob, error)

	// ActiveTrainingJob returns the non-terminal job for a model, or
	// ErrNotFound when none is pending.
	ActiveTrainingJob(ctx context.Context, modelName string) (*models.TrainingJob, error)
}

// ── Model Store ──────────────────────────────────────────────

type ModelStore interface {
	// GetModel returns the active version of a model.
	GetModel(ctx context.Context, name string) (*models.ModelRecord, error)

	// ListModels returns the active version of every model, optionally
	// filtered by type.
	ListModels(ctx context.Context, typeFilter models.PredictionType) ([]models.ModelRecord, error)

	// ListModelVersions returns a model's full version history, newest
	// first, including retired versions.
	ListModelVersions(ctx context.Context, name string) ([]models.ModelRecord, error)

	// PutModel inserts or replaces the active version in place (seeding,
	// parameter updates). It does not bump the version.
	PutModel(ctx context.Context, m *models.ModelRecord) error

	// SwapActiveModel atomically retires the current active version and
	// installs the given record as the new active one. Readers never
	// observe a state with zero or two active versions.
	SwapActiveModel(ctx context.Context, m *models.ModelRecord) error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

// ErrInvalidTransition is returned when a training job update would move
// its status backward.
type ErrInvalidTransition struct {
	JobID string
	From  models.TrainingStatus
	To    models.TrainingStatus
}

func (e *ErrInvalidTransition) Error() string {
	return "invalid training status transition for job " + e.JobID + ": " + string(e.From) + " -> " + string(e.To)
}
