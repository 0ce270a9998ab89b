// Package training implements the background retraining pipeline.
//
// Scheduling flow:
//  1. A job is created in status "scheduled" (explicit request or the
//     automatic retraining criteria)
//  2. A background goroutine moves it to "in_progress" and fits a new
//     model version against the recorded outcome log
//  3. On success the new version is swapped in atomically and the job
//     completes; on failure or cancellation the job ends "failed"
//
// Status transitions are forward-only; the store rejects anything else.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ngx-sales/decision-engine/internal/accuracy"
	"github.com/ngx-sales/decision-engine/internal/store"
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// ErrAlreadyScheduled is returned when a model already has a non-terminal
// training job.
var ErrAlreadyScheduled = errors.New("training already scheduled for model")

// Default retraining criteria.
const (
	DefaultRetrainAfter      = 10 * 24 * time.Hour
	DefaultFeedbackThreshold = 50
)

// Config tunes the scheduler. Zero values fall back to defaults.
type Config struct {
	// RetrainAfter is the model age beyond which retraining is due.
	RetrainAfter time.Duration

	// FeedbackThreshold is the number of feedback records since the last
	// training that makes retraining due regardless of age.
	FeedbackThreshold int

	// FitDuration simulates the model fitting time. Tests set this near
	// zero; production uses the default.
	FitDuration time.Duration

	// MaxRetries bounds the retry attempts for a transient fit failure.
	MaxRetries uint64
}

func (c Config) withDefaults() Config {
	if c.RetrainAfter <= 0 {
		c.RetrainAfter = DefaultRetrainAfter
	}
	if c.FeedbackThreshold <= 0 {
		c.FeedbackThreshold = DefaultFeedbackThreshold
	}
	if c.FitDuration <= 0 {
		c.FitDuration = 2 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	return c
}

// Scheduler owns training job lifecycles.
type Scheduler struct {
	store store.Store
	cfg   Config

	// Running jobs: jobID → cancel func
	runsMu sync.RWMutex
	runs   map[string]context.CancelFunc

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler.
func NewScheduler(st store.Store, cfg Config) *Scheduler {
	return &Scheduler{
		store: st,
		cfg:   cfg.withDefaults(),
		runs:  make(map[string]context.CancelFunc),
	}
}

// ShouldRetrain evaluates the retraining criteria for a model and returns
// the decision with a human-readable reason.
func (s *Scheduler) ShouldRetrain(ctx context.Context, modelName string) (bool, string, error) {
	model, err := s.store.GetModel(ctx, modelName)
	if err != nil {
		return false, "", err
	}

	age := time.Since(model.UpdatedAt)
	if age > s.cfg.RetrainAfter {
		return true, fmt.Sprintf("model is %d days old", int(age.Hours()/24)), nil
	}

	count, err := s.store.CountFeedbackSince(ctx, model.UpdatedAt)
	if err != nil {
		return false, "", err
	}
	if count >= s.cfg.FeedbackThreshold {
		return true, fmt.Sprintf("%d feedback records since last training", count), nil
	}

	return false, fmt.Sprintf("model is %d days old with %d feedback records", int(age.Hours()/24), count), nil
}

// Schedule creates a training job for a model and starts it in the
// background. With force=false the retraining criteria must be met; a model
// with a non-terminal job returns ErrAlreadyScheduled either way.
func (s *Scheduler) Schedule(ctx context.Context, modelName string, force bool) (*models.TrainingJob, error) {
	model, err := s.store.GetModel(ctx, modelName)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.ActiveTrainingJob(ctx, modelName); err == nil {
		return nil, ErrAlreadyScheduled
	} else if !store.IsNotFound(err) {
		return nil, err
	}

	if !force {
		due, reason, err := s.ShouldRetrain(ctx, modelName)
		if err != nil {
			return nil, err
		}
		if !due {
			return nil, fmt.Errorf("retraining criteria not met: %s", reason)
		}
	}

	job := &models.TrainingJob{
		ID:        uuid.New().String(),
		ModelName: model.Name,
		Status:    models.TrainingScheduled,
		StartTime: time.Now().UTC(),
	}
	if err := s.store.CreateTrainingJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create training job: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.runsMu.Lock()
	s.runs[job.ID] = cancel
	s.runsMu.Unlock()

	log.Info().
		Str("job_id", job.ID).
		Str("model", model.Name).
		Bool("forced", force).
		Msg("Training job scheduled")

	s.wg.Add(1)
	go s.run(runCtx, job.ID, *model)

	return job, nil
}

// FitDuration returns the configured fitting time, used to estimate job
// completion at the API boundary.
func (s *Scheduler) FitDuration() time.Duration {
	return s.cfg.FitDuration
}

// ScheduleResult is one model's outcome of an AutoSchedule sweep.
type ScheduleResult struct {
	ModelName string `json:"model_name"`
	Scheduled bool   `json:"scheduled"`
	JobID     string `json:"job_id,omitempty"`
	Reason    string `json:"reason"`
}

// AutoSchedule applies the retraining criteria to every model and schedules
// the ones that are due. Models that are not due, or already have a pending
// job, are reported as skipped with the reason.
func (s *Scheduler) AutoSchedule(ctx context.Context) ([]ScheduleResult, error) {
	active, err := s.store.ListModels(ctx, "")
	if err != nil {
		return nil, err
	}

	results := make([]ScheduleResult, 0, len(active))
	for _, m := range active {
		due, reason, err := s.ShouldRetrain(ctx, m.Name)
		if err != nil {
			return nil, err
		}
		if !due {
			results = append(results, ScheduleResult{ModelName: m.Name, Reason: reason})
			continue
		}

		job, err := s.Schedule(ctx, m.Name, false)
		if errors.Is(err, ErrAlreadyScheduled) {
			results = append(results, ScheduleResult{ModelName: m.Name, Reason: "training already in progress"})
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, ScheduleResult{
			ModelName: m.Name,
			Scheduled: true,
			JobID:     job.ID,
			Reason:    reason,
		})
	}
	return results, nil
}

// Cancel stops a scheduled or in-progress training job. The job ends in
// status "failed" with error "cancelled"; completed jobs cannot be
// cancelled.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	job, err := s.store.GetTrainingJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is already %s", jobID, job.Status)
	}

	s.runsMu.Lock()
	cancel, running := s.runs[jobID]
	if running {
		cancel()
		delete(s.runs, jobID)
	}
	s.runsMu.Unlock()

	if running {
		// The run goroutine observes the cancellation and finalizes the job.
		return nil
	}

	// No goroutine owns the job (e.g. scheduled before a restart); finalize
	// it directly.
	return s.finalizeFailed(ctx, job, "cancelled")
}

// Close cancels all running jobs and waits for their goroutines to finish.
func (s *Scheduler) Close() {
	s.runsMu.Lock()
	for id, cancel := range s.runs {
		cancel()
		delete(s.runs, id)
	}
	s.runsMu.Unlock()
	s.wg.Wait()
}

// Wait blocks until all background training goroutines have finished.
// Intended for tests.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, jobID string, model models.ModelRecord) {
	defer s.wg.Done()
	defer func() {
		s.runsMu.Lock()
		delete(s.runs, jobID)
		s.runsMu.Unlock()
	}()

	job, err := s.store.GetTrainingJob(context.Background(), jobID)
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("Training job vanished before start")
		return
	}

	job.Status = models.TrainingInProgress
	if err := s.store.UpdateTrainingJob(context.Background(), job); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to start training job")
		return
	}

	var metrics *models.TrainingMetrics
	var samples int
	fit := func() error {
		var fitErr error
		metrics, samples, fitErr = s.fit(ctx, model)
		if errors.Is(fitErr, context.Canceled) {
			return backoff.Permanent(fitErr)
		}
		return fitErr
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cfg.MaxRetries), ctx)
	if err := backoff.Retry(fit, policy); err != nil {
		reason := err.Error()
		if ctx.Err() != nil {
			reason = "cancelled"
		}
		if ferr := s.finalizeFailed(context.Background(), job, reason); ferr != nil {
			log.Error().Err(ferr).Str("job_id", jobID).Msg("Failed to finalize training job")
		}
		log.Warn().Str("job_id", jobID).Str("model", model.Name).Str("reason", reason).Msg("Training job failed")
		return
	}

	next := models.ModelRecord{
		Name:            model.Name,
		Type:            model.Type,
		Version:         model.Version + 1,
		Status:          models.ModelActive,
		Accuracy:        metrics.Accuracy,
		TrainingSamples: samples,
		UpdatedAt:       time.Now().UTC(),
	}
	if err := s.store.SwapActiveModel(context.Background(), &next); err != nil {
		if ferr := s.finalizeFailed(context.Background(), job, "model swap: "+err.Error()); ferr != nil {
			log.Error().Err(ferr).Str("job_id", jobID).Msg("Failed to finalize training job")
		}
		return
	}

	now := time.Now().UTC()
	job.Status = models.TrainingCompleted
	job.EndTime = &now
	job.Metrics = metrics
	if err := s.store.UpdateTrainingJob(context.Background(), job); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to complete training job")
		return
	}

	log.Info().
		Str("job_id", jobID).
		Str("model", model.Name).
		Int("version", next.Version).
		Float64("accuracy", metrics.Accuracy).
		Int("samples", samples).
		Msg("Training job completed")
}

// fit evaluates the model against the recorded outcome log and produces the
// metrics for the next version. The outcome kinds map 1:1 onto model types.
func (s *Scheduler) fit(ctx context.Context, model models.ModelRecord) (*models.TrainingMetrics, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-time.After(s.cfg.FitDuration):
	}

	outcomes, err := s.store.ListOutcomes(ctx, string(model.Type), time.Time{}, 0)
	if err != nil {
		return nil, 0, err
	}

	stats := accuracy.Compute(outcomes)
	metrics := &models.TrainingMetrics{
		Accuracy:  stats.Accuracy,
		Precision: stats.Precision,
		Recall:    stats.Recall,
		F1:        stats.F1,
	}
	if stats.Total == 0 {
		// Nothing recorded yet; carry the previous accuracy forward so a
		// forced retrain cannot zero out a model.
		metrics.Accuracy = model.Accuracy
	}
	metrics.Accuracy = round4(metrics.Accuracy)
	metrics.Precision = round4(metrics.Precision)
	metrics.Recall = round4(metrics.Recall)
	metrics.F1 = round4(metrics.F1)
	return metrics, stats.Total, nil
}

func (s *Scheduler) finalizeFailed(ctx context.Context, job *models.TrainingJob, reason string) error {
	now := time.Now().UTC()
	job.Status = models.TrainingFailed
	job.EndTime = &now
	job.Error = reason
	return s.store.UpdateTrainingJob(ctx, job)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
