// Package retention implements data retention for the decision engine's hot
// store. Served predictions and feedback records are only needed for a
// bounded window (outcome matching and retraining criteria); the janitor
// periodically archives and purges what has aged out. Recorded outcomes are
// never pruned, they are the accuracy history.
//
// The purge is fail-safe: when an archiver is configured and the archive
// write fails, the data stays in the hot store and the cycle retries on the
// next tick.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ngx-sales/decision-engine/internal/store"
)

// Default retention windows. Predictions only need to outlive outcome
// matching; feedback must outlive the retraining criteria window.
const (
	DefaultPredictionTTL = 30 * 24 * time.Hour
	DefaultFeedbackTTL   = 90 * 24 * time.Hour
	DefaultInterval      = time.Hour
)

// Config tunes the janitor. Zero values fall back to defaults.
type Config struct {
	Interval      time.Duration
	PredictionTTL time.Duration
	FeedbackTTL   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval < time.Minute {
		c.Interval = DefaultInterval
	}
	if c.PredictionTTL <= 0 {
		c.PredictionTTL = DefaultPredictionTTL
	}
	if c.FeedbackTTL <= 0 {
		c.FeedbackTTL = DefaultFeedbackTTL
	}
	return c
}

// CycleStats tracks what happened in a single retention cycle.
type CycleStats struct {
	PredictionsArchived int
	PredictionsPurged   int
	FeedbackArchived    int
	FeedbackPurged      int
	Errors              []error
}

// Janitor periodically archives and purges expired predictions and feedback.
type Janitor struct {
	store    store.Store
	cfg      Config
	archiver *Archiver // nil = purge without archiving
}

// NewJanitor creates a retention janitor. A nil archiver means expired data
// is purged without being archived.
func NewJanitor(s store.Store, cfg Config, archiver *Archiver) *Janitor {
	return &Janitor{
		store:    s,
		cfg:      cfg.withDefaults(),
		archiver: archiver,
	}
}

// Start runs the janitor loop. It blocks until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", j.cfg.Interval).
		Dur("prediction_ttl", j.cfg.PredictionTTL).
		Dur("feedback_ttl", j.cfg.FeedbackTTL).
		Bool("archiving", j.archiver != nil).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	// Run once immediately on startup
	j.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one retention sweep.
func (j *Janitor) RunCycle(ctx context.Context) CycleStats {
	start := time.Now()
	var stats CycleStats

	j.prunePredictions(ctx, &stats)
	j.pruneFeedback(ctx, &stats)

	for _, err := range stats.Errors {
		log.Warn().Err(err).Msg("Retention cycle error")
	}
	if stats.PredictionsPurged > 0 || stats.FeedbackPurged > 0 {
		log.Info().
			Int("predictions_purged", stats.PredictionsPurged).
			Int("feedback_purged", stats.FeedbackPurged).
			Int("archived", stats.PredictionsArchived+stats.FeedbackArchived).
			Dur("elapsed", time.Since(start)).
			Msg("Retention cycle complete")
	}
	return stats
}

func (j *Janitor) prunePredictions(ctx context.Context, stats *CycleStats) {
	cutoff := time.Now().UTC().Add(-j.cfg.PredictionTTL)

	if j.archiver != nil {
		expired, err := j.store.ListPredictionsBefore(ctx, cutoff, 0)
		if err != nil {
			stats.Errors = append(stats.Errors, err)
			return
		}
		if len(expired) == 0 {
			return
		}
		if _, err := j.archiver.ArchivePredictions(expired); err != nil {
			// Fail-safe: keep the data, retry next cycle.
			stats.Errors = append(stats.Errors, err)
			log.Warn().Err(err).Msg("Archive failed, skipping prediction purge")
			return
		}
		stats.PredictionsArchived = len(expired)
	}

	purged, err := j.store.DeletePredictionsBefore(ctx, cutoff)
	if err != nil {
		stats.Errors = append(stats.Errors, err)
		return
	}
	stats.PredictionsPurged = purged
}

func (j *Janitor) pruneFeedback(ctx context.Context, stats *CycleStats) {
	cutoff := time.Now().UTC().Add(-j.cfg.FeedbackTTL)

	if j.archiver != nil {
		expired, err := j.store.ListFeedbackBefore(ctx, cutoff, 0)
		if err != nil {
			stats.Errors = append(stats.Errors, err)
			return
		}
		if len(expired) == 0 {
			return
		}
		if _, err := j.archiver.ArchiveFeedback(expired); err != nil {
			stats.Errors = append(stats.Errors, err)
			log.Warn().Err(err).Msg("Archive failed, skipping feedback purge")
			return
		}
		stats.FeedbackArchived = len(expired)
	}

	purged, err := j.store.DeleteFeedbackBefore(ctx, cutoff)
	if err != nil {
		stats.Errors = append(stats.Errors, err)
		return
	}
	stats.FeedbackPurged = purged
}
