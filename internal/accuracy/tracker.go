// Package accuracy aggregates recorded real outcomes against past
// predictions into per-model accuracy statistics.
//
// The tracker is append-then-aggregate: outcomes are appended under a short
// write lock and statistics are computed on the read path from a copied
// slice, so reads never block writes.
package accuracy

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ngx-sales/decision-engine/internal/store"
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// Stats is an aggregated accuracy snapshot for one prediction kind within a
// time window.
type Stats struct {
	Kind          string         `json:"kind"`
	WindowStart   time.Time      `json:"window_start"`
	Total         int            `json:"total"`
	Correct       int            `json:"correct"`
	Accuracy      float64        `json:"accuracy"`
	Precision     float64        `json:"precision"`
	Recall        float64        `json:"recall"`
	F1            float64        `json:"f1"`
	ConfidenceAvg float64        `json:"confidence_avg"`
	Categories    map[string]int `json:"category_distribution"`
}

// Tracker maintains the in-memory outcome log and write-through persistence.
type Tracker struct {
	store store.Store

	mu       sync.RWMutex
	outcomes []models.RecordedOutcome
	byID     map[string]int // outcome id → index in outcomes
}

// NewTracker creates a tracker and hydrates its log from the store.
func NewTracker(ctx context.Context, st store.Store) (*Tracker, error) {
	t := &Tracker{
		store: st,
		byID:  make(map[string]int),
	}
	existing, err := st.ListOutcomes(ctx, "", time.Time{}, 0)
	if err != nil {
		return nil, err
	}
	for _, o := range existing {
		t.byID[o.ID] = len(t.outcomes)
		t.outcomes = append(t.outcomes, o)
	}
	if len(existing) > 0 {
		log.Info().Int("outcomes", len(existing)).Msg("Accuracy tracker hydrated")
	}
	return t, nil
}

// Record appends an outcome. Recording is idempotent per outcome id: a
// duplicate id returns the previously stored outcome unchanged, so the same
// actual value always yields the same was_correct.
func (t *Tracker) Record(ctx context.Context, o models.RecordedOutcome) (models.RecordedOutcome, bool, error) {
	t.mu.Lock()
	if idx, exists := t.byID[o.ID]; exists {
		stored := t.outcomes[idx]
		t.mu.Unlock()
		return stored, false, nil
	}
	t.byID[o.ID] = len(t.outcomes)
	t.outcomes = append(t.outcomes, o)
	t.mu.Unlock()

	if err := t.store.CreateOutcome(ctx, &o); err != nil {
		return o, true, err
	}
	return o, true, nil
}

// Get returns a recorded outcome by id.
func (t *Tracker) Get(id string) (models.RecordedOutcome, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.byID[id]
	if !ok {
		return models.RecordedOutcome{}, false
	}
	return t.outcomes[idx], true
}

// Snapshot aggregates the outcomes of one kind recorded since windowStart.
// A zero windowStart aggregates everything. The outcome slice is copied
// under the read lock; aggregation runs without holding it.
func (t *Tracker) Snapshot(kind string, windowStart time.Time) Stats {
	t.mu.RLock()
	copied := make([]models.RecordedOutcome, len(t.outcomes))
	copy(copied, t.outcomes)
	t.mu.RUnlock()

	var selected []models.RecordedOutcome
	for _, o := range copied {
		if kind != "" && o.Kind != kind {
			continue
		}
		if o.RecordedAt.Before(windowStart) {
			continue
		}
		selected = append(selected, o)
	}

	stats := Compute(selected)
	stats.Kind = kind
	stats.WindowStart = windowStart
	return stats
}

// Compute derives accuracy statistics from a set of outcomes. Precision and
// recall are macro-averaged over the categories that appear as either a
// prediction or an actual value.
func Compute(outcomes []models.RecordedOutcome) Stats {
	stats := Stats{Categories: make(map[string]int)}
	if len(outcomes) == 0 {
		return stats
	}

	var confidenceSum float64
	tp := make(map[string]int) // predicted c, actual c
	fp := make(map[string]int) // predicted c, actual != c
	fn := make(map[string]int) // actual c, predicted != c

	for _, o := range outcomes {
		stats.Total++
		stats.Categories[o.ActualCategory]++
		confidenceSum += o.Confidence
		if o.WasCorrect {
			stats.Correct++
			tp[o.ActualCategory]++
			continue
		}
		if o.PredictedCategory != "" {
			fp[o.PredictedCategory]++
		}
		fn[o.ActualCategory]++
	}

	stats.Accuracy = float64(stats.Correct) / float64(stats.Total)
	stats.ConfidenceAvg = confidenceSum / float64(stats.Total)

	categories := categorySet(tp, fp, fn)
	var precisionSum, recallSum float64
	for _, c := range categories {
		if tp[c]+fp[c] > 0 {
			precisionSum += float64(tp[c]) / float64(tp[c]+fp[c])
		}
		if tp[c]+fn[c] > 0 {
			recallSum += float64(tp[c]) / float64(tp[c]+fn[c])
		}
	}
	if len(categories) > 0 {
		stats.Precision = precisionSum / float64(len(categories))
		stats.Recall = recallSum / float64(len(categories))
	}
	if stats.Precision+stats.Recall > 0 {
		stats.F1 = 2 * stats.Precision * stats.Recall / (stats.Precision + stats.Recall)
	}
	return stats
}

func categorySet(sets ...map[string]int) []string {
	seen := make(map[string]bool)
	for _, s := range sets {
		for c := range s {
			seen[c] = true
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
