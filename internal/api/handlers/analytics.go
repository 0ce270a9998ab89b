package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ngx-sales/decision-engine/internal/store"
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// Analytics aggregates accuracy statistics, the adaptation rate, and recent
// training history. ?kind= narrows to one prediction kind; ?period= bounds
// the window (Go duration, or a day count like "7d"; default all time).
func (h *Handlers) Analytics(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind != "" {
		switch kind {
		case string(models.PredictionObjection), string(models.PredictionNeed), string(models.PredictionConversion):
		default:
			respondError(w, http.StatusBadRequest, CodeInvalidRequest, "kind must be objection, need, or conversion")
			return
		}
	}

	var windowStart time.Time
	if v := r.URL.Query().Get("period"); v != "" {
		d, err := parsePeriod(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, CodeInvalidRequest, "period must be a duration like 24h or 7d")
			return
		}
		windowStart = time.Now().UTC().Add(-d)
	}

	stats := h.Tracker.Snapshot(kind, windowStart)

	jobs, err := h.Store.ListTrainingJobs(r.Context(), store.TrainingFilter{Limit: 20})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if jobs == nil {
		jobs = []models.TrainingJob{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accuracy":         stats,
		"adaptation_rate":  h.Adaptation.GlobalAdaptationRate(),
		"training_history": jobs,
	})
}

// parsePeriod accepts Go durations plus a "Nd" day shorthand.
func parsePeriod(v string) (time.Duration, error) {
	if strings.HasSuffix(v, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(v, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(v)
}
