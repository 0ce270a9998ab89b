package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ngx-sales/decision-engine/internal/store"
	"github.com/ngx-sales/decision-engine/internal/training"
	"github.com/ngx-sales/decision-engine/pkg/models"
)

type scheduleTrainingRequest struct {
	ModelName string `json:"model_name"`
	Force     bool   `json:"force,omitempty"`
}

// ScheduleTraining creates a training job for a model. Without force the
// retraining criteria must be met; a model with a pending job is rejected
// either way.
func (h *Handlers) ScheduleTraining(w http.ResponseWriter, r *http.Request) {
	var req scheduleTrainingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}
	if req.ModelName == "" {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "model_name is required")
		return
	}

	job, err := h.Scheduler.Schedule(r.Context(), req.ModelName, req.Force)
	if err != nil {
		switch {
		case errors.Is(err, training.ErrAlreadyScheduled):
			respondError(w, http.StatusConflict, CodeInvalidRequest, err.Error())
		case store.IsNotFound(err):
			respondError(w, http.StatusNotFound, CodeResourceNotFound, err.Error())
		case strings.Contains(err.Error(), "criteria not met"):
			respondError(w, http.StatusConflict, CodeInvalidRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"training_id":          job.ID,
		"message":              "Training scheduled for " + req.ModelName,
		"estimated_completion": job.StartTime.Add(h.Scheduler.FitDuration()),
	})
}

// GetTraining returns a training job by id.
func (h *Handlers) GetTraining(w http.ResponseWriter, r *http.Request) {
	job, err := h.Store.GetTrainingJob(r.Context(), chi.URLParam(r, "trainingId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// ListTrainings returns training jobs, filtered by ?model=, ?status=, and
// bounded by ?limit=.
func (h *Handlers) ListTrainings(w http.ResponseWriter, r *http.Request) {
	filter := store.TrainingFilter{
		ModelName: r.URL.Query().Get("model"),
		Status:    models.TrainingStatus(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, CodeInvalidRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	jobs, err := h.Store.ListTrainingJobs(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if jobs == nil {
		jobs = []models.TrainingJob{}
	}
	respondJSON(w, http.StatusOK, jobs)
}

// CancelTraining cancels a scheduled or in-progress training job.
func (h *Handlers) CancelTraining(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "trainingId")
	if err := h.Scheduler.Cancel(r.Context(), id); err != nil {
		if store.IsNotFound(err) {
			respondStoreError(w, err)
			return
		}
		respondError(w, http.StatusConflict, CodeInvalidRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"training_id": id,
		"message":     "Training cancellation requested",
	})
}

// ShouldRetrain reports whether a model currently meets the retraining
// criteria.
func (h *Handlers) ShouldRetrain(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "modelName")
	due, reason, err := h.Scheduler.ShouldRetrain(r.Context(), name)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"model_name":   name,
		"should_train": due,
		"reason":       reason,
	})
}

// AutoScheduleTraining sweeps every model against the retraining criteria
// and schedules the ones that are due.
func (h *Handlers) AutoScheduleTraining(w http.ResponseWriter, r *http.Request) {
	results, err := h.Scheduler.AutoSchedule(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}

	scheduled := make([]training.ScheduleResult, 0)
	skipped := make([]training.ScheduleResult, 0)
	for _, res := range results {
		if res.Scheduled {
			scheduled = append(scheduled, res)
		} else {
			skipped = append(skipped, res)
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scheduled": scheduled,
		"skipped":   skipped,
	})
}
