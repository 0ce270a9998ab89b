package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ngx-sales/decision-engine/pkg/models"
)

// ListModels returns the active version of every model, optionally filtered
// by prediction type (?type=objection|need|conversion).
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	typeFilter := models.PredictionType(r.URL.Query().Get("type"))
	if typeFilter != "" {
		switch typeFilter {
		case models.PredictionObjection, models.PredictionNeed, models.PredictionConversion:
		default:
			respondError(w, http.StatusBadRequest, CodeInvalidRequest, "type must be objection, need, or conversion")
			return
		}
	}

	records, err := h.Store.ListModels(r.Context(), typeFilter)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if records == nil {
		records = []models.ModelRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

// GetModel returns a model's active version plus its full version history.
func (h *Handlers) GetModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "modelName")

	active, err := h.Store.GetModel(r.Context(), name)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	versions, err := h.Store.ListModelVersions(r.Context(), name)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"model":    active,
		"versions": versions,
	})
}

type updateModelRequest struct {
	Type     models.PredictionType `json:"type"`
	Accuracy *float64              `json:"accuracy,omitempty"`
}

// UpdateModel updates the active version's metadata in place. Versions are
// only ever bumped by a completed training job.
func (h *Handlers) UpdateModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "modelName")

	existing, err := h.Store.GetModel(r.Context(), name)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var req updateModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}
	if req.Type != "" && req.Type != existing.Type {
		respondError(w, http.StatusBadRequest, CodeModelError, "model type cannot change")
		return
	}
	if req.Accuracy != nil {
		if *req.Accuracy < 0 || *req.Accuracy > 1 {
			respondError(w, http.StatusBadRequest, CodeInvalidRequest, "accuracy must be in [0,1]")
			return
		}
		existing.Accuracy = *req.Accuracy
	}
	existing.UpdatedAt = time.Now().UTC()

	if err := h.Store.PutModel(r.Context(), existing); err != nil {
		respondStoreError(w, err)
		return
	}

	log.Info().Str("model", name).Int("version", existing.Version).Msg("Model updated")
	respondJSON(w, http.StatusOK, existing)
}
