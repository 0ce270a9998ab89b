package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ngx-sales/decision-engine/pkg/models"
)

type recordOutcomeRequest struct {
	ConversationID string `json:"conversation_id"`
	Kind           string `json:"kind"` // objection | need | conversion
	ActualValue    string `json:"actual_value"`
	PredictionID   string `json:"prediction_id,omitempty"`
}

// RecordOutcome records a real observed result against a past prediction.
// The outcome id is derived from the conversation, kind, and matched
// prediction, so recording the same outcome twice is idempotent: the second
// call returns the stored result unchanged.
func (h *Handlers) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	var in recordOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}
	if in.ConversationID == "" || in.ActualValue == "" {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "conversation_id and actual_value are required")
		return
	}
	switch in.Kind {
	case string(models.PredictionObjection), string(models.PredictionNeed), string(models.PredictionConversion):
	default:
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "kind must be objection, need, or conversion")
		return
	}

	outcome := models.RecordedOutcome{
		ID:             outcomeID(in.ConversationID, in.Kind, in.PredictionID),
		ConversationID: in.ConversationID,
		Kind:           in.Kind,
		ActualCategory: in.ActualValue,
		RecordedAt:     time.Now().UTC(),
	}

	if in.PredictionID != "" {
		pred, err := h.Store.GetPrediction(r.Context(), in.PredictionID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		outcome.PredictionID = pred.ID
		outcome.PredictedCategory = pred.Category
		outcome.Confidence = pred.Confidence
	}
	outcome.WasCorrect = outcome.PredictedCategory != "" &&
		strings.EqualFold(outcome.PredictedCategory, in.ActualValue)

	stored, created, err := h.Tracker.Record(r.Context(), outcome)
	if err != nil {
		log.Error().Err(err).
			Str("conversation_id", in.ConversationID).
			Str("stage", "record_outcome").
			Msg("Failed to persist outcome")
		respondError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
		return
	}

	// A conversion outcome ends the conversation; release its planning state.
	if created && in.Kind == string(models.PredictionConversion) {
		h.forgetConversation(in.ConversationID)
	}

	status := "recorded"
	if !created {
		status = "duplicate"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":          stored.ID,
		"status":      status,
		"was_correct": stored.WasCorrect,
	})
}

func outcomeID(conversationID, kind, predictionID string) string {
	id := conversationID + ":" + kind
	if predictionID != "" {
		id += ":" + predictionID
	}
	return id
}
