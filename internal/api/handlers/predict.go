package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ngx-sales/decision-engine/internal/predict"
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// Names of the seeded prediction models. Training jobs and outcome records
// refer to models by these names.
const (
	ModelObjection  = "objection-model"
	ModelNeeds      = "needs-model"
	ModelConversion = "conversion-model"
)

// runBounded executes fn with the prediction-path budget. On overrun the
// caller receives ok=false and serves the fallback result; the stray
// goroutine finishes and its result is dropped.
func runBounded[T any](timeout time.Duration, fn func() T) (T, bool) {
	done := make(chan T, 1)
	go func() { done <- fn() }()
	select {
	case v := <-done:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// PredictObjection scores the likely customer objections for a conversation.
func (h *Handlers) PredictObjection(w http.ResponseWriter, r *http.Request) {
	var in conversationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}
	if msg, ok := in.validate(); !ok {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, msg)
		return
	}

	sig := h.Extractor.Extract(in.Conversation, in.Profile)
	result, ok := runBounded(h.PredictTimeout, func() predict.ObjectionResult {
		return h.Objection.Predict(sig, in.Profile)
	})
	if !ok {
		log.Warn().
			Str("conversation_id", in.Conversation.ID).
			Str("model", ModelObjection).
			Str("stage", "predict").
			Msg("Prediction budget exceeded, serving fallback")
		result = h.Objection.FallbackResult()
	}

	pred := h.persistPrediction(r, in.Conversation.ID, models.PredictionObjection, ModelObjection, topObjection(result), result.Confidence, result.Fallback)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"prediction_id": pred.ID,
		"objections":    result.Objections,
		"confidence":    result.Confidence,
		"fallback":      result.Fallback,
		"signals":       sig.Values,
		"low_signal":    sig.LowSignal,
	})
}

// PredictNeeds scores the likely customer needs for a conversation.
func (h *Handlers) PredictNeeds(w http.ResponseWriter, r *http.Request) {
	var in conversationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}
	if msg, ok := in.validate(); !ok {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, msg)
		return
	}

	sig := h.Extractor.Extract(in.Conversation, in.Profile)
	result, ok := runBounded(h.PredictTimeout, func() predict.NeedsResult {
		return h.Needs.Predict(sig, in.Profile)
	})
	if !ok {
		log.Warn().
			Str("conversation_id", in.Conversation.ID).
			Str("model", ModelNeeds).
			Str("stage", "predict").
			Msg("Prediction budget exceeded, serving fallback")
		result = h.Needs.FallbackResult()
	}

	pred := h.persistPrediction(r, in.Conversation.ID, models.PredictionNeed, ModelNeeds, topNeed(result), result.Confidence, result.Fallback)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"prediction_id": pred.ID,
		"needs":         result.Needs,
		"confidence":    result.Confidence,
		"fallback":      result.Fallback,
		"features":      sig.Values,
		"low_signal":    sig.LowSignal,
	})
}

// PredictConversion estimates the conversion probability for a conversation.
func (h *Handlers) PredictConversion(w http.ResponseWriter, r *http.Request) {
	var in conversationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}
	if msg, ok := in.validate(); !ok {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, msg)
		return
	}

	sig := h.Extractor.Extract(in.Conversation, in.Profile)
	result, ok := runBounded(h.PredictTimeout, func() models.ConversionPrediction {
		return h.Conversion.Predict(sig, in.Profile)
	})
	if !ok {
		log.Warn().
			Str("conversation_id", in.Conversation.ID).
			Str("model", ModelConversion).
			Str("stage", "predict").
			Msg("Prediction budget exceeded, serving fallback")
		result = h.Conversion.FallbackResult()
	}

	pred := h.persistPrediction(r, in.Conversation.ID, models.PredictionConversion, ModelConversion, string(result.Category), result.Probability, result.Fallback)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"prediction_id":                pred.ID,
		"probability":                  result.Probability,
		"confidence":                   result.Confidence,
		"category":                     result.Category,
		"key_factors":                  result.KeyFactors,
		"estimated_time_to_conversion": result.TimeToConversion,
		"fallback":                     result.Fallback,
		"signals":                      sig.Values,
		"recommendations":              conversionRecommendations(result),
	})
}

// persistPrediction stores the served prediction so a later outcome can be
// matched against it. Persistence failures are logged, never surfaced; the
// prediction itself was already computed.
func (h *Handlers) persistPrediction(r *http.Request, conversationID string, ptype models.PredictionType, modelName, category string, confidence float64, fallback bool) models.Prediction {
	pred := models.Prediction{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Type:           ptype,
		Category:       category,
		Confidence:     confidence,
		ModelName:      modelName,
		Fallback:       fallback,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.Store.CreatePrediction(r.Context(), &pred); err != nil {
		log.Error().Err(err).
			Str("conversation_id", conversationID).
			Str("model", modelName).
			Str("stage", "persist").
			Msg("Failed to persist prediction")
	}
	return pred
}

func topObjection(r predict.ObjectionResult) string {
	if len(r.Objections) == 0 {
		return ""
	}
	return string(r.Objections[0].Type)
}

func topNeed(r predict.NeedsResult) string {
	if len(r.Needs) == 0 {
		return ""
	}
	return string(r.Needs[0].Category)
}

// conversionRecommendations names the factors working against conversion.
func conversionRecommendations(p models.ConversionPrediction) []string {
	var recs []string
	for _, f := range p.KeyFactors {
		if f.Impact < 0 {
			recs = append(recs, "Address "+f.Name+" before advancing the deal")
		}
	}
	if len(recs) == 0 && p.Probability < 0.5 {
		recs = append(recs, "Increase engagement to improve conversion odds")
	}
	return recs
}
