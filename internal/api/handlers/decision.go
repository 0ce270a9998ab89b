package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ngx-sales/decision-engine/internal/decision"
	"github.com/ngx-sales/decision-engine/internal/objective"
	"github.com/ngx-sales/decision-engine/internal/predict"
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// predictAll runs the three predictors concurrently, each under the
// prediction budget. A predictor that overruns contributes its fallback
// result; the other results still combine into a plan.
func (h *Handlers) predictAll(conversationID string, sig models.SignalVector, profile models.CustomerProfile) decision.PredictionSet {
	type objOut struct {
		r  predict.ObjectionResult
		ok bool
	}
	type needOut struct {
		r  predict.NeedsResult
		ok bool
	}
	type convOut struct {
		r  models.ConversionPrediction
		ok bool
	}

	objCh := make(chan objOut, 1)
	needCh := make(chan needOut, 1)
	convCh := make(chan convOut, 1)

	go func() {
		r, ok := runBounded(h.PredictTimeout, func() predict.ObjectionResult {
			return h.Objection.Predict(sig, profile)
		})
		objCh <- objOut{r, ok}
	}()
	go func() {
		r, ok := runBounded(h.PredictTimeout, func() predict.NeedsResult {
			return h.Needs.Predict(sig, profile)
		})
		needCh <- needOut{r, ok}
	}()
	go func() {
		r, ok := runBounded(h.PredictTimeout, func() models.ConversionPrediction {
			return h.Conversion.Predict(sig, profile)
		})
		convCh <- convOut{r, ok}
	}()

	obj := <-objCh
	need := <-needCh
	conv := <-convCh

	set := decision.PredictionSet{Objections: obj.r, Needs: need.r, Conversion: conv.r}
	if !obj.ok {
		set.Objections = h.Objection.FallbackResult()
		h.logDegraded(conversationID, ModelObjection)
	}
	if !need.ok {
		set.Needs = h.Needs.FallbackResult()
		h.logDegraded(conversationID, ModelNeeds)
	}
	if !conv.ok {
		set.Conversion = h.Conversion.FallbackResult()
		h.logDegraded(conversationID, ModelConversion)
	}
	return set
}

func (h *Handlers) logDegraded(conversationID, modelName string) {
	log.Warn().
		Str("conversation_id", conversationID).
		Str("model", modelName).
		Str("stage", "optimize").
		Msg("Predictor degraded, combining fallback result")
}

func (h *Handlers) objectiveInputs(preds decision.PredictionSet, sig models.SignalVector) objective.Inputs {
	return objective.Inputs{
		MaxObjectionConfidence: preds.Objections.Confidence,
		NeedConfidence:         preds.Needs.Confidence,
		NeedSatisfaction:       sig.Get(models.SignalNeedSatisfaction),
		ConversionProbability:  preds.Conversion.Probability,
	}
}

type optimizeRequest struct {
	conversationInput
	CurrentObjectives *models.Objectives `json:"current_objectives,omitempty"`
}

// Optimize runs the full planning cycle: extract signals, predict, weigh
// objectives, build the decision tree and ranked action plan.
func (h *Handlers) Optimize(w http.ResponseWriter, r *http.Request) {
	var in optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}
	if msg, ok := in.validate(); !ok {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, msg)
		return
	}

	sig := h.Extractor.Extract(in.Conversation, in.Profile)
	preds := h.predictAll(in.Conversation.ID, sig, in.Profile)

	var objectives models.Objectives
	if in.CurrentObjectives != nil && nearOne(in.CurrentObjectives.Sum()) {
		objectives = *in.CurrentObjectives
	} else {
		objectives = h.Objectives.Compute(h.objectiveInputs(preds, sig))
	}
	h.setObjectives(in.Conversation.ID, objectives)
	h.Adaptation.RecordCycle(in.Conversation.ID)

	tree, actions := h.Decisions.Build(in.Conversation.ID, objectives, preds, sig)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"next_actions":  actions,
		"decision_tree": tree,
		"objectives":    objectives,
		"confidence":    tree.Confidence,
	})
}

type adaptRequest struct {
	conversationInput
	CurrentObjectives *models.Objectives `json:"current_objectives,omitempty"`
	Feedback          struct {
		Success bool                `json:"success"`
		Type    models.FeedbackType `json:"type,omitempty"`
		Details string              `json:"details,omitempty"`
	} `json:"feedback"`
}

// adaptationBase picks the objectives the feedback applies to: a valid
// caller-supplied strategy wins, then the weights carried from the last
// cycle, then a fresh computation.
func (h *Handlers) adaptationBase(in adaptRequest, preds decision.PredictionSet, sig models.SignalVector) models.Objectives {
	if in.CurrentObjectives != nil && nearOne(in.CurrentObjectives.Sum()) {
		return *in.CurrentObjectives
	}
	if current, ok := h.currentObjectives(in.Conversation.ID); ok {
		return current
	}
	return h.Objectives.Compute(h.objectiveInputs(preds, sig))
}

// Adapt applies live feedback to the conversation's objective weights and
// regenerates the plan. Failed feedback shifts weight toward the objective
// the feedback names; successful feedback leaves weights unchanged.
func (h *Handlers) Adapt(w http.ResponseWriter, r *http.Request) {
	var in adaptRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}
	if msg, ok := in.validate(); !ok {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, msg)
		return
	}

	fb := models.FeedbackRecord{
		ConversationID: in.Conversation.ID,
		Success:        in.Feedback.Success,
		Type:           in.Feedback.Type,
		Details:        in.Feedback.Details,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.Store.CreateFeedback(r.Context(), &fb); err != nil {
		log.Error().Err(err).
			Str("conversation_id", in.Conversation.ID).
			Str("stage", "adapt").
			Msg("Failed to persist feedback")
	}

	sig := h.Extractor.Extract(in.Conversation, in.Profile)
	preds := h.predictAll(in.Conversation.ID, sig, in.Profile)

	// Adapt counts its own decision cycle; the base objectives come from the
	// caller when supplied, else the conversation's last computed weights.
	current := h.adaptationBase(in, preds, sig)
	objectives, adapted := h.Adaptation.Adapt(in.Conversation.ID, current, fb)
	h.setObjectives(in.Conversation.ID, objectives)

	tree, actions := h.Decisions.Build(in.Conversation.ID, objectives, preds, sig)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"next_actions":  actions,
		"decision_tree": tree,
		"objectives":    objectives,
		"confidence":    tree.Confidence,
		"adapted":       adapted,
	})
}

// Prioritize computes the objective weights for a conversation without
// building a plan.
func (h *Handlers) Prioritize(w http.ResponseWriter, r *http.Request) {
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
	preds := h.predictAll(in.Conversation.ID, sig, in.Profile)
	objectives := h.Objectives.Compute(h.objectiveInputs(preds, sig))
	h.setObjectives(in.Conversation.ID, objectives)

	respondJSON(w, http.StatusOK, objectives)
}

type evaluatePathRequest struct {
	conversationInput
	PathActions []models.ActionCandidate `json:"path_actions"`
}

// EvaluatePath scores a completed sequence of past actions retrospectively.
func (h *Handlers) EvaluatePath(w http.ResponseWriter, r *http.Request) {
	var in evaluatePathRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return
	}
	if msg, ok := in.validate(); !ok {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, msg)
		return
	}

	eval := h.Paths.Evaluate(in.Conversation, in.PathActions, in.Profile)
	respondJSON(w, http.StatusOK, eval)
}

func nearOne(v float64) bool {
	return v > 1-1e-6 && v < 1+1e-6
}
