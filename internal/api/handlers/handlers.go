// Package handlers implements the HTTP handlers for the decision engine.
// All handlers use the Store interface, so the in-memory and PostgreSQL
// backends are interchangeable behind the same API.
package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ngx-sales/decision-engine/internal/accuracy"
	"github.com/ngx-sales/decision-engine/internal/decision"
	"github.com/ngx-sales/decision-engine/internal/objective"
	"github.com/ngx-sales/decision-engine/internal/pathreview"
	"github.com/ngx-sales/decision-engine/internal/predict"
	"github.com/ngx-sales/decision-engine/internal/signals"
	"github.com/ngx-sales/decision-engine/internal/store"
	"github.com/ngx-sales/decision-engine/internal/training"
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// Error codes returned at the API boundary.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeResourceNotFound  = "RESOURCE_NOT_FOUND"
	CodeModelError        = "MODEL_ERROR"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store      store.Store
	Extractor  *signals.Extractor
	Objection  *predict.ObjectionPredictor
	Needs      *predict.NeedsPredictor
	Conversion *predict.ConversionPredictor
	Objectives *objective.Manager
	Adaptation *objective.Controller
	Decisions  *decision.Builder
	Paths      *pathreview.Evaluator
	Scheduler  *training.Scheduler
	Tracker    *accuracy.Tracker

	// PredictTimeout bounds each predictor on the request path; on expiry
	// the handler substitutes the predictor's fallback result.
	PredictTimeout time.Duration

	// Current objectives per conversation, carried between optimize and
	// adapt cycles.
	objMu     sync.Mutex
	objByConv map[string]models.Objectives
}

// Config carries the handler dependencies to New.
type Config struct {
	Store          store.Store
	Extractor      *signals.Extractor
	Objection      *predict.ObjectionPredictor
	Needs          *predict.NeedsPredictor
	Conversion     *predict.ConversionPredictor
	Objectives     *objective.Manager
	Adaptation     *objective.Controller
	Decisions      *decision.Builder
	Paths          *pathreview.Evaluator
	Scheduler      *training.Scheduler
	Tracker        *accuracy.Tracker
	PredictTimeout time.Duration
}

// New creates a new Handlers instance with all dependencies.
func New(cfg Config) *Handlers {
	timeout := cfg.PredictTimeout
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return &Handlers{
		Store:          cfg.Store,
		Extractor:      cfg.Extractor,
		Objection:      cfg.Objection,
		Needs:          cfg.Needs,
		Conversion:     cfg.Conversion,
		Objectives:     cfg.Objectives,
		Adaptation:     cfg.Adaptation,
		Decisions:      cfg.Decisions,
		Paths:          cfg.Paths,
		Scheduler:      cfg.Scheduler,
		Tracker:        cfg.Tracker,
		PredictTimeout: timeout,
		objByConv:      make(map[string]models.Objectives),
	}
}

// conversationInput is the shared request body of the prediction and
// decision endpoints.
type conversationInput struct {
	Conversation models.Conversation    `json:"conversation"`
	Profile      models.CustomerProfile `json:"profile"`
}

func (in conversationInput) validate() (string, bool) {
	if in.Conversation.ID == "" {
		return "conversation.id is required", false
	}
	if err := models.ValidateConversation(in.Conversation); err != nil {
		return err.Error(), false
	}
	if in.Profile.ID == "" {
		return "profile.id is required", false
	}
	return "", true
}

// currentObjectives returns the conversation's last computed objectives, or
// false when this is the first cycle.
func (h *Handlers) currentObjectives(conversationID string) (models.Objectives, bool) {
	h.objMu.Lock()
	defer h.objMu.Unlock()
	o, ok := h.objByConv[conversationID]
	return o, ok
}

func (h *Handlers) setObjectives(conversationID string, o models.Objectives) {
	h.objMu.Lock()
	h.objByConv[conversationID] = o
	h.objMu.Unlock()
}

// forgetConversation drops a closed conversation's planning state: the
// carried objectives here and the adaptation stats in the controller. Its
// cycles fold out of the global adaptation rate at the same time, so the
// rate always describes live conversations.
func (h *Handlers) forgetConversation(conversationID string) {
	h.objMu.Lock()
	delete(h.objByConv, conversationID)
	h.objMu.Unlock()
	h.Adaptation.Forget(conversationID)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": message, "code": code})
}

// respondStoreError maps a store failure onto the API error taxonomy.
func respondStoreError(w http.ResponseWriter, err error) {
	if store.IsNotFound(err) {
		respondError(w, http.StatusNotFound, CodeResourceNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
}
