// Package models defines the shared data types of the decision engine:
// conversations, customer profiles, signal vectors, predictions, objectives,
// action plans, training jobs, and recorded outcomes.
package models

import (
	"fmt"
	"time"
)

// ── Conversation ─────────────────────────────────────────────

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is a single turn in a conversation. Messages are immutable once
// appended; the engine only ever reads them.
type Message struct {
	Role      MessageRole `json:"role"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
}

// Conversation is an ordered message sequence owned by the calling
// collaborator. The engine treats it as read-only input.
type Conversation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

// UserMessages returns the user-authored turns in order.
func (c Conversation) UserMessages() []Message {
	out := make([]Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			out = append(out, m)
		}
	}
	return out
}

// ── Customer Profile ─────────────────────────────────────────

// CustomerProfile carries the demographic and historical context used to
// derive prediction priors. Read-only input to the engine.
type CustomerProfile struct {
	ID              string            `json:"id"`
	Industry        string            `json:"industry,omitempty"`
	CompanySize     string            `json:"company_size,omitempty"` // small | medium | large | enterprise
	Role            string            `json:"role,omitempty"`
	Age             int               `json:"age,omitempty"`
	Segment         string            `json:"segment,omitempty"`
	PurchaseHistory []string          `json:"purchase_history,omitempty"`
	Preferences     map[string]string `json:"preferences,omitempty"`
}

// ── Signal Vector ────────────────────────────────────────────

// SignalVector is a flat map of named numeric features extracted from a
// conversation and profile. Produced fresh per request, never persisted.
// Sentiment and frequency features are bounded [0,1]; counters are not.
type SignalVector struct {
	Values    map[string]float64 `json:"values"`
	LowSignal bool               `json:"low_signal"`
}

// Get returns the named signal, or 0 when absent.
func (s SignalVector) Get(name string) float64 {
	return s.Values[name]
}

// Clone returns a deep copy of the vector.
func (s SignalVector) Clone() SignalVector {
	values := make(map[string]float64, len(s.Values))
	for k, v := range s.Values {
		values[k] = v
	}
	return SignalVector{Values: values, LowSignal: s.LowSignal}
}

// Well-known signal names. Predictors and action templates refer to these by
// name, so they are declared once here.
const (
	SignalSentimentPositive   = "sentiment_positive"
	SignalSentimentNegative   = "sentiment_negative"
	SignalPriceMentions       = "price_mentions"
	SignalFeatureMentions     = "feature_mentions"
	SignalTrustMentions       = "trust_mentions"
	SignalUrgencyMentions     = "urgency_mentions"
	SignalPricingRequests     = "pricing_requests"
	SignalDemoRequests        = "demo_requests"
	SignalIntegrationRequests = "integration_requests"
	SignalSupportRequests     = "support_requests"
	SignalBuyingSignals       = "buying_signals"
	SignalEngagementLevel     = "engagement_level"
	SignalMessageCount        = "message_count"
	SignalNeedSatisfaction    = "need_satisfaction"
	SignalSegmentPrior        = "segment_prior"
	SignalIndustryPrior       = "industry_prior"
)

// ── Predictions ──────────────────────────────────────────────

type PredictionType string

const (
	PredictionObjection  PredictionType = "objection"
	PredictionNeed       PredictionType = "need"
	PredictionConversion PredictionType = "conversion"
)

// Objection categories, in fixed tie-break priority order (highest first).
type ObjectionType string

const (
	ObjectionPrice     ObjectionType = "price"
	ObjectionValue     ObjectionType = "value"
	ObjectionNeed      ObjectionType = "need"
	ObjectionAuthority ObjectionType = "authority"
	ObjectionTrust     ObjectionType = "trust"
)

// ObjectionTiePriority orders objection types for deterministic tie-breaking
// when two candidates share the same confidence.
var ObjectionTiePriority = []ObjectionType{
	ObjectionPrice, ObjectionValue, ObjectionNeed, ObjectionAuthority, ObjectionTrust,
}

// PredictedObjection is one entry in an objection prediction list.
type PredictedObjection struct {
	Type               ObjectionType `json:"type"`
	Confidence         float64       `json:"confidence"`
	SuggestedResponses []string      `json:"suggested_responses"`
}

// NeedCategory identifies a customer need the product could satisfy.
type NeedCategory string

const (
	NeedEfficiency    NeedCategory = "efficiency"
	NeedCostReduction NeedCategory = "cost_reduction"
	NeedIntegration   NeedCategory = "integration"
	NeedScalability   NeedCategory = "scalability"
	NeedSupport       NeedCategory = "support"
)

// PredictedNeed is one entry in a needs prediction list.
type PredictedNeed struct {
	Category         NeedCategory `json:"category"`
	Confidence       float64      `json:"confidence"`
	Explicit         float64      `json:"explicit"`
	Inferred         float64      `json:"inferred"`
	SuggestedActions []string     `json:"suggested_actions"`
}

// ConversionCategory buckets a conversion probability.
type ConversionCategory string

const (
	ConversionLow      ConversionCategory = "low"
	ConversionMedium   ConversionCategory = "medium"
	ConversionHigh     ConversionCategory = "high"
	ConversionVeryHigh ConversionCategory = "very_high"
)

// KeyFactor is a named contributor to the conversion probability with a
// signed impact in [-1,1]. Negative impact works against conversion.
type KeyFactor struct {
	Name   string  `json:"name"`
	Impact float64 `json:"impact"`
}

// ConversionPrediction is the conversion predictor's output.
type ConversionPrediction struct {
	Probability      float64            `json:"probability"`
	Confidence       float64            `json:"confidence"`
	Category         ConversionCategory `json:"category"`
	KeyFactors       []KeyFactor        `json:"key_factors"`
	TimeToConversion string             `json:"estimated_time_to_conversion"`
	Fallback         bool               `json:"fallback,omitempty"`
}

// Prediction is the persisted form of a single prediction, stored so that
// recorded outcomes can later be matched against it.
type Prediction struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Type           PredictionType `json:"type"`
	Category       string         `json:"category"`
	Confidence     float64        `json:"confidence"`
	ModelName      string         `json:"model_name"`
	Fallback       bool           `json:"fallback,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ── Objectives ───────────────────────────────────────────────

// Objectives are the three conversation-objective weights. They always sum
// to 1 (±1e-6) and each weight stays at or above the configured floor.
type Objectives struct {
	NeedSatisfaction   float64 `json:"need_satisfaction"`
	ObjectionHandling  float64 `json:"objection_handling"`
	ConversionProgress float64 `json:"conversion_progress"`
}

// Sum returns the weight total.
func (o Objectives) Sum() float64 {
	return o.NeedSatisfaction + o.ObjectionHandling + o.ConversionProgress
}

// UniformObjectives returns the uniform prior (1/3 each).
func UniformObjectives() Objectives {
	return Objectives{
		NeedSatisfaction:   1.0 / 3.0,
		ObjectionHandling:  1.0 / 3.0,
		ConversionProgress: 1.0 / 3.0,
	}
}

// ── Actions & Decision Tree ──────────────────────────────────

type ActionCategory string

const (
	ActionObjectionResponse     ActionCategory = "objection_response"
	ActionNeedSatisfaction      ActionCategory = "need_satisfaction"
	ActionConversionProgression ActionCategory = "conversion_progression"
	ActionExploration           ActionCategory = "exploration"
)

type ActionPriority string

const (
	PriorityHigh   ActionPriority = "high"
	PriorityMedium ActionPriority = "medium"
	PriorityLow    ActionPriority = "low"
)

// ActionCandidate is one ranked entry in an action plan.
type ActionCandidate struct {
	ID          string         `json:"id"`
	Category    ActionCategory `json:"category"`
	Description string         `json:"description"`
	Content     string         `json:"content"`
	Score       float64        `json:"score"`
	Priority    ActionPriority `json:"priority"`
}

// TreeBranch is one per-category branch of a decision tree.
type TreeBranch struct {
	Category   ActionCategory    `json:"category"`
	Weight     float64           `json:"weight"`
	Confidence float64           `json:"confidence"`
	Score      float64           `json:"score"`
	Actions    []ActionCandidate `json:"actions"`
}

// DecisionTree is an explainable projection of objectives × predictions,
// rebuilt from scratch on every planning cycle.
type DecisionTree struct {
	ConversationID string       `json:"conversation_id"`
	Objectives     Objectives   `json:"objectives"`
	Branches       []TreeBranch `json:"branches"`
	Confidence     float64      `json:"confidence"`
	GeneratedAt    time.Time    `json:"generated_at"`
}

// ── Feedback ─────────────────────────────────────────────────

type FeedbackType string

const (
	FeedbackObjectionNotAddressed FeedbackType = "objection_not_addressed"
	FeedbackNeedNotSatisfied      FeedbackType = "need_not_satisfied"
	FeedbackConversionStalled     FeedbackType = "conversion_stalled"
)

// FeedbackRecord carries live feedback about the current strategy.
type FeedbackRecord struct {
	ConversationID string       `json:"conversation_id"`
	Success        bool         `json:"success"`
	Type           FeedbackType `json:"type,omitempty"`
	Details        string       `json:"details,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// ── Path Evaluation ──────────────────────────────────────────

// PathMetrics are the four component scores behind an effectiveness rating.
type PathMetrics struct {
	ObjectionReduction float64 `json:"objection_reduction"`
	NeedsSatisfaction  float64 `json:"needs_satisfaction"`
	ConversionProgress float64 `json:"conversion_progress"`
	ActionAlignment    float64 `json:"action_alignment"`
}

// PathRecommendation suggests a corrective focus for a weak path.
type PathRecommendation struct {
	Type    string `json:"type"` // need_satisfaction | engagement | conversion
	Message string `json:"message"`
}

// PathEvaluation is the retrospective score of an action sequence.
type PathEvaluation struct {
	Effectiveness   float64              `json:"effectiveness"`
	Metrics         PathMetrics          `json:"metrics"`
	Recommendations []PathRecommendation `json:"recommendations"`
}

// ── Training ─────────────────────────────────────────────────

type TrainingStatus string

const (
	TrainingScheduled  TrainingStatus = "scheduled"
	TrainingInProgress TrainingStatus = "in_progress"
	TrainingCompleted  TrainingStatus = "completed"
	TrainingFailed     TrainingStatus = "failed"
)

// Terminal reports whether a status permits no further transitions.
func (s TrainingStatus) Terminal() bool {
	return s == TrainingCompleted || s == TrainingFailed
}

// statusRank orders training statuses for the forward-only transition check.
var statusRank = map[TrainingStatus]int{
	TrainingScheduled:  0,
	TrainingInProgress: 1,
	TrainingCompleted:  2,
	TrainingFailed:     2,
}

// CanTransition reports whether moving from s to next is a forward
// transition. Backward transitions are never allowed.
func (s TrainingStatus) CanTransition(next TrainingStatus) bool {
	if s.Terminal() {
		return false
	}
	return statusRank[next] > statusRank[s]
}

// TrainingMetrics are the evaluation results of a completed training job.
type TrainingMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// TrainingJob is a background unit of work that produces a new model
// version. Status transitions are monotonic.
type TrainingJob struct {
	ID        string           `json:"id"`
	ModelName string           `json:"model_name"`
	Status    TrainingStatus   `json:"status"`
	StartTime time.Time        `json:"start_time"`
	EndTime   *time.Time       `json:"end_time,omitempty"`
	Metrics   *TrainingMetrics `json:"metrics,omitempty"`
	Error     string           `json:"error,omitempty"`
}

type ModelStatus string

const (
	ModelActive  ModelStatus = "active"
	ModelRetired ModelStatus = "retired"
)

// ModelRecord is one versioned model. Exactly one active version exists per
// model name at any time; a successful training job swaps it atomically and
// retires (never deletes) the previous version.
type ModelRecord struct {
	Name            string         `json:"name"`
	Type            PredictionType `json:"type"`
	Version         int            `json:"version"`
	Status          ModelStatus    `json:"status"`
	Accuracy        float64        `json:"accuracy"`
	TrainingSamples int            `json:"training_samples"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ── Outcomes ─────────────────────────────────────────────────

// RecordedOutcome is a real observed result matched against a past
// prediction, used for accuracy tracking and retraining criteria.
type RecordedOutcome struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	Kind              string    `json:"kind"` // objection | need | conversion
	PredictionID      string    `json:"matched_prediction_id,omitempty"`
	PredictedCategory string    `json:"predicted_category,omitempty"`
	ActualCategory    string    `json:"actual_category"`
	WasCorrect        bool      `json:"was_correct"`
	Confidence        float64   `json:"confidence"`
	RecordedAt        time.Time `json:"recorded_at"`
}

// ── Validation ───────────────────────────────────────────────

// MaxConversationMessages bounds accepted conversations; longer inputs are
// rejected before any model runs.
const MaxConversationMessages = 200

// ValidateConversation rejects malformed conversation input.
func ValidateConversation(c Conversation) error {
	if len(c.Messages) > MaxConversationMessages {
		return fmt.Errorf("conversation has %d messages, limit is %d", len(c.Messages), MaxConversationMessages)
	}
	for i, m := range c.Messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("message %d has invalid role %q", i, m.Role)
		}
	}
	return nil
}
