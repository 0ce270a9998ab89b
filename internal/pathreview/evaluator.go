// Package pathreview scores a completed sequence of actions against the
// conversation it was applied to, for retrospective analytics.
package pathreview

import (
	"github.com/ngx-sales/decision-engine/internal/predict"
	"github.com/ngx-sales/decision-engine/internal/signals"
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// Fixed metric weights of the effectiveness average.
const (
	WeightObjectionReduction = 0.3
	WeightNeedsSatisfaction  = 0.3
	WeightConversionProgress = 0.3
	WeightActionAlignment    = 0.1

	// RecommendationThreshold: below this effectiveness, the evaluation
	// must carry at least one recommendation.
	RecommendationThreshold = 0.5
)

// Evaluator scores past action paths. Stateless; reuses the predictors to
// measure the end state of the conversation.
type Evaluator struct {
	extractor  *signals.Extractor
	objections *predict.ObjectionPredictor
	needs      *predict.NeedsPredictor
	conversion *predict.ConversionPredictor
}

// NewEvaluator creates a path evaluator.
func NewEvaluator(ex *signals.Extractor, op *predict.ObjectionPredictor, np *predict.NeedsPredictor, cp *predict.ConversionPredictor) *Evaluator {
	return &Evaluator{extractor: ex, objections: op, needs: np, conversion: cp}
}

// Evaluate computes the effectiveness of the taken path: a fixed-weight
// average of objection reduction, needs satisfaction, conversion progress,
// and action alignment, all in [0,1].
func (e *Evaluator) Evaluate(conv models.Conversation, path []models.ActionCandidate, profile models.CustomerProfile) models.PathEvaluation {
	sig := e.extractor.Extract(conv, profile)

	objRes := e.objections.Predict(sig, profile)
	needsRes := e.needs.Predict(sig, profile)
	convRes := e.conversion.Predict(sig, profile)

	metrics := models.PathMetrics{
		// Remaining objection pressure at the end of the conversation is
		// the complement of what was reduced.
		ObjectionReduction: clamp01(1 - objRes.Confidence),
		// Blend of answered requests and remaining unmet need.
		NeedsSatisfaction: clamp01(0.5*sig.Get(models.SignalNeedSatisfaction) + 0.5*(1-needsRes.Confidence)),
		ConversionProgress: clamp01(convRes.Probability),
		ActionAlignment:    alignment(path, objRes, needsRes, convRes),
	}

	effectiveness := clamp01(
		WeightObjectionReduction*metrics.ObjectionReduction +
			WeightNeedsSatisfaction*metrics.NeedsSatisfaction +
			WeightConversionProgress*metrics.ConversionProgress +
			WeightActionAlignment*metrics.ActionAlignment)

	return models.PathEvaluation{
		Effectiveness:   effectiveness,
		Metrics:         metrics,
		Recommendations: recommend(effectiveness, metrics),
	}
}

// alignment measures how well the taken actions matched what the
// conversation actually needed: each action scores by the end-state
// confidence of its own category, exploration scores a neutral 0.5.
func alignment(path []models.ActionCandidate, obj predict.ObjectionResult, needs predict.NeedsResult, conv models.ConversionPrediction) float64 {
	if len(path) == 0 {
		return 0
	}
	var total float64
	for _, a := range path {
		switch a.Category {
		case models.ActionObjectionResponse:
			total += obj.Confidence
		case models.ActionNeedSatisfaction:
			total += needs.Confidence
		case models.ActionConversionProgression:
			total += conv.Probability
		case models.ActionExploration:
			total += 0.5
		}
	}
	return clamp01(total / float64(len(path)))
}

// recommend produces corrective recommendations. When effectiveness is
// below the threshold the list is guaranteed non-empty: every weak metric
// yields one, and need_satisfaction is the fallback.
func recommend(effectiveness float64, m models.PathMetrics) []models.PathRecommendation {
	if effectiveness >= RecommendationThreshold {
		return []models.PathRecommendation{}
	}

	var recs []models.PathRecommendation
	if m.NeedsSatisfaction < RecommendationThreshold {
		recs = append(recs, models.PathRecommendation{
			Type:    "need_satisfaction",
			Message: "Stated needs were left partially unaddressed; revisit them before advancing.",
		})
	}
	if m.ObjectionReduction < RecommendationThreshold || m.ActionAlignment < RecommendationThreshold {
		recs = append(recs, models.PathRecommendation{
			Type:    "engagement",
			Message: "Objections or misaligned actions reduced engagement; re-engage on the open concerns.",
		})
	}
	if m.ConversionProgress < RecommendationThreshold {
		recs = append(recs, models.PathRecommendation{
			Type:    "conversion",
			Message: "Conversion did not advance; propose a concrete next step.",
		})
	}
	if len(recs) == 0 {
		recs = append(recs, models.PathRecommendation{
			Type:    "need_satisfaction",
			Message: "Overall effectiveness is low; restart discovery on unmet needs.",
		})
	}
	return recs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
