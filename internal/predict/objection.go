package predict

import (
	"sort"
	"strings"

	"github.com/ngx-sales/decision-engine/internal/knowledge"
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// ObjectionResult is the output of the objection predictor.
type ObjectionResult struct {
	Objections []models.PredictedObjection `json:"objections"`
	Confidence float64                     `json:"confidence"`
	Fallback   bool                        `json:"fallback,omitempty"`
}

// ObjectionPredictor scores the likelihood of each objection type from the
// signal vector. Stateless; suggested responses come from the injected
// knowledge base.
type ObjectionPredictor struct {
	kb        *knowledge.Base
	threshold float64
}

// NewObjectionPredictor creates an objection predictor. A threshold of 0 or
// less falls back to DefaultInclusionThreshold.
func NewObjectionPredictor(kb *knowledge.Base, threshold float64) *ObjectionPredictor {
	if threshold <= 0 {
		threshold = DefaultInclusionThreshold
	}
	return &ObjectionPredictor{kb: kb, threshold: threshold}
}

// FallbackResult is the degraded output used when scoring fails or exceeds
// its budget: empty list, zero confidence, fallback flag set.
func (p *ObjectionPredictor) FallbackResult() ObjectionResult {
	return ObjectionResult{Objections: []models.PredictedObjection{}, Fallback: true}
}

// Predict scores all objection types, drops entries below the inclusion
// threshold, and orders the rest by descending confidence. Equal confidences
// break by the fixed priority order price > value > need > authority > trust.
func (p *ObjectionPredictor) Predict(sig models.SignalVector, profile models.CustomerProfile) ObjectionResult {
	scores := map[models.ObjectionType]float64{
		models.ObjectionPrice:     p.priceScore(sig),
		models.ObjectionValue:     p.valueScore(sig),
		models.ObjectionNeed:      p.needScore(sig),
		models.ObjectionAuthority: p.authorityScore(sig, profile),
		models.ObjectionTrust:     p.trustScore(sig),
	}

	var objections []models.PredictedObjection
	var overall float64
	for t, conf := range scores {
		if conf > overall {
			overall = conf
		}
		if conf < p.threshold {
			continue
		}
		objections = append(objections, models.PredictedObjection{
			Type:               t,
			Confidence:         conf,
			SuggestedResponses: p.kb.ResponsesFor(t),
		})
	}

	sort.SliceStable(objections, func(i, j int) bool {
		if objections[i].Confidence != objections[j].Confidence {
			return objections[i].Confidence > objections[j].Confidence
		}
		return tieRank(objections[i].Type) < tieRank(objections[j].Type)
	})

	if objections == nil {
		objections = []models.PredictedObjection{}
	}
	return ObjectionResult{Objections: objections, Confidence: overall}
}

// tieRank returns the position of t in the fixed tie-break order.
func tieRank(t models.ObjectionType) int {
	for i, ot := range models.ObjectionTiePriority {
		if ot == t {
			return i
		}
	}
	return len(models.ObjectionTiePriority)
}

// Per-type scoring. The weights are fixed model coefficients, not tunables;
// retraining replaces the model version rather than editing these in place.

func (p *ObjectionPredictor) priceScore(sig models.SignalVector) float64 {
	return clamp01(0.45*sig.Get(models.SignalPriceMentions) +
		0.35*sig.Get(models.SignalPricingRequests) +
		0.20*sig.Get(models.SignalSentimentNegative))
}

func (p *ObjectionPredictor) valueScore(sig models.SignalVector) float64 {
	return clamp01(0.40*sig.Get(models.SignalSentimentNegative) +
		0.30*sig.Get(models.SignalFeatureMentions) +
		0.15*(1-sig.Get(models.SignalEngagementLevel)))
}

func (p *ObjectionPredictor) needScore(sig models.SignalVector) float64 {
	return clamp01(0.35*sig.Get(models.SignalSentimentNegative) +
		0.25*(1-sig.Get(models.SignalEngagementLevel)))
}

func (p *ObjectionPredictor) authorityScore(sig models.SignalVector, profile models.CustomerProfile) float64 {
	return clamp01(0.50*roleAuthorityGap(profile) +
		0.15*sig.Get(models.SignalUrgencyMentions))
}

func (p *ObjectionPredictor) trustScore(sig models.SignalVector) float64 {
	return clamp01(0.50*sig.Get(models.SignalTrustMentions) +
		0.30*sig.Get(models.SignalSentimentNegative))
}

// roleAuthorityGap estimates how far the contact is from purchase authority.
func roleAuthorityGap(profile models.CustomerProfile) float64 {
	switch strings.ToLower(profile.Role) {
	case "ceo", "founder", "owner", "cto", "vp", "director":
		return 0
	case "manager", "head", "lead":
		return 0.4
	case "analyst", "developer", "engineer", "individual contributor":
		return 1
	default:
		return 0.3
	}
}
