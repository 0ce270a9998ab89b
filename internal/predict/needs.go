package predict

import (
	"sort"
	"strings"

	"github.com/ngx-sales/decision-engine/internal/knowledge"
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// Explicit/inferred blend weights. Named so the blend itself is testable in
// isolation from the per-category signal formulas.
const (
	ExplicitWeight = 0.6
	InferredWeight = 0.4
)

// needTieOrder fixes the order of equal-confidence needs.
var needTieOrder = []models.NeedCategory{
	models.NeedIntegration, models.NeedCostReduction, models.NeedEfficiency,
	models.NeedScalability, models.NeedSupport,
}

// NeedsResult is the output of the needs predictor.
type NeedsResult struct {
	Needs      []models.PredictedNeed `json:"needs"`
	Confidence float64                `json:"confidence"`
	Fallback   bool                   `json:"fallback,omitempty"`
}

// NeedsPredictor scores customer need categories. Each category's confidence
// blends an explicit signal (direct requests in the text) with an inferred
// signal (profile/context match) using ExplicitWeight and InferredWeight.
type NeedsPredictor struct {
	kb        *knowledge.Base
	threshold float64
}

// NewNeedsPredictor creates a needs predictor. A threshold of 0 or less
// falls back to DefaultInclusionThreshold.
func NewNeedsPredictor(kb *knowledge.Base, threshold float64) *NeedsPredictor {
	if threshold <= 0 {
		threshold = DefaultInclusionThreshold
	}
	return &NeedsPredictor{kb: kb, threshold: threshold}
}

// FallbackResult is the degraded output used when scoring fails.
func (p *NeedsPredictor) FallbackResult() NeedsResult {
	return NeedsResult{Needs: []models.PredictedNeed{}, Fallback: true}
}

// Predict scores every need category, drops entries below the inclusion
// threshold, and sorts descending by confidence.
func (p *NeedsPredictor) Predict(sig models.SignalVector, profile models.CustomerProfile) NeedsResult {
	type scored struct {
		category models.NeedCategory
		explicit float64
		inferred float64
	}
	candidates := []scored{
		{models.NeedIntegration, p.integrationExplicit(sig), integrationInferred(profile)},
		{models.NeedCostReduction, p.costExplicit(sig), costInferred(profile)},
		{models.NeedEfficiency, p.efficiencyExplicit(sig), efficiencyInferred(profile)},
		{models.NeedScalability, p.scalabilityExplicit(sig), scalabilityInferred(profile)},
		{models.NeedSupport, p.supportExplicit(sig), supportInferred(profile)},
	}

	var needs []models.PredictedNeed
	var overall float64
	for _, c := range candidates {
		conf := clamp01(ExplicitWeight*c.explicit + InferredWeight*c.inferred)
		if conf > overall {
			overall = conf
		}
		if conf < p.threshold {
			continue
		}
		needs = append(needs, models.PredictedNeed{
			Category:         c.category,
			Confidence:       conf,
			Explicit:         c.explicit,
			Inferred:         c.inferred,
			SuggestedActions: p.kb.ActionsFor(c.category),
		})
	}

	sort.SliceStable(needs, func(i, j int) bool {
		if needs[i].Confidence != needs[j].Confidence {
			return needs[i].Confidence > needs[j].Confidence
		}
		return needTieRank(needs[i].Category) < needTieRank(needs[j].Category)
	})

	if needs == nil {
		needs = []models.PredictedNeed{}
	}
	return NeedsResult{Needs: needs, Confidence: overall}
}

func needTieRank(c models.NeedCategory) int {
	for i, nc := range needTieOrder {
		if nc == c {
			return i
		}
	}
	return len(needTieOrder)
}

// ── Explicit signals (from text) ─────────────────────────────

func (p *NeedsPredictor) integrationExplicit(sig models.SignalVector) float64 {
	return clamp01(sig.Get(models.SignalIntegrationRequests))
}

func (p *NeedsPredictor) costExplicit(sig models.SignalVector) float64 {
	return clamp01(0.7*sig.Get(models.SignalPriceMentions) + 0.3*sig.Get(models.SignalPricingRequests))
}

func (p *NeedsPredictor) efficiencyExplicit(sig models.SignalVector) float64 {
	return clamp01(0.5*sig.Get(models.SignalUrgencyMentions) + 0.5*sig.Get(models.SignalFeatureMentions))
}

func (p *NeedsPredictor) scalabilityExplicit(sig models.SignalVector) float64 {
	return clamp01(0.4*sig.Get(models.SignalFeatureMentions) + 0.3*sig.Get(models.SignalUrgencyMentions))
}

func (p *NeedsPredictor) supportExplicit(sig models.SignalVector) float64 {
	return clamp01(sig.Get(models.SignalSupportRequests))
}

// ── Inferred signals (from profile) ──────────────────────────

func integrationInferred(p models.CustomerProfile) float64 {
	switch strings.ToLower(p.Industry) {
	case "saas", "software", "technology":
		return 0.7
	case "retail", "ecommerce", "finance":
		return 0.5
	default:
		return 0.3
	}
}

func costInferred(p models.CustomerProfile) float64 {
	switch strings.ToLower(p.CompanySize) {
	case "small", "startup":
		return 0.7
	case "medium":
		return 0.5
	default:
		return 0.3
	}
}

func efficiencyInferred(p models.CustomerProfile) float64 {
	switch strings.ToLower(p.Industry) {
	case "manufacturing", "logistics", "retail":
		return 0.6
	default:
		return 0.4
	}
}

func scalabilityInferred(p models.CustomerProfile) float64 {
	switch strings.ToLower(p.CompanySize) {
	case "large", "enterprise":
		return 0.7
	case "medium":
		return 0.4
	default:
		return 0.2
	}
}

func supportInferred(p models.CustomerProfile) float64 {
	if strings.ToLower(p.CompanySize) == "small" || strings.ToLower(p.CompanySize) == "startup" {
		return 0.5
	}
	return 0.3
}
