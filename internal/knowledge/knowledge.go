// Package knowledge holds the static knowledge resources consumed by the
// predictors and the decision tree builder: the objection→response table and
// the action template library.
//
// Both are immutable, versioned configuration injected at construction time.
// Nothing in this package is module-level mutable state, so content can be
// swapped per instance (tests, A/B content) without races.
package knowledge

import (
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// Base is an immutable knowledge snapshot.
type Base struct {
	Version            string
	ObjectionResponses map[models.ObjectionType][]string
	NeedActions        map[models.NeedCategory][]string
	ActionTemplates    []ActionTemplate
}

// ActionTemplate is one candidate action the ranker can propose. Prior is a
// static effectiveness estimate in [0,1]. When is an optional expr condition
// evaluated against the signal vector; an empty condition always matches.
type ActionTemplate struct {
	ID          string
	Category    models.ActionCategory
	Description string
	Content     string
	Prior       float64
	When        string
}

// ResponsesFor returns the suggested responses for an objection type.
// Unknown types yield an empty list, never nil semantics the caller must
// special-case.
func (b *Base) ResponsesFor(t models.ObjectionType) []string {
	if rs, ok := b.ObjectionResponses[t]; ok {
		return rs
	}
	return []string{}
}

// ActionsFor returns the suggested follow-up actions for a need category.
func (b *Base) ActionsFor(c models.NeedCategory) []string {
	if as, ok := b.NeedActions[c]; ok {
		return as
	}
	return []string{}
}

// TemplatesFor returns the action templates of one category, in declaration
// order (stable, so plans are deterministic).
func (b *Base) TemplatesFor(c models.ActionCategory) []ActionTemplate {
	var out []ActionTemplate
	for _, t := range b.ActionTemplates {
		if t.Category == c {
			out = append(out, t)
		}
	}
	return out
}

// Default returns the built-in knowledge base shipped with the engine.
func Default() *Base {
	return &Base{
		Version: "2026.08",
		ObjectionResponses: map[models.ObjectionType][]string{
			models.ObjectionPrice: {
				"Break the price down into per-seat monthly cost and compare against current spend.",
				"Offer the annual plan discount and reference the ROI calculator.",
				"Ask which budget range was approved and propose the closest tier.",
			},
			models.ObjectionValue: {
				"Walk through a case study from the same industry with measured outcomes.",
				"Quantify the time saved per week for their team size.",
			},
			models.ObjectionNeed: {
				"Revisit the problems they described earlier and map each to a capability.",
				"Ask what would have to be true for this to become a priority this quarter.",
			},
			models.ObjectionAuthority: {
				"Offer a one-page summary the contact can forward to the decision maker.",
				"Propose a short call including the budget owner.",
			},
			models.ObjectionTrust: {
				"Share security documentation and compliance certifications.",
				"Offer references from customers of similar size.",
			},
		},
		NeedActions: map[models.NeedCategory][]string{
			models.NeedEfficiency:    {"Demo the automation workflow end to end.", "Share the time-savings benchmark."},
			models.NeedCostReduction: {"Present the cost comparison worksheet.", "Highlight consolidation of existing tools."},
			models.NeedIntegration:   {"List the native integrations and the API docs.", "Offer a technical integration call."},
			models.NeedScalability:   {"Show usage limits per plan and the enterprise tier.", "Reference the largest deployment in production."},
			models.NeedSupport:       {"Explain SLAs and the onboarding program.", "Introduce the dedicated success manager."},
		},
		ActionTemplates: []ActionTemplate{
			// Objection handling
			{
				ID: "obj-price-breakdown", Category: models.ActionObjectionResponse,
				Description: "Address the price objection with a cost breakdown",
				Content:     "Let me break down the pricing so you can see exactly what you'd pay per user.",
				Prior:       0.85,
				When:        "price_mentions > 0 or pricing_requests > 0",
			},
			{
				ID: "obj-value-case-study", Category: models.ActionObjectionResponse,
				Description: "Counter the value objection with an industry case study",
				Content:     "A company in your industry saw measurable results within the first quarter — here's how.",
				Prior:       0.75,
			},
			{
				ID: "obj-trust-proof", Category: models.ActionObjectionResponse,
				Description: "Build trust with security and compliance proof points",
				Content:     "Here's our security documentation and a couple of references you can talk to.",
				Prior:       0.7,
				When:        "trust_mentions > 0",
			},
			// Need satisfaction
			{
				ID: "need-integration-walkthrough", Category: models.ActionNeedSatisfaction,
				Description: "Walk through the integration options for their stack",
				Content:     "We integrate natively with the major CRMs — I can show you the exact setup for yours.",
				Prior:       0.85,
				When:        "integration_requests > 0",
			},
			{
				ID: "need-discovery-question", Category: models.ActionNeedSatisfaction,
				Description: "Ask a discovery question about their main bottleneck",
				Content:     "What part of your current process costs your team the most time today?",
				Prior:       0.65,
			},
			{
				ID: "need-tailored-demo", Category: models.ActionNeedSatisfaction,
				Description: "Offer a demo tailored to the needs raised so far",
				Content:     "I'd like to show you a 15-minute demo focused on the workflows you mentioned.",
				Prior:       0.8,
				When:        "demo_requests > 0 or feature_mentions > 0",
			},
			// Conversion progression
			{
				ID: "conv-trial-close", Category: models.ActionConversionProgression,
				Description: "Propose a trial as the next concrete step",
				Content:     "Shall we set up a two-week trial with your team so you can evaluate it hands-on?",
				Prior:       0.8,
				When:        "buying_signals > 0",
			},
			{
				ID: "conv-next-meeting", Category: models.ActionConversionProgression,
				Description: "Schedule the next meeting with stakeholders",
				Content:     "Let's get 30 minutes on the calendar with your team to go over the rollout plan.",
				Prior:       0.7,
			},
			{
				ID: "conv-proposal", Category: models.ActionConversionProgression,
				Description: "Send a written proposal with pricing and timeline",
				Content:     "I'll send over a proposal covering scope, pricing, and an onboarding timeline.",
				Prior:       0.75,
				When:        "engagement_level >= 0.5",
			},
			// Exploration — always eligible, deliberately non-greedy
			{
				ID: "explore-open-question", Category: models.ActionExploration,
				Description: "Explore an unprobed area with an open question",
				Content:     "Out of curiosity — is there anything we haven't covered that matters for this decision?",
				Prior:       0.5,
			},
			{
				ID: "explore-stakeholders", Category: models.ActionExploration,
				Description: "Explore who else is involved in the decision",
				Content:     "Who else on your side would want to weigh in before moving forward?",
				Prior:       0.45,
			},
		},
	}
}
