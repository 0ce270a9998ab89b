// Package decision combines objective weights and predictions into a ranked
// action plan plus an explainable decision tree.
//
// Scoring per candidate is objective_weight[category] × prediction_confidence
// × action_prior. An exploration branch is always present with a fixed score
// floor so the action space never collapses to a single repeated action.
package decision

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"

	"github.com/ngx-sales/decision-engine/internal/knowledge"
	"github.com/ngx-sales/decision-engine/internal/predict"
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// DefaultExplorationEpsilon is the fixed score assigned to exploration
// actions. Deterministic: no seed, no randomization, so identical inputs
// always produce identical plans.
const DefaultExplorationEpsilon = 0.05

// branchOrder fixes the decision tree branch layout.
var branchOrder = []models.ActionCategory{
	models.ActionObjectionResponse,
	models.ActionNeedSatisfaction,
	models.ActionConversionProgression,
	models.ActionExploration,
}

// PredictionSet bundles the three predictor outputs for one cycle.
type PredictionSet struct {
	Objections predict.ObjectionResult
	Needs      predict.NeedsResult
	Conversion models.ConversionPrediction
}

// Builder constructs decision trees and ranked action lists from a template
// library. Template eligibility conditions are compiled once at construction
// and evaluated against the signal vector per cycle.
type Builder struct {
	kb       *knowledge.Base
	epsilon  float64
	programs map[string]*vm.Program // template id → compiled When condition
}

// NewBuilder compiles the template library's eligibility conditions. An
// epsilon of 0 or less falls back to DefaultExplorationEpsilon.
func NewBuilder(kb *knowledge.Base, epsilon float64) (*Builder, error) {
	if epsilon <= 0 {
		epsilon = DefaultExplorationEpsilon
	}
	b := &Builder{
		kb:       kb,
		epsilon:  epsilon,
		programs: make(map[string]*vm.Program),
	}
	for _, t := range kb.ActionTemplates {
		if t.When == "" {
			continue
		}
		prog, err := expr.Compile(t.When, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("compile condition for template %s: %w", t.ID, err)
		}
		b.programs[t.ID] = prog
	}
	return b, nil
}

// Build produces the decision tree and the flat ranked action list for one
// planning cycle. Pure with respect to its inputs apart from the generated
// timestamp on the tree.
func (b *Builder) Build(conversationID string, objectives models.Objectives, preds PredictionSet, sig models.SignalVector) (models.DecisionTree, []models.ActionCandidate) {
	env := exprEnv(sig)

	var ranked []models.ActionCandidate
	branches := make([]models.TreeBranch, 0, len(branchOrder))

	for _, category := range branchOrder {
		weight := objectiveWeight(objectives, category)
		confidence := b.categoryConfidence(preds, category)

		branch := models.TreeBranch{
			Category:   category,
			Weight:     weight,
			Confidence: confidence,
		}
		for _, t := range b.kb.TemplatesFor(category) {
			if !b.eligible(t, env) {
				continue
			}
			score := weight * confidence * t.Prior
			if category == models.ActionExploration {
				// Anti-stagnation floor: exploration is scored at a
				// fixed epsilon regardless of objective weights.
				score = b.epsilon
			}
			candidate := models.ActionCandidate{
				ID:          t.ID,
				Category:    category,
				Description: t.Description,
				Content:     t.Content,
				Score:       score,
			}
			branch.Actions = append(branch.Actions, candidate)
			ranked = append(ranked, candidate)
			if score > branch.Score {
				branch.Score = score
			}
		}
		branches = append(branches, branch)
	}

	// Descending by score; construction order (category then declaration)
	// breaks ties deterministically via the stable sort.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	assignPriorities(ranked)

	// Mirror final priorities back into the branches.
	priorities := make(map[string]models.ActionPriority, len(ranked))
	for _, a := range ranked {
		priorities[a.ID] = a.Priority
	}
	for bi := range branches {
		for ai := range branches[bi].Actions {
			branches[bi].Actions[ai].Priority = priorities[branches[bi].Actions[ai].ID]
		}
	}

	tree := models.DecisionTree{
		ConversationID: conversationID,
		Objectives:     objectives,
		Branches:       branches,
		Confidence:     planConfidence(objectives, preds),
		GeneratedAt:    time.Now().UTC(),
	}
	return tree, ranked
}

// eligible evaluates a template's compiled condition against the signal
// environment. Templates without a condition always match; evaluation
// failures exclude the template and are logged, never swallowed.
func (b *Builder) eligible(t knowledge.ActionTemplate, env map[string]interface{}) bool {
	prog, ok := b.programs[t.ID]
	if !ok {
		return true
	}
	out, err := expr.Run(prog, env)
	if err != nil {
		log.Warn().Err(err).Str("template", t.ID).Msg("Template condition failed, excluding template")
		return false
	}
	matched, ok := out.(bool)
	return ok && matched
}

func exprEnv(sig models.SignalVector) map[string]interface{} {
	env := make(map[string]interface{}, len(sig.Values)+1)
	for k, v := range sig.Values {
		env[k] = v
	}
	env["low_signal"] = sig.LowSignal
	return env
}

func objectiveWeight(o models.Objectives, c models.ActionCategory) float64 {
	switch c {
	case models.ActionObjectionResponse:
		return o.ObjectionHandling
	case models.ActionNeedSatisfaction:
		return o.NeedSatisfaction
	case models.ActionConversionProgression:
		return o.ConversionProgress
	default:
		return 0
	}
}

func (b *Builder) categoryConfidence(preds PredictionSet, c models.ActionCategory) float64 {
	switch c {
	case models.ActionObjectionResponse:
		return preds.Objections.Confidence
	case models.ActionNeedSatisfaction:
		return preds.Needs.Confidence
	case models.ActionConversionProgression:
		return preds.Conversion.Probability
	default:
		return b.epsilon
	}
}

// assignPriorities labels the ranked list by score tertiles: the top third
// is high, the middle third medium, the rest low.
func assignPriorities(ranked []models.ActionCandidate) {
	n := len(ranked)
	if n == 0 {
		return
	}
	highCut := int(math.Ceil(float64(n) / 3.0))
	mediumCut := int(math.Ceil(2.0 * float64(n) / 3.0))
	for i := range ranked {
		switch {
		case i < highCut:
			ranked[i].Priority = models.PriorityHigh
		case i < mediumCut:
			ranked[i].Priority = models.PriorityMedium
		default:
			ranked[i].Priority = models.PriorityLow
		}
	}
}

// planConfidence is the objective-weighted blend of the predictors'
// confidences; it is the overall confidence reported with a plan.
func planConfidence(o models.Objectives, preds PredictionSet) float64 {
	return o.ObjectionHandling*preds.Objections.Confidence +
		o.NeedSatisfaction*preds.Needs.Confidence +
		o.ConversionProgress*preds.Conversion.Confidence
}
