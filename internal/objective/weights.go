// Package objective computes and adapts the three conversation-objective
// weights: need satisfaction, objection handling, and conversion progress.
//
// Invariant maintained by everything in this package: the weights sum to 1
// (±1e-6) and each stays at or above the configured floor.
package objective

import (
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// Default tunables. All of them are configuration, not inline constants, so
// boundary behavior is independently testable.
const (
	// DefaultK1 scales the objection-handling delta by the strongest
	// objection confidence.
	DefaultK1 = 0.5
	// DefaultK2 scales the need-satisfaction delta by unmet need.
	DefaultK2 = 0.5
	// DefaultK3 scales the conversion-progress delta by the conversion
	// probability.
	DefaultK3 = 0.5
	// DefaultFloor is the minimum weight any objective may hold; it keeps
	// an objective from collapsing to zero and disappearing from plans.
	DefaultFloor = 0.05
	// DefaultAdaptationStep is how much weight a failed-feedback objective
	// gains before renormalization.
	DefaultAdaptationStep = 0.15
)

// Config carries the weighting tunables.
type Config struct {
	K1             float64
	K2             float64
	K3             float64
	Floor          float64
	AdaptationStep float64
}

// DefaultConfig returns the shipped tunables.
func DefaultConfig() Config {
	return Config{
		K1:             DefaultK1,
		K2:             DefaultK2,
		K3:             DefaultK3,
		Floor:          DefaultFloor,
		AdaptationStep: DefaultAdaptationStep,
	}
}

// Inputs are the prediction-derived quantities the manager weighs.
type Inputs struct {
	// MaxObjectionConfidence is the strongest predicted objection, 0 when
	// none or when the objection predictor degraded.
	MaxObjectionConfidence float64
	// NeedConfidence is the strongest predicted need.
	NeedConfidence float64
	// NeedSatisfaction is the [0,1] signal of how satisfied stated needs
	// already are; unmet need is its complement.
	NeedSatisfaction float64
	// ConversionProbability is the conversion predictor's output.
	ConversionProbability float64
}

// Manager computes objective weights from predictions. Stateless.
type Manager struct {
	cfg Config
}

// NewManager creates a weight manager with the given tunables. Zero-valued
// fields fall back to defaults.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.K1 == 0 {
		cfg.K1 = def.K1
	}
	if cfg.K2 == 0 {
		cfg.K2 = def.K2
	}
	if cfg.K3 == 0 {
		cfg.K3 = def.K3
	}
	if cfg.Floor == 0 {
		cfg.Floor = def.Floor
	}
	if cfg.AdaptationStep == 0 {
		cfg.AdaptationStep = def.AdaptationStep
	}
	return &Manager{cfg: cfg}
}

// Config returns the manager's tunables.
func (m *Manager) Config() Config {
	return m.cfg
}

// Compute derives objective weights: uniform prior plus prediction-scaled
// deltas, renormalized under the floor rule.
func (m *Manager) Compute(in Inputs) models.Objectives {
	prior := models.UniformObjectives()

	objection := prior.ObjectionHandling + m.cfg.K1*in.MaxObjectionConfidence
	need := prior.NeedSatisfaction + m.cfg.K2*in.NeedConfidence*(1-in.NeedSatisfaction)
	conversion := prior.ConversionProgress + m.cfg.K3*in.ConversionProbability

	return normalizeWithFloor(need, objection, conversion, m.cfg.Floor)
}

// normalizeWithFloor divides each weight by the total, then enforces the
// floor: any weight pushed below it is clamped up and the deficit is taken
// proportionally from the remaining weights. With three weights and a floor
// well under 1/3 this settles within two passes; the loop guards the
// degenerate configurations anyway.
func normalizeWithFloor(need, objection, conversion, floor float64) models.Objectives {
	w := [3]float64{need, objection, conversion}

	total := w[0] + w[1] + w[2]
	if total <= 0 {
		return models.UniformObjectives()
	}
	for i := range w {
		w[i] /= total
	}

	for pass := 0; pass < 3; pass++ {
		var deficit, unclampedSum float64
		clamped := [3]bool{}
		for i := range w {
			if w[i] < floor {
				deficit += floor - w[i]
				w[i] = floor
				clamped[i] = true
			} else {
				unclampedSum += w[i]
			}
		}
		if deficit == 0 || unclampedSum == 0 {
			break
		}
		for i := range w {
			if !clamped[i] {
				w[i] -= deficit * (w[i] / unclampedSum)
			}
		}
	}

	return models.Objectives{
		NeedSatisfaction:   w[0],
		ObjectionHandling:  w[1],
		ConversionProgress: w[2],
	}
}
