package objective

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ngx-sales/decision-engine/pkg/models"
)

// Controller applies live feedback to a conversation's objective weights.
//
// Weight mutation is serialized per conversation id with a per-key mutex, so
// concurrent adaptation calls for the same conversation are ordered while
// different conversations proceed in parallel.
type Controller struct {
	mgr *Manager

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	stats map[string]*convStats
}

type convStats struct {
	cycles      int
	adaptations int
}

// NewController creates an adaptation controller backed by the given weight
// manager.
func NewController(mgr *Manager) *Controller {
	return &Controller{
		mgr:   mgr,
		locks: make(map[string]*sync.Mutex),
		stats: make(map[string]*convStats),
	}
}

// lockFor returns the mutex serializing one conversation's weight updates.
func (c *Controller) lockFor(conversationID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[conversationID] = l
	}
	return l
}

func (c *Controller) statsFor(conversationID string) *convStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[conversationID]
	if !ok {
		s = &convStats{}
		c.stats[conversationID] = s
	}
	return s
}

// RecordCycle counts one decision cycle for a conversation. The optimize
// path calls this so the adaptation rate has a denominator.
func (c *Controller) RecordCycle(conversationID string) {
	s := c.statsFor(conversationID)
	c.mu.Lock()
	s.cycles++
	c.mu.Unlock()
}

// Adapt applies one feedback record to the current objectives and returns
// the new weights plus whether an adaptation happened.
//
// On success=false feedback, the objective tied to the feedback type gains
// AdaptationStep before renormalization under the floor rule. On
// success=true the weights pass through unchanged.
func (c *Controller) Adapt(conversationID string, current models.Objectives, fb models.FeedbackRecord) (models.Objectives, bool) {
	l := c.lockFor(conversationID)
	l.Lock()
	defer l.Unlock()

	s := c.statsFor(conversationID)
	c.mu.Lock()
	s.cycles++
	c.mu.Unlock()

	if fb.Success {
		return current, false
	}

	step := c.mgr.Config().AdaptationStep * current.Sum()
	need, objection, conversion := current.NeedSatisfaction, current.ObjectionHandling, current.ConversionProgress

	switch fb.Type {
	case models.FeedbackObjectionNotAddressed:
		objection += step
	case models.FeedbackNeedNotSatisfied:
		need += step
	case models.FeedbackConversionStalled:
		conversion += step
	default:
		log.Warn().
			Str("conversation_id", conversationID).
			Str("feedback_type", string(fb.Type)).
			Msg("Unknown feedback type, weights unchanged")
		return current, false
	}

	adapted := normalizeWithFloor(need, objection, conversion, c.mgr.Config().Floor)

	c.mu.Lock()
	s.adaptations++
	c.mu.Unlock()

	log.Info().
		Str("conversation_id", conversationID).
		Str("feedback_type", string(fb.Type)).
		Float64("need_satisfaction", adapted.NeedSatisfaction).
		Float64("objection_handling", adapted.ObjectionHandling).
		Float64("conversion_progress", adapted.ConversionProgress).
		Msg("Objectives adapted")

	return adapted, true
}

// AdaptationRate returns adaptations / decision cycles for one conversation,
// 0 when no cycles have run.
func (c *Controller) AdaptationRate(conversationID string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[conversationID]
	if !ok || s.cycles == 0 {
		return 0
	}
	return float64(s.adaptations) / float64(s.cycles)
}

// GlobalAdaptationRate aggregates the rate across all conversations seen.
func (c *Controller) GlobalAdaptationRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var cycles, adaptations int
	for _, s := range c.stats {
		cycles += s.cycles
		adaptations += s.adaptations
	}
	if cycles == 0 {
		return 0
	}
	return float64(adaptations) / float64(cycles)
}

// Forget drops per-conversation state once a conversation ends.
func (c *Controller) Forget(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, conversationID)
	delete(c.stats, conversationID)
}
