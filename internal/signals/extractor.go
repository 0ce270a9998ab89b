// Package signals turns a raw conversation plus customer profile into the
// flat signal vector consumed by the predictors. Extraction is a pure
// function of its inputs: no I/O, no randomness, no clock reads.
package signals

import (
	"strings"

	"github.com/ngx-sales/decision-engine/pkg/models"
)

// DefaultRecentWindow is how many of the most recent user messages feed the
// sentiment signals.
const DefaultRecentWindow = 5

// engagementSaturation is the user-message count at which engagement_level
// reaches 1.0.
const engagementSaturation = 10.0

// keyword groups for the frequency signals.
var keywordGroups = map[string][]string{
	models.SignalPriceMentions:   {"price", "cost", "pricing", "expensive", "budget", "discount", "fee"},
	models.SignalFeatureMentions: {"feature", "capability", "function", "does it", "can it", "support for"},
	models.SignalTrustMentions:   {"security", "privacy", "compliance", "reliable", "reference", "guarantee"},
	models.SignalUrgencyMentions: {"urgent", "asap", "soon", "deadline", "this week", "this month", "quickly"},
}

// explicit request markers.
var requestGroups = map[string][]string{
	models.SignalPricingRequests:     {"how much", "what's the price", "what is the price", "price?", "pricing", "quote"},
	models.SignalDemoRequests:        {"demo", "trial", "try it", "test it", "see it in action"},
	models.SignalIntegrationRequests: {"integrate", "integration", "api", "connect with", "crm", "webhook"},
	models.SignalSupportRequests:     {"support", "onboarding", "help us", "training", "sla"},
}

// buyingSignalMarkers indicate intent to move forward.
var buyingSignalMarkers = []string{
	"buy", "purchase", "sign up", "contract", "when can we start",
	"next steps", "move forward", "get started", "invoice",
}

// Extractor builds signal vectors. Safe for concurrent use.
type Extractor struct {
	provider TextSignalProvider
	window   int
}

// NewExtractor creates an extractor with the given sentiment provider and
// recent-message window. A window of 0 or less falls back to the default.
func NewExtractor(provider TextSignalProvider, window int) *Extractor {
	if window <= 0 {
		window = DefaultRecentWindow
	}
	return &Extractor{provider: provider, window: window}
}

// Extract computes the signal vector for one conversation and profile.
// An empty conversation yields a zero vector with LowSignal set, never an
// error.
func (e *Extractor) Extract(conv models.Conversation, profile models.CustomerProfile) models.SignalVector {
	values := map[string]float64{
		models.SignalSentimentPositive:   0,
		models.SignalSentimentNegative:   0,
		models.SignalPriceMentions:       0,
		models.SignalFeatureMentions:     0,
		models.SignalTrustMentions:       0,
		models.SignalUrgencyMentions:     0,
		models.SignalPricingRequests:     0,
		models.SignalDemoRequests:        0,
		models.SignalIntegrationRequests: 0,
		models.SignalSupportRequests:     0,
		models.SignalBuyingSignals:       0,
		models.SignalEngagementLevel:     0,
		models.SignalMessageCount:        0,
		models.SignalNeedSatisfaction:    0,
		models.SignalSegmentPrior:        segmentPrior(profile),
		models.SignalIndustryPrior:       industryPrior(profile),
	}

	userMsgs := conv.UserMessages()
	if len(userMsgs) == 0 {
		return models.SignalVector{Values: values, LowSignal: true}
	}

	values[models.SignalMessageCount] = float64(len(conv.Messages))
	values[models.SignalEngagementLevel] = clamp01(float64(len(userMsgs)) / engagementSaturation)

	// Sentiment over the recent window only — late-conversation mood is
	// what the predictors care about.
	recent := userMsgs
	if len(recent) > e.window {
		recent = recent[len(recent)-e.window:]
	}
	var pos, neg float64
	for _, m := range recent {
		p, n := e.provider.Sentiment(m.Text)
		pos += p
		neg += n
	}
	values[models.SignalSentimentPositive] = clamp01(pos / float64(len(recent)))
	values[models.SignalSentimentNegative] = clamp01(neg / float64(len(recent)))

	// Keyword group frequencies: fraction of user messages mentioning the
	// group, bounded [0,1].
	for signal, words := range keywordGroups {
		values[signal] = mentionFrequency(userMsgs, words)
	}

	// Explicit request counts, saturated at 1 per conversation.
	for signal, markers := range requestGroups {
		if countMentions(userMsgs, markers) > 0 {
			values[signal] = 1
		}
	}

	values[models.SignalBuyingSignals] = mentionFrequency(userMsgs, buyingSignalMarkers)

	// need_satisfaction proxies how much of the stated needs the assistant
	// has already answered: assistant replies following a request marker.
	values[models.SignalNeedSatisfaction] = needSatisfaction(conv)

	return models.SignalVector{Values: values, LowSignal: false}
}

// mentionFrequency returns the fraction of messages containing any of the
// given markers.
func mentionFrequency(msgs []models.Message, markers []string) float64 {
	if len(msgs) == 0 {
		return 0
	}
	hits := 0
	for _, m := range msgs {
		lower := strings.ToLower(m.Text)
		for _, marker := range markers {
			if strings.Contains(lower, marker) {
				hits++
				break
			}
		}
	}
	return clamp01(float64(hits) / float64(len(msgs)))
}

func countMentions(msgs []models.Message, markers []string) int {
	count := 0
	for _, m := range msgs {
		lower := strings.ToLower(m.Text)
		for _, marker := range markers {
			if strings.Contains(lower, marker) {
				count++
				break
			}
		}
	}
	return count
}

// needSatisfaction estimates how many user requests received an assistant
// reply: the fraction of user messages that are followed by at least one
// assistant message before the next user turn.
func needSatisfaction(conv models.Conversation) float64 {
	var asked, answered int
	msgs := conv.Messages
	for i, m := range msgs {
		if m.Role != models.RoleUser {
			continue
		}
		asked++
		for j := i + 1; j < len(msgs); j++ {
			if msgs[j].Role == models.RoleAssistant {
				answered++
				break
			}
			if msgs[j].Role == models.RoleUser {
				break
			}
		}
	}
	if asked == 0 {
		return 0
	}
	return clamp01(float64(answered) / float64(asked))
}

// segmentPrior maps the profile segment to a base receptiveness prior.
func segmentPrior(p models.CustomerProfile) float64 {
	switch strings.ToLower(p.Segment) {
	case "enterprise":
		return 0.7
	case "mid-market", "midmarket":
		return 0.6
	case "smb", "startup":
		return 0.5
	default:
		return 0.4
	}
}

// industryPrior gives a mild boost for industries with historically high
// fit. Values come from the shipped knowledge defaults, not live data.
func industryPrior(p models.CustomerProfile) float64 {
	switch strings.ToLower(p.Industry) {
	case "saas", "software", "technology":
		return 0.7
	case "retail", "ecommerce", "finance":
		return 0.6
	case "healthcare", "education", "manufacturing":
		return 0.5
	default:
		return 0.4
	}
}
