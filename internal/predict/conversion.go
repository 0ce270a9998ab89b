package predict

import (
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// conversionWeights are the fixed coefficients of the conversion model. The
// negative sentiment term is the only subtractive factor.
var conversionWeights = []struct {
	name   string
	signal string
	weight float64
}{
	{"buying_signals", models.SignalBuyingSignals, 0.30},
	{"engagement_level", models.SignalEngagementLevel, 0.20},
	{"positive_sentiment", models.SignalSentimentPositive, 0.15},
	{"segment_fit", models.SignalSegmentPrior, 0.10},
	{"industry_fit", models.SignalIndustryPrior, 0.10},
	{"urgency", models.SignalUrgencyMentions, 0.10},
	{"negative_sentiment", models.SignalSentimentNegative, -0.25},
}

// ConversionPredictor estimates the probability that the conversation
// converts, buckets it into a category, and names the contributing factors.
type ConversionPredictor struct{}

// NewConversionPredictor creates a conversion predictor.
func NewConversionPredictor() *ConversionPredictor {
	return &ConversionPredictor{}
}

// FallbackResult is the degraded output used when scoring fails.
func (p *ConversionPredictor) FallbackResult() models.ConversionPrediction {
	return models.ConversionPrediction{
		Category:         models.ConversionLow,
		KeyFactors:       []models.KeyFactor{},
		TimeToConversion: timeBucket(0),
		Fallback:         true,
	}
}

// Predict computes the conversion probability and its explanation.
func (p *ConversionPredictor) Predict(sig models.SignalVector, profile models.CustomerProfile) models.ConversionPrediction {
	var prob float64
	factors := make([]models.KeyFactor, 0, len(conversionWeights))
	for _, w := range conversionWeights {
		contribution := w.weight * sig.Get(w.signal)
		prob += contribution
		factors = append(factors, models.KeyFactor{
			Name:   w.name,
			Impact: clampSigned(contribution / maxAbsWeight()),
		})
	}
	prob = clamp01(prob)

	confidence := clamp01(0.4 + 0.6*sig.Get(models.SignalEngagementLevel))
	if sig.LowSignal {
		confidence = 0.1
	}

	return models.ConversionPrediction{
		Probability:      prob,
		Confidence:       confidence,
		Category:         BucketProbability(prob),
		KeyFactors:       factors,
		TimeToConversion: timeBucket(prob),
	}
}

// BucketProbability maps a probability to its category. Boundaries are
// inclusive on the lower edge: 0.25 is medium, 0.75 is very_high.
func BucketProbability(p float64) models.ConversionCategory {
	switch {
	case p < 0.25:
		return models.ConversionLow
	case p < 0.5:
		return models.ConversionMedium
	case p < 0.75:
		return models.ConversionHigh
	default:
		return models.ConversionVeryHigh
	}
}

// timeBucket is a monotonic lookup from probability to an estimated
// time-to-conversion bucket: higher probability never maps to a longer
// estimate.
func timeBucket(p float64) string {
	switch {
	case p >= 0.75:
		return "1-2 weeks"
	case p >= 0.5:
		return "2-4 weeks"
	case p >= 0.25:
		return "1-2 months"
	default:
		return "3+ months"
	}
}

func maxAbsWeight() float64 {
	max := 0.0
	for _, w := range conversionWeights {
		abs := w.weight
		if abs < 0 {
			abs = -abs
		}
		if abs > max {
			max = abs
		}
	}
	return max
}
