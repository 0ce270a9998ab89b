package signals

import "strings"

// TextSignalProvider scores raw text for sentiment. Implementations must be
// deterministic and return values bounded to [0,1]; the extractor depends on
// both properties.
//
// The default implementation is a lexicon scorer. Deployments with an NLP
// service plug their own provider in at construction time.
type TextSignalProvider interface {
	// Sentiment returns the positive and negative polarity of text,
	// each in [0,1].
	Sentiment(text string) (positive, negative float64)
}

// LexiconProvider is the built-in TextSignalProvider: a fixed valence
// lexicon with simple token matching. Deterministic by construction.
type LexiconProvider struct {
	positive []string
	negative []string
}

// NewLexiconProvider returns the default lexicon scorer.
func NewLexiconProvider() *LexiconProvider {
	return &LexiconProvider{
		positive: []string{
			"great", "good", "love", "perfect", "excellent", "helpful",
			"interested", "yes", "sounds good", "impressive", "like",
			"useful", "thanks", "thank you", "awesome",
		},
		negative: []string{
			"expensive", "too much", "problem", "issue", "worried", "concern",
			"no", "not sure", "doubt", "difficult", "complicated", "risky",
			"disappointed", "bad", "hate", "frustrating",
		},
	}
}

// Sentiment counts lexicon hits and normalizes by a fixed saturation point,
// so a handful of strong terms is enough to reach full polarity.
func (p *LexiconProvider) Sentiment(text string) (positive, negative float64) {
	lower := strings.ToLower(text)
	var pos, neg int
	for _, w := range p.positive {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range p.negative {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	// Saturate at 3 hits.
	return clamp01(float64(pos) / 3.0), clamp01(float64(neg) / 3.0)
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
