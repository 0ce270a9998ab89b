// Package predict implements the three stateless scoring models: objection,
// needs, and conversion. Each consumes a signal vector plus profile and
// produces a prediction; none of them touch I/O on the scoring path, so all
// three are safe to run concurrently per request.
package predict

// DefaultInclusionThreshold is the minimum confidence for a candidate
// objection or need to appear in a prediction list at all.
const DefaultInclusionThreshold = 0.3

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// clampSigned bounds an impact to [-1,1].
func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
