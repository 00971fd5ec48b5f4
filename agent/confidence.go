package agent

import "math"

// normalizeConfidence applies the stagnation and loop penalties to a raw
// reflection confidence. The result is never above the raw value; the
// penalties bottom out at their floors so a long bad streak cannot zero
// confidence entirely.
func normalizeConfidence(raw float64, noProgressStreak, loopSignals int, progressRatio float64) (float64, ConfidenceBreakdown) {
	raw = clamp(raw, 0, 1)

	stagnation := penalty(noProgressStreak, 0.15, stagnationFloor)
	loop := penalty(loopSignals, 0.2, loopFloor)

	breakdown := ConfidenceBreakdown{
		Raw:               raw,
		StagnationPenalty: stagnation,
		LoopPenalty:       loop,
		ProgressRatio:     progressRatio,
	}
	return raw * stagnation * loop, breakdown
}

// penalty decays geometrically with the counter and never drops below
// the floor. A zero counter is a no-op multiplier.
func penalty(counter int, rate, floor float64) float64 {
	if counter <= 0 {
		return 1
	}
	p := math.Pow(1-rate, float64(counter))
	if p < floor {
		return floor
	}
	return p
}
