package aggregation

import "math"

// round1 rounds half away from zero to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

func floatPtr(v float64) *float64 {
	return &v
}

// qualifying reports whether a score counts toward averages. Zero is the
// not-submitted marker and never qualifies.
func qualifying(score *float64) bool {
	return score != nil && *score > 0 && !math.IsNaN(*score) && !math.IsInf(*score, 0)
}
