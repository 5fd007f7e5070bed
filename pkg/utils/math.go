package utils

import (
	"math"
)

// ClampFloat64 clamps a float64 value between min and max. NaN clamps to min.
func ClampFloat64(value, min, max float64) float64 {
	if value < min || math.IsNaN(value) {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ArgMax returns the index of the largest value. Ties go to the first index;
// NaN never wins. Returns -1 for an empty slice or all-NaN input.
func ArgMax(values []float64) int {
	best := -1
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}
