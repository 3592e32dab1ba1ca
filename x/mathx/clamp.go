// Package mathx holds numeric helpers for sensor readings.
package mathx

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Clamp limits v to [lo, hi]. lo must not exceed hi.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// Percent limits a relative reading to [0, 100]. NaN is returned unchanged
// so a failed conversion stays visible.
func Percent[T constraints.Float](v T) T {
	if math.IsNaN(float64(v)) {
		return v
	}
	return Clamp(v, 0, 100)
}
