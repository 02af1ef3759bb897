// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"math"
)

// RoundInt rounds half away from zero and converts to int.
func RoundInt(val float64) int {
	return int(math.Round(val))
}

// ClampInt limits val to the inclusive range [low, high].
func ClampInt(val, low, high int) int {
	if val < low {
		return low
	}
	if val > high {
		return high
	}
	return val
}

// WithinInt reports whether val lies in the inclusive range [low, high].
func WithinInt(val, low, high int) bool {
	return val >= low && val <= high
}
