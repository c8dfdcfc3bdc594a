// Package maths converts loosely typed numbers coming from JSON payloads.
package maths

import (
	"math"
)

// RoundFloat64ToInt rounds v to the nearest int, mapping NaN and ±Inf to 0.
func RoundFloat64ToInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}

// NonNegative clamps v at zero. Sizes and rates reported as negative are treated as unknown.
func NonNegative[T int | int64 | float64](v T) T {
	if v < 0 {
		return 0
	}
	return v
}
