// Package calc holds small arithmetic helpers for progress reporting.
package calc

import (
	"math"
	"time"
)

// Progress calculates the percentage for a given pair of numbers.
func Progress(done, total int64) int {
	if total > 0 {
		return int(math.Round(float64(done) / float64(total) * 100))
	}
	return 0
}

// ETA calculates the estimated time of arrival.
func ETA(done, total int64, started time.Time) time.Duration {
	if total > 0 && done > 0 {
		elapsed := time.Since(started)
		eta := time.Duration(float64(elapsed) * (float64(total)/float64(done) - 1))
		return eta
	}
	return 0
}

// MiB converts a byte count to whole mebibytes, rounding down.
func MiB(bytes int64) int64 {
	if bytes <= 0 {
		return 0
	}
	return bytes / 1024 / 1024
}
