// Package util contains misc internal utilities.
package util

import (
	"math"
	"time"
)

// Limiter bounds a value to [Min, Max]
type Limiter struct {
	Min float64 `yaml:"Min" koanf:"min"`
	Max float64 `yaml:"Max" koanf:"max"`
}

// Clamp limits x to the range of the limiter
func (l Limiter) Clamp(x float64) float64 {
	return Clamp(x, l.Min, l.Max)
}

// Check returns true if x is within the closed range of the limiter
func (l Limiter) Check(x float64) bool {
	return x >= l.Min && x <= l.Max
}

// Clamp limits x to the closed range [low, high].  NaN passes through unchanged.
func Clamp(x, low, high float64) float64 {
	return math.Max(low, math.Min(x, high))
}

// SecsToDuration converts a floating point number of seconds to a time.Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * 1e9))
}
