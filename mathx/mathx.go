// Package mathx provides decimal rounding used when recording device readback
package mathx

import "math"

// RoundDecimals rounds x to n digits after the decimal point
func RoundDecimals(x float64, n int) float64 {
	p := math.Pow(10, float64(n))
	return math.Round(x*p) / p
}
