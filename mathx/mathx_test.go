package mathx

import (
	"math"
	"testing"
)

func TestRoundDecimals(t *testing.T) {
	cases := []struct {
		in   float64
		n    int
		want float64
	}{
		{1550.123456789, 5, 1550.12346},
		{-0.0000049, 5, 0},
		{1549.999995, 5, 1550.0},
		{-1.234565, 3, -1.235},
	}
	for _, c := range cases {
		got := RoundDecimals(c.in, c.n)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("RoundDecimals(%v, %d) expected %v got %v", c.in, c.n, c.want, got)
		}
	}
}
