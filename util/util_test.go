package util_test

import (
	"testing"
	"time"

	"github.com/nasa-jpl/specsweep/util"
)

func TestClampHigh(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = 20.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != high {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestClampLow(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = -1.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != low {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestClampInRange(t *testing.T) {
	if v := util.Clamp(5, 0, 10); v != 5 {
		t.Errorf("expected in range value to pass through, got %f", v)
	}
}

func TestLimiterCheck(t *testing.T) {
	l := util.Limiter{Min: 1440, Max: 1520}
	if !l.Check(1500) {
		t.Error("expected 1500 to be within limits")
	}
	if l.Check(1550) {
		t.Error("expected 1550 to be outside limits")
	}
	if l.Clamp(1550) != 1520 {
		t.Errorf("expected clamp to 1520, got %f", l.Clamp(1550))
	}
}

func TestSecsToDuration(t *testing.T) {
	var dur time.Duration = 123456789
	secs := dur.Seconds()
	out := util.SecsToDuration(secs)
	if out != dur {
		t.Errorf("expected SecsToDuration to round trip, output %v != expected %v", out, dur)
	}
	if out := util.SecsToDuration(0.5); out != 500*time.Millisecond {
		t.Errorf("expected 0.5 s to be 500ms, got %v", out)
	}
}
