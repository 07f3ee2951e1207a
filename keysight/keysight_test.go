package keysight

import (
	"errors"
	"math"
	"testing"

	"github.com/nasa-jpl/specsweep/instrument"
	"github.com/nasa-jpl/specsweep/sim"
	"github.com/nasa-jpl/specsweep/visa"
)

func TestReadWavelength(t *testing.T) {
	b := sim.NewBench()
	b.Optics.SetLaser(1550.25, 1, true)
	b.Attach("GPIB0::7::INSTR", sim.NewWavelengthMeter(b.Optics))
	s, err := b.Open("GPIB0::7::INSTR")
	if err != nil {
		t.Fatal(err)
	}
	m := NewWavelengthMeter(instrument.New(s))
	v, err := m.ReadWavelength()
	if err != nil {
		t.Fatal(err)
	}
	if len(v) <= WavelengthIndex {
		t.Fatalf("short reply %v", v)
	}
	if math.Abs(v[WavelengthIndex]-1550.25e-9) > 1e-15 {
		t.Errorf("expected 1550.25e-9 got %v", v[WavelengthIndex])
	}
}

func TestReadWavelengthGarbage(t *testing.T) {
	b := sim.NewBench()
	b.Attach("GPIB0::7::INSTR", sim.Func(func(string) (string, bool) { return "ERR", true }))
	s, _ := b.Open("GPIB0::7::INSTR")
	_, err := NewWavelengthMeter(instrument.New(s)).ReadWavelength()
	var perr *visa.ParseError
	if !errors.As(err, &perr) {
		t.Errorf("expected ParseError, got %v", err)
	}
}
