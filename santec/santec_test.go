package santec

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/nasa-jpl/specsweep/instrument"
	"github.com/nasa-jpl/specsweep/laser"
	"github.com/nasa-jpl/specsweep/sim"
	"github.com/nasa-jpl/specsweep/visa"
)

var (
	_ laser.Tunable         = (*TSL)(nil)
	_ laser.FineTuner       = (*TSL)(nil)
	_ laser.Attenuator      = (*TSL)(nil)
	_ laser.Shutter         = (*TSL)(nil)
	_ laser.Tunable         = (*TSL210F)(nil)
	_ laser.DiodeController = (*TSL210F)(nil)
)

const addr = "GPIB0::17::INSTR"

func bench(t *testing.T, d sim.Device) (*instrument.Instrument, *sim.Bench) {
	t.Helper()
	b := sim.NewBench()
	b.Attach(addr, d)
	s, err := b.Open(addr)
	if err != nil {
		t.Fatal(err)
	}
	log, _ := test.NewNullLogger()
	return instrument.New(s, instrument.WithLogger(log)), b
}

func last(b *sim.Bench) string {
	sent := b.Sent(addr)
	return sent[len(sent)-1]
}

func TestNewTSLQueriesRangesAndUnits(t *testing.T) {
	in, b := bench(t, sim.NewTSL("TSL-710", nil))
	l, err := NewTSL(in)
	if err != nil {
		t.Fatal(err)
	}
	if l.Wavelength != (laser.Bounds{Min: 1480, Max: 1640}) || l.Power != (laser.Bounds{Min: 0.01, Max: 20}) {
		t.Errorf("unexpected bounds %+v %+v", l.Wavelength, l.Power)
	}
	want := []string{":WAV:MIN?", ":WAV:MAX?", ":POW:MIN?", ":POW:MAX?", ":WAV:UNIT 0", ":POW:UNIT 1"}
	sent := b.Sent(addr)
	if strings.Join(sent, "|") != strings.Join(want, "|") {
		t.Errorf("expected %v got %v", want, sent)
	}
}

func TestTSLClampsCommands(t *testing.T) {
	in, b := bench(t, sim.NewTSL("TSL-710", nil))
	l, err := NewTSL(in)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		do   func() error
		want string
	}{
		{"wavelength low", func() error { return l.SetWavelength(1000) }, ":WAV 1480.0000"},
		{"wavelength high", func() error { return l.SetWavelength(1700) }, ":WAV 1640.0000"},
		{"wavelength", func() error { return l.SetWavelength(1550.12346) }, ":WAV 1550.1235"},
		{"power", func() error { return l.SetPower(25) }, ":POW 20.000"},
		{"fine", func() error { return l.SetFinetuning(150) }, ":WAV:FIN 100.00"},
		{"fine low", func() error { return l.SetFinetuning(-150) }, ":WAV:FIN -100.00"},
		{"attenuation", func() error { return l.SetAttenuation(-3) }, ":POW:ATT 0.00"},
		{"shutter", l.CloseShutter, ":POW:SHUT 1"},
	}
	for _, tt := range tests {
		if err := tt.do(); err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got := last(b); got != tt.want {
			t.Errorf("%s: expected %q got %q", tt.name, tt.want, got)
		}
	}
}

func TestTSLReadback(t *testing.T) {
	in, _ := bench(t, sim.NewTSL("TSL-510", nil))
	l, err := NewTSL(in)
	if err != nil {
		t.Fatal(err)
	}
	if err = l.SetWavelength(1551.5); err != nil {
		t.Fatal(err)
	}
	if err = l.SetFinetuning(-20); err != nil {
		t.Fatal(err)
	}
	wl, err := l.GetWavelength()
	if err != nil || wl != 1551.5 {
		t.Errorf("expected 1551.5 got %v (%v)", wl, err)
	}
	fin, err := l.GetFinetuning()
	if err != nil || fin != -20 {
		t.Errorf("expected -20 got %v (%v)", fin, err)
	}
}

func TestNewTSLFailsOnSilentDevice(t *testing.T) {
	in, _ := bench(t, sim.Func(func(string) (string, bool) { return "", false }))
	_, err := NewTSL(in)
	var cerr *visa.CommunicationError
	if !errors.As(err, &cerr) {
		t.Errorf("expected CommunicationError, got %v", err)
	}
}

func TestTSL210FCachesCommandedValues(t *testing.T) {
	in, b := bench(t, sim.NewTSL210F(nil))
	l := NewTSL210F(in)
	if err := l.SetWavelength(1500); err != nil {
		t.Fatal(err)
	}
	if got := last(b); got != "WA1500.00" {
		t.Errorf("expected WA1500.00 got %q", got)
	}
	if err := l.SetWavelength(1600); err != nil {
		t.Fatal(err)
	}
	if got := last(b); got != "WA1520.00" {
		t.Errorf("expected the clamped WA1520.00 got %q", got)
	}
	if wl, _ := l.GetWavelength(); wl != 1520 {
		t.Errorf("expected cached 1520 got %v", wl)
	}
	if err := l.SetPower(5); err != nil {
		t.Fatal(err)
	}
	if p, _ := l.GetPower(); p != 3 {
		t.Errorf("expected cached 3 got %v", p)
	}
	if got := last(b); got != "LP3.00" {
		t.Errorf("expected LP3.00 got %q", got)
	}
}

func TestTSL210FDiode(t *testing.T) {
	dev := sim.NewTSL210F(nil)
	in, b := bench(t, dev)
	l := NewTSL210F(in, WithDiodePollInterval(0))
	if err := l.TurnOnLD(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !dev.Emitting || dev.Status != 0 {
		t.Errorf("diode should be on and settled, got %+v", dev)
	}
	sent := b.Sent(addr)
	// LO followed by status reads 3, 2, 1, 0
	if len(sent) != 5 || sent[0] != "LO" {
		t.Errorf("unexpected exchange %v", sent)
	}
	if err := l.TurnOffLD(context.Background()); err != nil {
		t.Fatal(err)
	}
	if dev.Emitting {
		t.Error("diode still on")
	}
	if err := l.SetAPCMode(); err != nil || last(b) != "AF" {
		t.Errorf("expected AF, got %q (%v)", last(b), err)
	}
}

func TestTSL210FDiodeCancelled(t *testing.T) {
	dev := sim.NewTSL210F(nil)
	dev.Steps = 1 << 20
	in, _ := bench(t, dev)
	l := NewTSL210F(in, WithDiodePollInterval(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.TurnOnLD(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// scriptedStatus answers SU with replies in turn, repeating the last
func scriptedStatus(replies ...string) (sim.Func, *int) {
	n := 0
	return func(cmd string) (string, bool) {
		if cmd != "SU" {
			return "", false
		}
		r := replies[len(replies)-1]
		if n < len(replies) {
			r = replies[n]
		}
		n++
		return r, true
	}, &n
}

func TestTSL210FFractionalStatus(t *testing.T) {
	dev, polls := scriptedStatus("0.5", "0.5", "0.5", "0")
	in, _ := bench(t, dev)
	l := NewTSL210F(in, WithDiodePollInterval(0))
	if err := l.TurnOnLD(context.Background()); err != nil {
		t.Fatal(err)
	}
	if *polls != 4 {
		t.Errorf("expected turning on to wait for status 0 after 4 polls, got %d", *polls)
	}

	dev, polls = scriptedStatus("-0.5", "-0.25", "0")
	in, _ = bench(t, dev)
	l = NewTSL210F(in, WithDiodePollInterval(0))
	if err := l.TurnOffLD(context.Background()); err != nil {
		t.Fatal(err)
	}
	if *polls != 3 {
		t.Errorf("expected turning off to wait for status 0 after 3 polls, got %d", *polls)
	}
}
