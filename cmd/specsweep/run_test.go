package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/nasa-jpl/specsweep/instrument"
	"github.com/nasa-jpl/specsweep/sim"
	"github.com/nasa-jpl/specsweep/sweep"
)

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func neverInterrupt(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(ctx)
}

func simConfig(t *testing.T) Config {
	c := Defaults()
	c.FileDir = t.TempDir()
	c.Drain = false
	c.ScanWait = 0
	c.Settle = 0
	return c
}

func newRunner(c Config, bus *sim.Bench, rng sweep.Range) *runner {
	log, _ := test.NewNullLogger()
	return &runner{
		Config:     c,
		Range:      rng,
		Log:        log,
		Bus:        bus,
		Sleep:      noSleep,
		Interrupts: neverInterrupt,
		Now:        func() time.Time { return time.Date(2026, 1, 2, 15, 0, 0, 0, time.Local) },
	}
}

func TestRunSavesSpectrum(t *testing.T) {
	c := simConfig(t)
	bench := sim.Standard(instrument.DefaultAddresses, "TSL-710", "LI5645")
	res, err := newRunner(c, bench, sweep.Range{Init: 1550, Last: 1551, Step: 0.5}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.End != sweep.Exhausted || res.Table.Len() != 3 {
		t.Errorf("expected an exhausted sweep of 3 rows, got %v with %d", res.End, res.Table.Len())
	}
	if filepath.Base(res.Path) != "Drop_20260102_01.txt" {
		t.Errorf("unexpected file %s", res.Path)
	}
	b, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "no_comment") || !strings.Contains(string(b), "lockin_freq") {
		t.Errorf("header missing from file:\n%s", b)
	}
	if _, err = os.Stat(strings.TrimSuffix(res.Path, ".txt") + ".png"); err != nil {
		t.Errorf("plot not saved: %v", err)
	}
	if bench.Opens(instrument.DefaultAddresses["TSL-710"]) != 1 {
		t.Error("laser session was not opened exactly once")
	}
}

func TestRunWithMeterAndNewport(t *testing.T) {
	c := simConfig(t)
	c.Laser = "tlb-6500"
	c.WaveMeas = true
	bench := sim.Standard(instrument.DefaultAddresses, "TLB-6500", "LI5645", MeterNickname)
	res, err := newRunner(c, bench, sweep.Range{Init: 1530, Last: 1531, Step: 1}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Table.Width() != 3 || res.Table.Len() != 2 {
		t.Errorf("expected 2 rows of 3 columns, got %d of %d", res.Table.Len(), res.Table.Width())
	}
	if m := res.Table.Row(1)[2]; m < 1.5309e-6 || m > 1.5311e-6 {
		t.Errorf("meter column %v does not follow the laser", m)
	}
}

func TestRunNoMeasurementWritesNothing(t *testing.T) {
	c := simConfig(t)
	c.NoMeasurement = true
	bench := sim.Standard(instrument.DefaultAddresses, "TSL-710")
	res, err := newRunner(c, bench, sweep.Range{Init: 1555, Last: 1556, Step: 1}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "" || res.Table.Len() != 0 {
		t.Errorf("expected nothing saved, got %q with %d rows", res.Path, res.Table.Len())
	}
	sent := bench.Sent(instrument.DefaultAddresses["TSL-710"])
	if sent[len(sent)-1] != ":WAV 1555.0000" {
		t.Errorf("laser was not homed, last command %q", sent[len(sent)-1])
	}
}

func TestRunWithoutLaser(t *testing.T) {
	c := simConfig(t)
	bench := sim.Standard(instrument.DefaultAddresses, "LI5645")
	_, err := newRunner(c, bench, sweep.Range{Init: 1550, Last: 1551, Step: 1}).Run(context.Background())
	if !errors.Is(err, sweep.ErrNoLaser) {
		t.Errorf("expected ErrNoLaser, got %v", err)
	}
}

func TestRunUnknownLaser(t *testing.T) {
	c := simConfig(t)
	c.Laser = "HeNe"
	_, err := newRunner(c, sim.NewBench(), sweep.Range{Init: 1550, Last: 1551, Step: 1}).Run(context.Background())
	if err == nil {
		t.Error("expected an error for an unknown laser")
	}
}

func TestResourcesSimulated(t *testing.T) {
	c := Defaults()
	c.Simulate = true
	log, _ := test.NewNullLogger()
	var buf bytes.Buffer
	if err := resources(&buf, c, log); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"GPIB0::17::INSTR", "GPIB0::2::INSTR", "GPIB0::7::INSTR"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("resource list lacks %s:\n%s", want, buf.String())
		}
	}
	buf.Reset()
	if err := identify(&buf, c, log); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "TSL-710\tSANTEC,TSL-710") {
		t.Errorf("identification lacks the laser:\n%s", buf.String())
	}
}
