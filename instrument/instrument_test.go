package instrument

import (
	"context"
	"errors"
	"testing"

	"github.com/nasa-jpl/specsweep/sim"
	"github.com/nasa-jpl/specsweep/visa"
)

func openTSL(t *testing.T, pending int) (*Instrument, *sim.TSL, *sim.Bench) {
	t.Helper()
	b := sim.NewBench()
	tsl := sim.NewTSL("TSL-710", b.Optics)
	tsl.OPCPending = pending
	b.Attach("GPIB0::17::INSTR", tsl)
	s, err := b.Open("GPIB0::17::INSTR")
	if err != nil {
		t.Fatal(err)
	}
	return New(s, WithPollInterval(0)), tsl, b
}

func TestWriteConfirmedPollsUntilComplete(t *testing.T) {
	in, _, b := openTSL(t, 2)
	if err := in.WriteConfirmed(context.Background(), ":WAV 1551.0000"); err != nil {
		t.Fatal(err)
	}
	sent := b.Sent("GPIB0::17::INSTR")
	want := []string{":WAV 1551.0000", "*OPC?", "*OPC?", "*OPC?"}
	if len(sent) != len(want) {
		t.Fatalf("expected %v got %v", want, sent)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Errorf("command %d: expected %q got %q", i, want[i], sent[i])
		}
	}
}

func TestWriteConfirmedCancelled(t *testing.T) {
	in, _, _ := openTSL(t, 1<<30)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := in.WriteConfirmed(ctx, ":WAV 1551.0000")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestReadValues(t *testing.T) {
	in, _, _ := openTSL(t, 0)
	v, err := in.ReadValue(":WAV:MAX?")
	if err != nil {
		t.Fatal(err)
	}
	if v != 1640 {
		t.Errorf("expected 1640 got %v", v)
	}
}

func TestReadValuesParseError(t *testing.T) {
	in, _, _ := openTSL(t, 0)
	_, err := in.ReadValues("*IDN?")
	var perr *visa.ParseError
	if !errors.As(err, &perr) {
		t.Errorf("expected ParseError, got %v", err)
	}
}

func TestReadValuesCommunicationError(t *testing.T) {
	in, _, _ := openTSL(t, 0)
	_, err := in.ReadValues(":NOT:A:QUERY?")
	var cerr *visa.CommunicationError
	if !errors.As(err, &cerr) {
		t.Errorf("expected CommunicationError, got %v", err)
	}
}

func TestPollStopsOnCheckError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Poll(context.Background(), 0, func() (bool, error) {
		calls++
		return false, boom
	}, nil)
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if calls != 1 {
		t.Errorf("a failing check must not be retried, called %d times", calls)
	}
}

func TestPollNotifiesPending(t *testing.T) {
	n, notices := 0, 0
	err := Poll(context.Background(), 0, func() (bool, error) {
		n++
		return n == 4, nil
	}, func() { notices++ })
	if err != nil {
		t.Fatal(err)
	}
	if notices != 3 {
		t.Errorf("expected 3 notices got %d", notices)
	}
}
