package gpib

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/nasa-jpl/specsweep/sim"
	"github.com/nasa-jpl/specsweep/visa"
)

// fakePrologix emulates a Prologix controller in controller mode with
// read-after-write off
type fakePrologix struct {
	devices  map[int]sim.Device
	addr     int
	pending  map[int][]string
	line     []byte
	out      bytes.Buffer
	commands []string

	// burst answers ++read with every pending reply at once
	burst bool
}

func newFake(devs map[int]sim.Device) *fakePrologix {
	return &fakePrologix{devices: devs, pending: map[int][]string{}}
}

func (f *fakePrologix) Write(p []byte) (int, error) {
	f.line = append(f.line, p...)
	for {
		i := bytes.IndexByte(f.line, '\n')
		if i < 0 {
			break
		}
		f.handle(string(f.line[:i]))
		f.line = f.line[i+1:]
	}
	return len(p), nil
}

func (f *fakePrologix) Read(p []byte) (int, error) {
	if f.out.Len() == 0 {
		return 0, io.EOF
	}
	return f.out.Read(p)
}

func (f *fakePrologix) handle(line string) {
	if !strings.HasPrefix(line, "++") {
		dev, ok := f.devices[f.addr]
		if !ok {
			return
		}
		if r, ok := dev.Handle(line); ok {
			f.pending[f.addr] = append(f.pending[f.addr], r)
		}
		return
	}
	cmd := line[2:]
	f.commands = append(f.commands, cmd)
	fields := strings.Fields(cmd)
	switch fields[0] {
	case "addr":
		f.addr, _ = strconv.Atoi(fields[1])
	case "read":
		q := f.pending[f.addr]
		if f.burst {
			for _, r := range q {
				f.out.WriteString(r + "\n")
			}
			f.pending[f.addr] = nil
		} else if len(q) > 0 {
			f.out.WriteString(q[0] + "\n")
			f.pending[f.addr] = q[1:]
		}
	case "spoll":
		if _, ok := f.devices[f.addr]; ok {
			f.out.WriteString("0\n")
		}
	}
}

func newTransport(t *testing.T, f *fakePrologix, candidates ...int) *Transport {
	t.Helper()
	log, _ := test.NewNullLogger()
	tr, err := New(f, 0, candidates, log)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestListPollsCandidates(t *testing.T) {
	o := sim.NewOptics()
	f := newFake(map[int]sim.Device{17: sim.NewTSL("TSL-710", o), 2: sim.NewLockIn("LI5645", o)})
	tr := newTransport(t, f, 2, 6, 17)
	l, err := tr.List()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(l, " ") != "GPIB0::2::INSTR GPIB0::17::INSTR" {
		t.Errorf("unexpected list %v", l)
	}
}

func TestSessionsInterleave(t *testing.T) {
	o := sim.NewOptics()
	f := newFake(map[int]sim.Device{17: sim.NewTSL("TSL-710", o), 7: sim.NewWavelengthMeter(o)})
	rm := visa.NewResourceManager(newTransport(t, f, 7, 17))
	laser, err := rm.Open("GPIB0::17::INSTR")
	if err != nil {
		t.Fatal(err)
	}
	meter, err := rm.Open("GPIB0::7::INSTR")
	if err != nil {
		t.Fatal(err)
	}
	if err = laser.Write(":WAV 1551.2500"); err != nil {
		t.Fatal(err)
	}
	v, err := meter.QueryNumericArray(":MEAS:ARR:POW:WAV?")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 2 || v[1] < 1.5512e-6 || v[1] > 1.5513e-6 {
		t.Errorf("meter did not see the laser move: %v", v)
	}
	wl, err := laser.Query(":WAV?")
	if err != nil {
		t.Fatal(err)
	}
	if wl != "1551.2500" {
		t.Errorf("expected 1551.2500 got %q", wl)
	}
}

func TestReadDrainsAcknowledgement(t *testing.T) {
	f := newFake(map[int]sim.Device{11: sim.NewTLB6500(nil)})
	c, err := newTransport(t, f, 11).Dial(visa.Resource{Interface: visa.GPIB, Primary: 11, Secondary: -1})
	if err != nil {
		t.Fatal(err)
	}
	if err = c.Write(":WAVE 1530.0000"); err != nil {
		t.Fatal(err)
	}
	ack, err := c.Read()
	if err != nil || strings.TrimSpace(ack) != "OK" {
		t.Errorf("expected OK, got %q (%v)", ack, err)
	}
	if _, err = c.Read(); !errors.Is(err, ErrNoReply) {
		t.Errorf("expected ErrNoReply on an empty queue, got %v", err)
	}
}

func TestSecondaryAddress(t *testing.T) {
	f := newFake(nil)
	c, _ := newTransport(t, f, 5).Dial(visa.Resource{Interface: visa.GPIB, Primary: 5, Secondary: 3})
	c.Write("*CLS")
	if got := f.commands[len(f.commands)-1]; got != "addr 5 99" {
		t.Errorf("expected addr 5 99 got %q", got)
	}
}

func TestDialWrongBoard(t *testing.T) {
	tr := newTransport(t, newFake(nil), 1)
	if _, err := tr.Dial(visa.Resource{Interface: visa.GPIB, Board: 1, Primary: 3}); err == nil {
		t.Error("expected an error dialing another board")
	}
}

func TestPickPort(t *testing.T) {
	ports := []Port{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyACM0", USB: true, VID: "2341"},
		{Name: "/dev/ttyUSB0", USB: true, VID: "0403", PID: "6001"},
	}
	if p, err := pick(ports); err != nil || p != "/dev/ttyUSB0" {
		t.Errorf("expected the FTDI port, got %q (%v)", p, err)
	}
	if p, err := pick(ports[:2]); err != nil || p != "/dev/ttyACM0" {
		t.Errorf("expected the USB port, got %q (%v)", p, err)
	}
	if _, err := pick(ports[:1]); err == nil {
		t.Error("expected an error without USB ports")
	}
	if p, _ := FindPort("/dev/ttyUSB3"); p != "/dev/ttyUSB3" {
		t.Errorf("explicit port was not kept, got %q", p)
	}
}

func TestReadKeepsBytesPastTerminator(t *testing.T) {
	f := newFake(map[int]sim.Device{11: sim.NewTLB6500(nil)})
	f.burst = true
	rm := visa.NewResourceManager(newTransport(t, f, 11))
	s, err := rm.Open("GPIB0::11::INSTR")
	if err != nil {
		t.Fatal(err)
	}
	for _, cmd := range []string{":WAVE 1530", ":WAVE MIN?"} {
		if err = s.Write(cmd); err != nil {
			t.Fatal(err)
		}
	}
	first, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(first) != "OK" || strings.TrimSpace(second) != "1520" {
		t.Errorf("expected OK then 1520, got %q %q", first, second)
	}
}
