package sim

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// TSL is a family A tunable laser (TSL-510, TSL-710)
type TSL struct {
	mu sync.Mutex

	Model        string
	WavMin       float64
	WavMax       float64
	PowMin       float64
	PowMax       float64
	Wavelength   float64
	Power        float64
	Fine         float64
	Attenuation  float64
	ShutterShut  bool
	WavelengthNM bool
	PowerMW      bool

	// OPCPending is the number of "0" replies *OPC? gives before "1"
	OPCPending int

	optics *Optics
}

// NewTSL returns a TSL parked at 1550 nm, 1 mW
func NewTSL(model string, o *Optics) *TSL {
	t := &TSL{
		Model:      model,
		WavMin:     1480,
		WavMax:     1640,
		PowMin:     0.01,
		PowMax:     20,
		Wavelength: 1550,
		Power:      1,
		optics:     o,
	}
	t.update()
	return t
}

// Effective returns the emitted wavelength including fine tuning
func (t *TSL) Effective() float64 {
	return t.Wavelength + t.Fine*FineSlope
}

func (t *TSL) update() {
	if t.optics != nil {
		t.optics.SetLaser(t.Effective(), t.Power, !t.ShutterShut)
	}
}

// Handle implements Device
func (t *TSL) Handle(cmd string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	verb, arg := split(cmd)
	switch verb {
	case "*IDN?":
		return "SANTEC," + t.Model + ",00000000,0001.0000", true
	case "*OPC?":
		if t.OPCPending > 0 {
			t.OPCPending--
			return "0", true
		}
		return "1", true
	case ":WAV:MIN?":
		return fmtF(t.WavMin), true
	case ":WAV:MAX?":
		return fmtF(t.WavMax), true
	case ":POW:MIN?":
		return fmtF(t.PowMin), true
	case ":POW:MAX?":
		return fmtF(t.PowMax), true
	case ":WAV:UNIT":
		t.WavelengthNM = arg == "0"
	case ":POW:UNIT":
		t.PowerMW = arg == "1"
	case ":WAV?":
		return fmt.Sprintf("%.4f", t.Wavelength), true
	case ":WAV":
		if f, ok := parse(arg); ok {
			t.Wavelength = f
		}
	case ":WAV:FIN?":
		return fmt.Sprintf("%.2f", t.Fine), true
	case ":WAV:FIN":
		if f, ok := parse(arg); ok {
			t.Fine = f
		}
	case ":POW:ACT?":
		return fmt.Sprintf("%.3f", t.Power), true
	case ":POW":
		if f, ok := parse(arg); ok {
			t.Power = f
		}
	case ":POW:ATT":
		if f, ok := parse(arg); ok {
			t.Attenuation = f
		}
	case ":POW:SHUT":
		t.ShutterShut = arg == "1"
	}
	t.update()
	return "", false
}

// TSL210F is the narrow band laser with the legacy two-letter command set.
// Its diode status (SU) walks toward zero one unit per query after LO or LF.
type TSL210F struct {
	mu sync.Mutex

	Wavelength float64
	Power      float64
	APC        bool
	Emitting   bool
	Status     int

	// Steps is how many status queries a diode transition takes
	Steps int

	optics *Optics
}

// NewTSL210F returns a TSL-210F with the diode off
func NewTSL210F(o *Optics) *TSL210F {
	return &TSL210F{Wavelength: 1480, Steps: 3, optics: o}
}

// Handle implements Device
func (t *TSL210F) Handle(cmd string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cmd = strings.TrimSpace(cmd)
	defer t.update()
	switch {
	case cmd == "SU":
		s := t.Status
		switch {
		case t.Status > 0:
			t.Status--
		case t.Status < 0:
			t.Status++
		}
		return strconv.Itoa(s), true
	case cmd == "LO":
		t.Emitting = true
		t.Status = t.Steps
	case cmd == "LF":
		t.Emitting = false
		t.Status = -t.Steps
	case cmd == "AF":
		t.APC = true
	case strings.HasPrefix(cmd, "WA"):
		if f, ok := parse(cmd[2:]); ok {
			t.Wavelength = f
		}
	case strings.HasPrefix(cmd, "LP"):
		if f, ok := parse(cmd[2:]); ok {
			t.Power = f
		}
	}
	return "", false
}

func (t *TSL210F) update() {
	if t.optics != nil {
		t.optics.SetLaser(t.Wavelength, t.Power, t.Emitting)
	}
}

// TLB6500 is the family B laser.  Every set acknowledges with OK, and a
// wavelength query answers OK while the motor is still moving.
type TLB6500 struct {
	mu sync.Mutex

	WavMin     float64
	WavMax     float64
	Wavelength float64

	// Busy is the number of OK replies a readback gives after each move
	Busy int

	moving int
	optics *Optics
}

// NewTLB6500 returns a TLB-6500 parked at 1550 nm
func NewTLB6500(o *Optics) *TLB6500 {
	t := &TLB6500{WavMin: 1520, WavMax: 1570, Wavelength: 1550, Busy: 2, optics: o}
	t.update()
	return t
}

// Handle implements Device
func (t *TLB6500) Handle(cmd string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cmd = strings.TrimSpace(cmd)
	switch cmd {
	case "*IDN?":
		return "NewFocus 6500 v2.4 03/09/12 SN1234", true
	case ":WAVE MIN?":
		return fmtF(t.WavMin), true
	case ":WAVE MAX?":
		return fmtF(t.WavMax), true
	case ":WAVE ?":
		if t.moving > 0 {
			t.moving--
			return "OK", true
		}
		return fmt.Sprintf("%.3f", t.Wavelength), true
	}
	if strings.HasPrefix(cmd, ":WAVE ") {
		if f, ok := parse(cmd[len(":WAVE "):]); ok {
			t.Wavelength = f
			t.moving = t.Busy
			t.update()
		}
		return "OK", true
	}
	return "", false
}

func (t *TLB6500) update() {
	if t.optics != nil {
		t.optics.SetLaser(t.Wavelength, 1, true)
	}
}

// WavelengthMeter is an 86120-class multi-wavelength meter.  It reports the
// line count followed by the wavelength in meters.
type WavelengthMeter struct {
	optics *Optics
}

// NewWavelengthMeter returns a meter watching o
func NewWavelengthMeter(o *Optics) *WavelengthMeter {
	return &WavelengthMeter{optics: o}
}

// Handle implements Device
func (m *WavelengthMeter) Handle(cmd string) (string, bool) {
	switch strings.TrimSpace(cmd) {
	case "*IDN?":
		return "HEWLETT-PACKARD,86120C,US00000000,B.05.00", true
	case ":MEAS:ARR:POW:WAV?":
		return fmt.Sprintf("1,%+.9E", m.optics.Wavelength()*1e-9), true
	}
	return "", false
}

// LockIn is an NF lock-in amplifier detecting the bench's resonance
type LockIn struct {
	mu sync.Mutex

	Model     string
	Freq      float64
	Range     float64
	TimeConst float64
	Forms     [4]string

	optics *Optics
}

// NewLockIn returns a lock-in of the given model
func NewLockIn(model string, o *Optics) *LockIn {
	return &LockIn{
		Model:     model,
		Freq:      1000,
		Range:     1e-2,
		TimeConst: 30e-3,
		Forms:     [4]string{"REAL", "IMAG", "REAL", "IMAG"},
		optics:    o,
	}
}

// Handle implements Device
func (l *LockIn) Handle(cmd string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cmd = strings.TrimSpace(cmd)
	switch cmd {
	case "*IDN?":
		return "NF CORPORATION," + l.Model + ",0,1.00", true
	case ":FETC?":
		return fmt.Sprintf("%+.6E,%+.6E", l.optics.Signal(), 0.0), true
	case ":FREQ?":
		return fmt.Sprintf("%+.6E", l.Freq), true
	case ":VOLT:AC:RANG?":
		return fmt.Sprintf("%+.6E", l.Range), true
	case ":FILT:TCON?":
		return fmt.Sprintf("%+.6E", l.TimeConst), true
	}
	for _, part := range strings.Split(cmd, ";") {
		l.configure(strings.TrimSpace(part))
	}
	for i := range l.Forms {
		if cmd == fmt.Sprintf(":CALC%d:FORM?", i+1) {
			return l.Forms[i], true
		}
	}
	return "", false
}

func (l *LockIn) configure(cmd string) {
	verb, arg := split(cmd)
	for i := range l.Forms {
		if verb == fmt.Sprintf(":CALC%d:FORM", i+1) {
			l.Forms[i] = arg
		}
	}
}

func split(cmd string) (string, string) {
	cmd = strings.TrimSpace(cmd)
	i := strings.IndexByte(cmd, ' ')
	if i < 0 {
		return cmd, ""
	}
	return cmd[:i], strings.TrimSpace(cmd[i+1:])
}

func parse(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

func fmtF(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
