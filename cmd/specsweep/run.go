package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/theckman/yacspin"
	"go.uber.org/multierr"

	"github.com/nasa-jpl/specsweep/comm"
	"github.com/nasa-jpl/specsweep/gpib"
	"github.com/nasa-jpl/specsweep/instrument"
	"github.com/nasa-jpl/specsweep/keysight"
	"github.com/nasa-jpl/specsweep/laser"
	"github.com/nasa-jpl/specsweep/newport"
	"github.com/nasa-jpl/specsweep/nf"
	"github.com/nasa-jpl/specsweep/plot"
	"github.com/nasa-jpl/specsweep/santec"
	"github.com/nasa-jpl/specsweep/server"
	"github.com/nasa-jpl/specsweep/sim"
	"github.com/nasa-jpl/specsweep/spectrum"
	"github.com/nasa-jpl/specsweep/sweep"
	"github.com/nasa-jpl/specsweep/usbtmc"
	"github.com/nasa-jpl/specsweep/util"
	"github.com/nasa-jpl/specsweep/visa"
)

// MeterNickname is the registry name of the wavelength meter
const MeterNickname = "86120"

// parseRange reads wv_init wv_last wv_step
func parseRange(pos []string) (sweep.Range, error) {
	if len(pos) != 3 {
		return sweep.Range{}, errors.Errorf("expected wv_init wv_last wv_step, got %d arguments", len(pos))
	}
	var v [3]float64
	for i, s := range pos {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return sweep.Range{}, errors.Wrapf(err, "argument %d", i+1)
		}
		v[i] = f
	}
	return sweep.Range{Init: v[0], Last: v[1], Step: v[2]}, nil
}

func addresses(c Config) instrument.Addresses {
	return instrument.DefaultAddresses.Merge(c.Addresses)
}

// openBus builds the simulated bench or a resource manager over the
// configured transports.  The returned func releases the transports.
func openBus(c Config, log logrus.FieldLogger) (visa.Bus, func() error, error) {
	if c.Simulate {
		nicks := []string{MeterNickname}
		if m, err := laser.ParseModel(c.Laser); err == nil {
			nicks = append(nicks, string(m))
		}
		if m, err := nf.ParseModel(c.LockIn); err == nil {
			nicks = append(nicks, string(m))
		}
		b := sim.Standard(addresses(c), nicks...)
		return b, func() error { return nil }, nil
	}
	var (
		ts      []visa.Transport
		closers []func() error
	)
	g, err := gpib.Open(c.Bus.GPIB, log)
	if err != nil {
		log.WithError(err).Warn("GPIB controller unavailable")
	} else {
		ts = append(ts, g)
		closers = append(closers, g.Close)
	}
	if len(c.Bus.Sockets) > 0 {
		ts = append(ts, &comm.SocketTransport{Resources: c.Bus.Sockets, Timeout: c.Bus.SocketTimeout})
	}
	if c.Bus.USB {
		u := usbtmc.New(log)
		ts = append(ts, u)
		closers = append(closers, u.Close)
	}
	if len(ts) == 0 {
		return nil, nil, errors.New("no bus transport available; connect the GPIB controller or configure bus.sockets / bus.usb")
	}
	closeAll := func() error {
		var err error
		for _, fn := range closers {
			err = multierr.Append(err, fn())
		}
		return err
	}
	return visa.NewResourceManager(ts...), closeAll, nil
}

// resolve returns the handle of nickname, or nil if the device is not live
func resolve(reg *instrument.Registry, nickname string) (*instrument.Instrument, error) {
	ok, in, err := reg.Resolve(nickname)
	if err != nil || !ok {
		return nil, err
	}
	if in == nil {
		in = reg.Lookup(nickname)
	}
	return in, nil
}

// openLaser builds the driver for model.  The TSL-210F diode is switched
// as configured before it is used.
func openLaser(ctx context.Context, in *instrument.Instrument, model laser.Model, c Config) (laser.Tunable, error) {
	switch laser.Family(model) {
	case laser.FamilyB:
		t, err := newport.NewTLB6500(in)
		if err != nil {
			return nil, err
		}
		return t, nil
	case laser.FamilyANarrow:
		t := santec.NewTSL210F(in)
		if c.LaserTurnOff {
			return t, t.TurnOffLD(ctx)
		}
		if err := t.TurnOnLD(ctx); err != nil {
			return nil, err
		}
		if err := t.SetAPCMode(); err != nil {
			return nil, err
		}
		return t, t.SetPower(c.Power)
	default:
		t, err := santec.NewTSL(in)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// runner wires the devices, the sink and the observers into a sweep.Loop
type runner struct {
	Config Config
	Range  sweep.Range
	Log    logrus.FieldLogger

	// Bus replaces the configured bus when not nil
	Bus visa.Bus

	// Interrupts and Sleep replace the OS signal and the real clock
	Interrupts sweep.Interrupts
	Sleep      sweep.Sleeper

	// Now is the clock used to name files
	Now func() time.Time
}

// Run performs one measurement
func (r *runner) Run(ctx context.Context) (sweep.Result, error) {
	c := r.Config
	log := r.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	bus := r.Bus
	if bus == nil {
		b, closer, err := openBus(c, log)
		if err != nil {
			return sweep.Result{}, err
		}
		defer closer()
		bus = b
	}
	reg := instrument.NewRegistry(bus, addresses(c), log, instrument.WithLogger(log))
	defer reg.Close()

	model, err := laser.ParseModel(c.Laser)
	if err != nil {
		return sweep.Result{}, err
	}
	lim, err := nf.ParseModel(c.LockIn)
	if err != nil {
		return sweep.Result{}, err
	}

	loop := &sweep.Loop{
		Config: sweep.Config{
			Range:             r.Range,
			ScanWait:          util.SecsToDuration(c.ScanWait),
			Settle:            util.SecsToDuration(c.Settle),
			FineTuning:        c.FineTuning,
			MeasureWavelength: c.WaveMeas,
			AdaptiveThreshold: c.Adaptive,
			SkipAcquisition:   c.NoMeasurement,
			Drain:             c.Drain,
			SampleName:        c.SampleName,
			Comment:           c.Comment,
		},
		Sleep:      r.Sleep,
		Interrupts: r.Interrupts,
		Log:        log,
	}
	if loop.Interrupts == nil {
		loop.Interrupts = sweep.OSInterrupts
	}

	in, err := resolve(reg, string(model))
	if err != nil {
		return sweep.Result{}, err
	}
	if in != nil {
		if loop.Laser, err = openLaser(ctx, in, model, c); err != nil {
			return sweep.Result{}, errors.Wrapf(err, "setting up %s", model)
		}
	}
	if in, err = resolve(reg, string(lim)); err != nil {
		return sweep.Result{}, err
	}
	if in != nil {
		li, err := nf.NewLockIn(in)
		if err != nil {
			return sweep.Result{}, errors.Wrapf(err, "setting up %s", lim)
		}
		loop.LockIn = li
	}
	if c.WaveMeas {
		if in, err = resolve(reg, MeterNickname); err != nil {
			return sweep.Result{}, err
		}
		if in != nil {
			loop.Meter = keysight.NewWavelengthMeter(in)
		}
	}

	live := plot.NewLive(plot.Renderer{}, plot.DefaultRefresh, log)
	live.Path = c.Preview
	defer live.Close()
	loop.Sink = &spectrum.Store{Dir: c.FileDir, Prefix: c.FileHeader, Renderer: live, Now: r.Now}
	loop.Observers = []sweep.Observer{live}

	var mon *server.Monitor
	if c.HTTP != "" {
		mon = server.NewMonitor(log, live.Latest)
		loop.Observers = append(loop.Observers, mon)
		loop.Interrupts = mon.Interrupts(loop.Interrupts)
		sctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := mon.ListenAndServe(sctx, c.HTTP); err != nil {
				log.WithError(err).Error("monitor stopped")
			}
		}()
	}
	spin := newSpinner(log)
	loop.OnState = func(s sweep.State) {
		if mon != nil {
			mon.OnState(s)
		}
		if s == sweep.Draining {
			spin.start()
		} else if s == sweep.Terminated {
			spin.stop()
		}
	}
	return loop.Run(ctx)
}

// spinner shows that the program is alive while it waits for ctrl-C
type spinner struct {
	s   *yacspin.Spinner
	log logrus.FieldLogger
}

func newSpinner(log logrus.FieldLogger) *spinner {
	s, err := yacspin.New(yacspin.Config{
		Frequency:     100 * time.Millisecond,
		Writer:        os.Stderr,
		CharSet:       yacspin.CharSets[14],
		Suffix:        " ",
		Message:       "waiting for ctrl-C",
		StopCharacter: "✓",
		StopMessage:   "done",
	})
	if err != nil {
		log.WithError(err).Debug("spinner unavailable")
	}
	return &spinner{s: s, log: log}
}

func (s *spinner) start() {
	if s.s == nil {
		return
	}
	if err := s.s.Start(); err != nil {
		s.log.WithError(err).Debug("starting spinner")
	}
}

func (s *spinner) stop() {
	if s.s == nil || s.s.Status() != yacspin.SpinnerRunning {
		return
	}
	if err := s.s.Stop(); err != nil {
		s.log.WithError(err).Debug("stopping spinner")
	}
}
