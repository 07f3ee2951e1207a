/*Package sweep runs a wavelength sweep: it homes the laser, steps it through
a range while recording the lock-in signal at each point, saves the result,
and waits for the operator to quit.

The whole loop runs on the caller's goroutine.  The only asynchronous input is
the operator interrupt, delivered as the cancellation of the context returned
by Loop.Interrupts.
*/
package sweep

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nasa-jpl/specsweep/laser"
	"github.com/nasa-jpl/specsweep/mathx"
	"github.com/nasa-jpl/specsweep/spectrum"
)

var (
	// ErrNoLaser is returned when running without a laser
	ErrNoLaser = errors.New("sweep: no laser")

	// ErrNoLockIn is returned when acquiring without a lock-in
	ErrNoLockIn = errors.New("sweep: no lock-in amplifier")

	// ErrNoMeter is returned when wavelength measurement is requested
	// without a wavelength meter
	ErrNoMeter = errors.New("sweep: no wavelength meter")

	// ErrNoFineTuning is returned when fine tuning is requested of a laser
	// that cannot do it
	ErrNoFineTuning = errors.New("sweep: laser does not support fine tuning")
)

// State is a phase of the loop
type State int

// The loop moves Idle, Homing, Sweeping, then Interrupted or Exhausted,
// Saving, Draining, and Terminated.  Skipping acquisition goes from Homing
// straight to Saving.
const (
	Idle State = iota
	Homing
	Sweeping
	Interrupted
	Exhausted
	Saving
	Draining
	Terminated
)

var stateNames = [...]string{"Idle", "Homing", "Sweeping", "Interrupted", "Exhausted", "Saving", "Draining", "Terminated"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// LockIn is what the loop needs of a lock-in amplifier
type LockIn interface {
	FetchDataset() ([]float64, error)
	ReadFreq() (float64, error)
	ReadRange() (float64, error)
	ReadTimeconst() (float64, error)
}

// WavelengthMeter measures the laser independently of its own readback
type WavelengthMeter interface {
	ReadWavelength() ([]float64, error)
}

// MeterIndex is the element of a meter reading that holds the wavelength
const MeterIndex = 1

// Observer is told about every row right after it is appended
type Observer interface {
	OnRow(row []float64, t *spectrum.Table)
}

// Starter is an Observer that wants the physical wavelength span of the
// sweep before the first row
type Starter interface {
	OnStart(lo, hi float64)
}

// Sink persists a finished spectrum and returns where it went
type Sink interface {
	Save(t *spectrum.Table, h spectrum.Header) (string, error)
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Interrupts returns a context that is cancelled when the operator
// interrupts.  Each call arms a fresh interrupt.
type Interrupts func(ctx context.Context) (context.Context, context.CancelFunc)

// OSInterrupts cancels on SIGINT (ctrl-C) or SIGTERM
func OSInterrupts(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

const (
	// DefaultSettle is the wait after homing
	DefaultSettle = 2 * time.Second

	// DefaultAdaptiveThreshold is never exceeded by a real signal
	DefaultAdaptiveThreshold = 1e9

	drainPoll = 100 * time.Millisecond
)

// Config is what to sweep and how
type Config struct {
	Range Range

	// ScanWait is the pause between commanding a point and reading it
	ScanWait time.Duration

	// Settle is the pause after homing
	Settle time.Duration

	// FineTuning sweeps the raw fine-tuning step instead of the wavelength
	FineTuning bool

	// FineSlope is nm per raw step; DefaultFineSlope if zero
	FineSlope float64

	// MeasureWavelength adds a wavelength meter column
	MeasureWavelength bool

	// AdaptiveThreshold: after a reading above it, the next increment is
	// Step/Substeps instead of Step.  Zero means DefaultAdaptiveThreshold.
	AdaptiveThreshold float64

	// SkipAcquisition homes the laser and stops, writing nothing
	SkipAcquisition bool

	// Drain waits for a final interrupt before returning
	Drain bool

	SampleName string
	Comment    string
}

// Result is the outcome of a run
type Result struct {
	// End is Interrupted or Exhausted, or Idle if nothing was acquired
	End   State
	Table *spectrum.Table

	// Path is where the table was saved, if it was
	Path string
}

// Loop is one measurement run.  Set its fields, then call Run once.
type Loop struct {
	Config

	Laser  laser.Tunable
	LockIn LockIn
	Meter  WavelengthMeter
	Sink   Sink

	Observers []Observer

	// OnState, if not nil, is called on every transition
	OnState func(State)

	// Sleep and Interrupts default to the real clock and OS signals
	Sleep      Sleeper
	Interrupts Interrupts

	Log logrus.FieldLogger

	state  State
	tuning FineTuning
	table  *spectrum.Table
}

// State returns the current state
func (l *Loop) State() State {
	return l.state
}

func (l *Loop) setState(s State) {
	l.state = s
	l.Log.WithField("state", s).Debug("sweep state")
	if l.OnState != nil {
		l.OnState(s)
	}
}

func (l *Loop) defaults() {
	if l.Sleep == nil {
		l.Sleep = Sleep
	}
	if l.Interrupts == nil {
		l.Interrupts = OSInterrupts
	}
	if l.Log == nil {
		l.Log = logrus.StandardLogger()
	}
	if l.FineSlope == 0 {
		l.FineSlope = DefaultFineSlope
	}
	if l.AdaptiveThreshold == 0 {
		l.AdaptiveThreshold = DefaultAdaptiveThreshold
	}
}

func (l *Loop) check() error {
	if l.Laser == nil {
		return ErrNoLaser
	}
	if l.FineTuning {
		if _, ok := l.Laser.(laser.FineTuner); !ok {
			return ErrNoFineTuning
		}
	}
	if l.SkipAcquisition {
		return nil
	}
	if l.LockIn == nil {
		return ErrNoLockIn
	}
	if l.MeasureWavelength && l.Meter == nil {
		return ErrNoMeter
	}
	return l.Range.Validate()
}

// Columns returns the table columns the configuration produces
func (c Config) Columns() []string {
	cols := []string{spectrum.Wavelength, spectrum.Intensity}
	if c.MeasureWavelength {
		cols = append(cols, spectrum.MeterWavelength)
	}
	if c.FineTuning {
		cols = append(cols, spectrum.FineTuning)
	}
	return cols
}

// Run performs the measurement.  Device errors abort the run without
// saving.  An interrupt during the sweep ends it early and the rows measured
// so far are saved.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	l.defaults()
	if err := l.check(); err != nil {
		return Result{}, err
	}
	defer l.setState(Terminated)
	l.table = spectrum.NewTable(l.Columns()...)
	res := Result{End: Idle, Table: l.table}

	if err := l.home(ctx); err != nil {
		return res, err
	}
	if l.SkipAcquisition {
		l.setState(Saving)
	} else {
		end, err := l.sweep(ctx)
		if err != nil {
			return res, err
		}
		res.End = end
		l.setState(Saving)
		if res.Path, err = l.save(); err != nil {
			return res, err
		}
	}
	if l.Drain {
		l.drain(ctx)
	}
	return res, nil
}

func (l *Loop) home(ctx context.Context) error {
	l.setState(Homing)
	r := l.Range
	if l.FineTuning {
		offset, err := l.Laser.GetWavelength()
		if err != nil {
			return errors.Wrap(err, "reading fine tuning offset")
		}
		l.tuning = FineTuning{Slope: l.FineSlope, Offset: offset}
		if err = l.Laser.(laser.FineTuner).SetFinetuning(r.Init); err != nil {
			return err
		}
	} else if err := l.Laser.SetWavelength(r.Init); err != nil {
		return err
	}
	lo, hi := r.Min(), r.Max()
	if l.FineTuning {
		a, b := l.tuning.Physical(r.Init), l.tuning.Physical(r.Last)
		lo, hi = math.Min(a, b), math.Max(a, b)
	}
	for _, o := range l.Observers {
		if s, ok := o.(Starter); ok {
			s.OnStart(lo, hi)
		}
	}
	return l.Sleep(ctx, l.Settle)
}

func (l *Loop) sweep(ctx context.Context) (State, error) {
	l.setState(Sweeping)
	l.Log.Info("Measurement Start!!")
	l.Log.Info("Please input ctrl-C to interrupt.")
	ictx, stop := l.Interrupts(ctx)
	defer stop()

	end := Exhausted
	r := l.Range
	for k := 0; r.Contains(r.Point(k)); {
		if ictx.Err() != nil {
			end = Interrupted
			break
		}
		row, err := l.measure(ictx, r.Clamp(r.Point(k)))
		if err != nil {
			if ictx.Err() != nil {
				end = Interrupted
				break
			}
			return Idle, err
		}
		if err = l.table.Append(row); err != nil {
			return Idle, err
		}
		l.Log.WithFields(logrus.Fields{"wavelength": row[0], "intensity": row[1]}).Debug("row")
		for _, o := range l.Observers {
			o.OnRow(row, l.table)
		}
		if row[1] > l.AdaptiveThreshold {
			k++
		} else {
			k += Substeps
		}
	}
	if end == Interrupted {
		l.Log.Info("Break Measurement!!")
	}
	l.setState(end)
	l.Log.Info("Measurement Finished!!")
	return end, nil
}

// measure commands x and returns the row for it.  The row is nil if ctx
// ended at any point.
func (l *Loop) measure(ctx context.Context, x float64) ([]float64, error) {
	var (
		wl, raw float64
		err     error
	)
	if l.FineTuning {
		ft := l.Laser.(laser.FineTuner)
		if err = ft.SetFinetuning(x); err != nil {
			return nil, err
		}
		if err = l.Sleep(ctx, l.ScanWait); err != nil {
			return nil, err
		}
		if raw, err = ft.GetFinetuning(); err != nil {
			return nil, err
		}
		wl = mathx.RoundDecimals(l.tuning.Physical(raw), 5)
	} else {
		if err = l.Laser.SetWavelength(x); err != nil {
			return nil, err
		}
		if err = l.Sleep(ctx, l.ScanWait); err != nil {
			return nil, err
		}
		if w, ok := l.Laser.(laser.WavelengthWaiter); ok {
			wl, err = w.GetWavelengthContext(ctx)
		} else {
			wl, err = l.Laser.GetWavelength()
		}
		if err != nil {
			return nil, err
		}
	}
	row := []float64{wl, 0}
	if l.MeasureWavelength {
		m, err := l.Meter.ReadWavelength()
		if err != nil {
			return nil, err
		}
		if len(m) <= MeterIndex {
			return nil, errors.Errorf("sweep: wavelength meter returned %d values", len(m))
		}
		l.Log.WithFields(logrus.Fields{"laser": wl, "meter": m[MeterIndex]}).Info("wavelength")
		row = append(row, m[MeterIndex])
	}
	ds, err := l.LockIn.FetchDataset()
	if err != nil {
		return nil, err
	}
	row[1] = ds[0]
	if l.FineTuning {
		row = append(row, raw)
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	return row, nil
}

// Header builds the file header from the configuration and the lock-in
func (l *Loop) Header() (spectrum.Header, error) {
	h := spectrum.Header{Sample: l.SampleName, Comment: l.Comment}
	reads := []struct {
		key string
		f   func() (float64, error)
	}{
		{"lockin_range", l.LockIn.ReadRange},
		{"lockin_freq", l.LockIn.ReadFreq},
		{"lockin_timeconst", l.LockIn.ReadTimeconst},
	}
	for _, rd := range reads {
		v, err := rd.f()
		if err != nil {
			return h, errors.Wrapf(err, "reading %s", rd.key)
		}
		h.Add(rd.key, v)
	}
	h.Add("scan_wait", l.ScanWait.Seconds())
	h.Add("wv_init", fmt.Sprintf("%v, wv_last %v wv_step %v", l.Range.Init, l.Range.Last, l.Range.Step))
	return h, nil
}

func (l *Loop) save() (string, error) {
	if l.Sink == nil {
		return "", nil
	}
	h, err := l.Header()
	if err != nil {
		return "", err
	}
	path, err := l.Sink.Save(l.table, h)
	if err != nil {
		return path, err
	}
	l.Log.Infof("File saved: %s", path)
	return path, nil
}

func (l *Loop) drain(ctx context.Context) {
	l.setState(Draining)
	l.Log.Info("Please input ctrl-C to exit.")
	dctx, stop := l.Interrupts(ctx)
	defer stop()
	for dctx.Err() == nil {
		l.Sleep(dctx, drainPoll)
	}
}
