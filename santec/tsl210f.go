package santec

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/specsweep/instrument"
	"github.com/nasa-jpl/specsweep/laser"
	"github.com/nasa-jpl/specsweep/visa"
)

const (
	// DiodePollInterval is how often the diode status is read while it
	// turns on or off
	DiodePollInterval = 500 * time.Millisecond

	statusQuery = "SU"
)

var (
	// TSL210FWavelength is the tuning range of the TSL-210F, nm
	TSL210FWavelength = laser.Bounds{Min: 1440, Max: 1520}

	// TSL210FPower is the output power range of the TSL-210F, mW
	TSL210FPower = laser.Bounds{Min: 0, Max: 3}
)

// TSL210F is a santec TSL-210F
type TSL210F struct {
	inst     *instrument.Instrument
	interval time.Duration

	wavelength float64
	power      float64
}

// TSL210FOption configures a TSL210F
type TSL210FOption func(*TSL210F)

// WithDiodePollInterval overrides DiodePollInterval
func WithDiodePollInterval(d time.Duration) TSL210FOption {
	return func(t *TSL210F) { t.interval = d }
}

// NewTSL210F wraps an instrument.  Nothing is sent to the device.
func NewTSL210F(in *instrument.Instrument, opts ...TSL210FOption) *TSL210F {
	t := &TSL210F{inst: in, interval: DiodePollInterval}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetWavelength commands the wavelength in nm, clamped to TSL210FWavelength
func (t *TSL210F) SetWavelength(nm float64) error {
	nm = TSL210FWavelength.Clamp(nm)
	if err := t.inst.Write(fmt.Sprintf("WA%.2f", nm)); err != nil {
		return err
	}
	t.wavelength = nm
	return nil
}

// GetWavelength returns the last commanded wavelength
func (t *TSL210F) GetWavelength() (float64, error) {
	return t.wavelength, nil
}

// SetPower commands the output power in mW, clamped to TSL210FPower
func (t *TSL210F) SetPower(mW float64) error {
	mW = TSL210FPower.Clamp(mW)
	if err := t.inst.Write(fmt.Sprintf("LP%.2f", mW)); err != nil {
		return err
	}
	t.power = mW
	return nil
}

// GetPower returns the last commanded power
func (t *TSL210F) GetPower() (float64, error) {
	return t.power, nil
}

// SetAPCMode selects automatic power control
func (t *TSL210F) SetAPCMode() error {
	return t.inst.Write("AF")
}

// TurnOnLD turns the laser diode on and waits until its status settles
func (t *TSL210F) TurnOnLD(ctx context.Context) error {
	return t.switchDiode(ctx, "LO", func(s float64) bool { return s <= 0 })
}

// TurnOffLD turns the laser diode off and waits until its status settles
func (t *TSL210F) TurnOffLD(ctx context.Context) error {
	return t.switchDiode(ctx, "LF", func(s float64) bool { return s >= 0 })
}

func (t *TSL210F) switchDiode(ctx context.Context, cmd string, settled func(float64) bool) error {
	if err := t.inst.Write(cmd); err != nil {
		return err
	}
	log := t.inst.Logger()
	check := func() (bool, error) {
		s, err := t.status()
		if err != nil {
			return false, err
		}
		log.WithField("status", s).Info("laser diode status")
		return settled(s), nil
	}
	return instrument.Poll(ctx, t.interval, check, nil)
}

func (t *TSL210F) status() (float64, error) {
	resp, err := t.inst.Query(statusQuery)
	if err != nil {
		return 0, err
	}
	f, err := visa.ParseFloat(resp)
	if err != nil {
		return 0, errors.Wrap(err, "diode status")
	}
	return f, nil
}
