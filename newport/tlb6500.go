package newport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/specsweep/instrument"
	"github.com/nasa-jpl/specsweep/laser"
	"github.com/nasa-jpl/specsweep/visa"
)

const busyReply = "OK"

// ErrReadbackTimeout is returned when the laser keeps answering OK past the
// readback timeout
var ErrReadbackTimeout = errors.New("newport: laser did not report its wavelength in time")

// TLB6500 is a New Focus TLB-6500 Velocity tunable laser.
//
// The laser acknowledges every set command with OK, and answers OK to a
// wavelength query while the motor is still moving.
type TLB6500 struct {
	inst *instrument.Instrument

	// Wavelength is the tuning range reported at connection
	Wavelength laser.Bounds

	timeout time.Duration
}

// TLBOption configures a TLB6500
type TLBOption func(*TLB6500)

// WithReadbackTimeout bounds how long GetWavelength waits for the motor.
// Zero, the default, waits forever.
func WithReadbackTimeout(d time.Duration) TLBOption {
	return func(t *TLB6500) { t.timeout = d }
}

// NewTLB6500 queries the tuning range of the laser
func NewTLB6500(in *instrument.Instrument, opts ...TLBOption) (*TLB6500, error) {
	t := &TLB6500{inst: in}
	for _, opt := range opts {
		opt(t)
	}
	var err error
	if t.Wavelength.Min, err = in.ReadValue(":WAVE MIN?"); err != nil {
		return nil, err
	}
	if t.Wavelength.Max, err = in.ReadValue(":WAVE MAX?"); err != nil {
		return nil, err
	}
	return t, nil
}

// SetWavelength commands the wavelength in nm, clamped to the tuning range,
// and consumes the acknowledgement
func (t *TLB6500) SetWavelength(nm float64) error {
	if err := t.inst.Write(fmt.Sprintf(":WAVE %.4f", t.Wavelength.Clamp(nm))); err != nil {
		return err
	}
	_, err := t.inst.Read()
	return err
}

// GetWavelength queries the wavelength in nm, repeating the query for as
// long as the laser answers OK
func (t *TLB6500) GetWavelength() (float64, error) {
	return t.GetWavelengthContext(context.Background())
}

// GetWavelengthContext is GetWavelength, abandoned when ctx ends
func (t *TLB6500) GetWavelengthContext(parent context.Context) (float64, error) {
	ctx := parent
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, t.timeout)
		defer cancel()
	}
	var resp string
	check := func() (bool, error) {
		var err error
		resp, err = t.inst.Query(":WAVE ?")
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(resp) != busyReply, nil
	}
	if err := instrument.Poll(ctx, 0, check, nil); err != nil {
		if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return 0, ErrReadbackTimeout
		}
		return 0, err
	}
	return visa.ParseFloat(resp)
}

// SetPower is not supported
func (t *TLB6500) SetPower(float64) error {
	return laser.ErrNotSupported
}

// GetPower is not supported
func (t *TLB6500) GetPower() (float64, error) {
	return 0, laser.ErrNotSupported
}
