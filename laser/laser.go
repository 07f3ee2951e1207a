// Package laser describes what specsweep needs from a tunable laser source:
// a common Tunable interface, optional capabilities a driver may add on top of
// it, the bounds every commanded value is clamped to, and the set of supported
// models.
package laser

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/specsweep/util"
)

// ErrNotSupported is returned by a driver for an operation its hardware lacks
var ErrNotSupported = errors.New("laser: operation not supported by this model")

// Tunable is a laser whose wavelength and power can be set and read back.
// Wavelengths are in nm and powers in mW.
type Tunable interface {
	// SetWavelength clamps nm to the device range and commands it
	SetWavelength(nm float64) error

	// GetWavelength returns the current wavelength
	GetWavelength() (float64, error)

	// SetPower clamps mW to the device range and commands it
	SetPower(mW float64) error

	// GetPower returns the current output power
	GetPower() (float64, error)
}

// WavelengthWaiter reads back its wavelength only once the laser has
// settled, and gives up when ctx ends
type WavelengthWaiter interface {
	GetWavelengthContext(ctx context.Context) (float64, error)
}

// FineTuner can offset its wavelength in small raw steps
type FineTuner interface {
	// SetFinetuning commands a raw fine-tuning step
	SetFinetuning(step float64) error

	// GetFinetuning returns the raw fine-tuning step
	GetFinetuning() (float64, error)
}

// Attenuator has an output attenuator, in dB
type Attenuator interface {
	SetAttenuation(dB float64) error
}

// Shutter has an output shutter
type Shutter interface {
	OpenShutter() error
	CloseShutter() error
}

// DiodeController exposes the laser diode itself.  Turning the diode on or
// off blocks until the device reports the transition finished.
type DiodeController interface {
	TurnOnLD(ctx context.Context) error
	TurnOffLD(ctx context.Context) error

	// SetAPCMode selects automatic power control
	SetAPCMode() error
}

// Bounds is the closed interval a device accepts for one quantity
type Bounds util.Limiter

// Clamp returns v limited to b
func (b Bounds) Clamp(v float64) float64 {
	return util.Limiter(b).Clamp(v)
}

// Contains returns true if v is within b
func (b Bounds) Contains(v float64) bool {
	return util.Limiter(b).Check(v)
}

// Model is a supported laser source
type Model string

const (
	// TSL710 is the santec TSL-710
	TSL710 Model = "TSL-710"

	// TSL510 is the santec TSL-510
	TSL510 Model = "TSL-510"

	// TSL210F is the santec TSL-210F, a narrow band source with a
	// legacy command set
	TSL210F Model = "TSL-210F"

	// TLB6500 is the New Focus (Newport) TLB-6500
	TLB6500 Model = "TLB-6500"
)

// Models lists every supported model
var Models = []Model{TSL710, TSL510, TSL210F, TLB6500}

// DriverFamily groups models that share a command set
type DriverFamily int

const (
	// FamilyA is the santec SCPI family, TSL-510 and TSL-710
	FamilyA DriverFamily = iota

	// FamilyANarrow is the TSL-210F
	FamilyANarrow

	// FamilyB is the TLB-6500
	FamilyB
)

// Family returns the driver family of m
func Family(m Model) DriverFamily {
	switch m {
	case TSL210F:
		return FamilyANarrow
	case TLB6500:
		return FamilyB
	default:
		return FamilyA
	}
}

// ParseModel returns the model named s, ignoring case
func ParseModel(s string) (Model, error) {
	for _, m := range Models {
		if strings.EqualFold(string(m), strings.TrimSpace(s)) {
			return m, nil
		}
	}
	return "", errors.Errorf("laser: unknown model %q, must be one of %v", s, Models)
}
