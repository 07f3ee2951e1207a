/*Package santec provides drivers for santec tunable laser sources.

TSL speaks the SCPI dialect of the TSL-510 and TSL-710.  TSL210F speaks the
two-letter legacy command set of the TSL-210F, which cannot report its
wavelength or power; its getters return the last commanded value.
*/
package santec

import (
	"fmt"

	"github.com/nasa-jpl/specsweep/instrument"
	"github.com/nasa-jpl/specsweep/laser"
)

var (
	// FineLimits is the range of the raw fine-tuning step
	FineLimits = laser.Bounds{Min: -100, Max: 100}

	// AttenuationLimits is the range of the output attenuator, dB
	AttenuationLimits = laser.Bounds{Min: 0, Max: 30}
)

// TSL is a TSL-510 or TSL-710
type TSL struct {
	inst *instrument.Instrument

	// Wavelength and Power are the ranges the device reported at connection
	Wavelength laser.Bounds
	Power      laser.Bounds
}

// NewTSL queries the device's wavelength and power ranges and sets its units
// to nm and mW
func NewTSL(in *instrument.Instrument) (*TSL, error) {
	t := &TSL{inst: in}
	var err error
	queries := []struct {
		cmd string
		dst *float64
	}{
		{":WAV:MIN?", &t.Wavelength.Min},
		{":WAV:MAX?", &t.Wavelength.Max},
		{":POW:MIN?", &t.Power.Min},
		{":POW:MAX?", &t.Power.Max},
	}
	for _, q := range queries {
		*q.dst, err = in.ReadValue(q.cmd)
		if err != nil {
			return nil, err
		}
	}
	if err = in.Write(":WAV:UNIT 0"); err != nil {
		return nil, err
	}
	if err = in.Write(":POW:UNIT 1"); err != nil {
		return nil, err
	}
	in.Logger().WithField("wavelength", t.Wavelength).WithField("power", t.Power).Debug("laser ranges")
	return t, nil
}

// SetWavelength commands the wavelength in nm, clamped to the device range
func (t *TSL) SetWavelength(nm float64) error {
	return t.inst.Write(fmt.Sprintf(":WAV %.4f", t.Wavelength.Clamp(nm)))
}

// GetWavelength queries the wavelength in nm
func (t *TSL) GetWavelength() (float64, error) {
	return t.inst.ReadValue(":WAV?")
}

// SetPower commands the output power in mW, clamped to the device range
func (t *TSL) SetPower(mW float64) error {
	return t.inst.Write(fmt.Sprintf(":POW %.3f", t.Power.Clamp(mW)))
}

// GetPower queries the actual output power in mW
func (t *TSL) GetPower() (float64, error) {
	return t.inst.ReadValue(":POW:ACT?")
}

// SetFinetuning commands a raw fine-tuning step within FineLimits
func (t *TSL) SetFinetuning(step float64) error {
	return t.inst.Write(fmt.Sprintf(":WAV:FIN %.2f", FineLimits.Clamp(step)))
}

// GetFinetuning queries the raw fine-tuning step
func (t *TSL) GetFinetuning() (float64, error) {
	return t.inst.ReadValue(":WAV:FIN?")
}

// SetAttenuation commands the output attenuator within AttenuationLimits
func (t *TSL) SetAttenuation(dB float64) error {
	return t.inst.Write(fmt.Sprintf(":POW:ATT %.2f", AttenuationLimits.Clamp(dB)))
}

// OpenShutter opens the output shutter
func (t *TSL) OpenShutter() error {
	return t.inst.Write(":POW:SHUT 0")
}

// CloseShutter closes the output shutter
func (t *TSL) CloseShutter() error {
	return t.inst.Write(":POW:SHUT 1")
}
