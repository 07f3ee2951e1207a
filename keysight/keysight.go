// Package keysight provides access to Keysight (formerly Agilent/HP)
// 86120-class multi-wavelength meters in Go
package keysight

import (
	"github.com/nasa-jpl/specsweep/instrument"
)

// WavelengthIndex is the element of the measurement array that holds the
// wavelength of the strongest line
const WavelengthIndex = 1

// WavelengthMeter is an 86120-class multi-wavelength meter
type WavelengthMeter struct {
	inst *instrument.Instrument
}

// NewWavelengthMeter wraps an instrument
func NewWavelengthMeter(in *instrument.Instrument) *WavelengthMeter {
	return &WavelengthMeter{inst: in}
}

// ReadWavelength triggers a measurement and returns the whole power and
// wavelength array.  The wavelength is at WavelengthIndex.
func (m *WavelengthMeter) ReadWavelength() ([]float64, error) {
	return m.inst.ReadValues(":MEAS:ARR:POW:WAV?")
}
