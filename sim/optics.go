package sim

import "sync"

// FineSlope is the wavelength change per fine-tuning step of the simulated
// family A lasers, in nm
const FineSlope = -0.5e-3

// Optics is the light path between the laser and the detector.  The detected
// signal is a Lorentzian resonance of the laser's effective wavelength.
type Optics struct {
	mu sync.Mutex

	// Center and Width (FWHM) of the resonance, nm
	Center float64
	Width  float64

	// Peak is the signal at resonance for 1 mW, V
	Peak float64

	// Background is added to every reading, V
	Background float64

	wavelength float64
	power      float64
	emitting   bool
}

// NewOptics returns a resonance at 1550.5 nm with a 0.2 nm linewidth
func NewOptics() *Optics {
	return &Optics{Center: 1550.5, Width: 0.2, Peak: 1e-3, Background: 1e-6, power: 1, emitting: true}
}

// SetLaser records what the laser is emitting
func (o *Optics) SetLaser(wavelength, power float64, emitting bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.wavelength, o.power, o.emitting = wavelength, power, emitting
}

// Wavelength returns the effective emission wavelength
func (o *Optics) Wavelength() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.wavelength
}

// Signal returns the detected signal
func (o *Optics) Signal() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.emitting {
		return o.Background
	}
	hw := o.Width / 2
	d := o.wavelength - o.Center
	return o.Background + o.Peak*o.power*hw*hw/(d*d+hw*hw)
}
