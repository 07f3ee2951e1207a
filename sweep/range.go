package sweep

import (
	"math"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/specsweep/util"
)

// ErrInvalidRange is returned for a range that cannot be swept
var ErrInvalidRange = errors.New("sweep: invalid range")

// Substeps is how many points an adaptive increment divides one step into
const Substeps = 5

// Range is the span of a sweep, from Init toward Last in increments of Step.
// In fine-tuning mode the values are raw fine-tuning steps, otherwise nm.
type Range struct {
	Init float64
	Last float64
	Step float64
}

// Min is the lower end of the range
func (r Range) Min() float64 {
	return math.Min(r.Init, r.Last)
}

// Max is the upper end of the range
func (r Range) Max() float64 {
	return math.Max(r.Init, r.Last)
}

// Validate returns an error if the range never ends.  A step pointing away
// from Last is valid; the sweep visits Init and leaves the range.
func (r Range) Validate() error {
	switch {
	case r.Step == 0 || math.IsNaN(r.Step):
		return errors.Wrap(ErrInvalidRange, "step must not be zero")
	case math.IsNaN(r.Init) || math.IsNaN(r.Last):
		return errors.Wrap(ErrInvalidRange, "endpoints must be numbers")
	}
	return nil
}

func (r Range) away() bool {
	return r.Last != r.Init && math.Signbit(r.Last-r.Init) != math.Signbit(r.Step)
}

func (r Range) tolerance() float64 {
	return 1e-9 * math.Abs(r.Step)
}

// Contains returns true if x is within the closed range, allowing for
// accumulated floating point error
func (r Range) Contains(x float64) bool {
	tol := r.tolerance()
	return x >= r.Min()-tol && x <= r.Max()+tol
}

// Clamp limits x to the closed range
func (r Range) Clamp(x float64) float64 {
	return util.Clamp(x, r.Min(), r.Max())
}

// Point returns the point k sub-steps from Init.  A plain increment is
// Substeps sub-steps; an adaptive one is a single sub-step.
func (r Range) Point(k int) float64 {
	return r.Init + float64(k)*r.Step/Substeps
}

// Count is the number of points a sweep without adaptive steps visits
func (r Range) Count() int {
	if r.away() {
		return 1
	}
	return int(math.Floor(math.Abs(r.Last-r.Init)/math.Abs(r.Step)+1e-9)) + 1
}

// DefaultFineSlope is the wavelength change per raw fine-tuning step, nm
const DefaultFineSlope = -0.5e-3

// FineTuning converts raw fine-tuning steps to wavelength.  Offset is the
// wavelength at raw step zero.
type FineTuning struct {
	Slope  float64
	Offset float64
}

// Physical returns the wavelength of a raw step
func (f FineTuning) Physical(raw float64) float64 {
	return raw*f.Slope + f.Offset
}

// Raw returns the raw step closest to a wavelength
func (f FineTuning) Raw(nm float64) float64 {
	return (nm - f.Offset) / f.Slope
}
