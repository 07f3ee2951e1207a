// Package nf provides drivers for NF Corporation lock-in amplifiers
package nf

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/specsweep/instrument"
)

// Model is a supported lock-in amplifier
type Model string

const (
	// LI5645 is the NF LI5645 multi-phase lock-in amplifier
	LI5645 Model = "LI5645"

	// LI5660 is the NF LI5660 DSP lock-in amplifier
	LI5660 Model = "LI5660"
)

// Models lists every supported model
var Models = []Model{LI5645, LI5660}

// ParseModel returns the model named s, ignoring case
func ParseModel(s string) (Model, error) {
	for _, m := range Models {
		if strings.EqualFold(string(m), strings.TrimSpace(s)) {
			return m, nil
		}
	}
	return "", errors.Errorf("nf: unknown lock-in %q, must be one of %v", s, Models)
}

// OutputParameters is the number of data outputs, each with a :CALCn:FORM
const OutputParameters = 4

// LockIn is an NF lock-in amplifier.  Output 1 is set to the linear
// magnitude and data transfer to ASCII, so the first element of a dataset
// is the signal amplitude.
type LockIn struct {
	inst *instrument.Instrument
}

// NewLockIn configures the lock-in's outputs
func NewLockIn(in *instrument.Instrument) (*LockIn, error) {
	if err := in.Write(":CALC1:FORM MLIN;FORM ASC"); err != nil {
		return nil, err
	}
	return &LockIn{inst: in}, nil
}

// FetchDataset returns the latest output data.  Index 0 is the live reading.
func (l *LockIn) FetchDataset() ([]float64, error) {
	return l.inst.ReadValues(":FETC?")
}

// ReadFreq returns the reference frequency, Hz
func (l *LockIn) ReadFreq() (float64, error) {
	return l.inst.ReadValue(":FREQ?")
}

// ReadRange returns the AC voltage sensitivity, V
func (l *LockIn) ReadRange() (float64, error) {
	return l.inst.ReadValue(":VOLT:AC:RANG?")
}

// ReadTimeconst returns the time constant of the output filter, s
func (l *LockIn) ReadTimeconst() (float64, error) {
	return l.inst.ReadValue(":FILT:TCON?")
}

// ShowOutputParameters returns the format of each data output
func (l *LockIn) ShowOutputParameters() ([]string, error) {
	out := make([]string, OutputParameters)
	for i := range out {
		resp, err := l.inst.Query(fmt.Sprintf(":CALC%d:FORM?", i+1))
		if err != nil {
			return nil, err
		}
		out[i] = strings.TrimSpace(resp)
	}
	return out, nil
}
