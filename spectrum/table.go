// Package spectrum holds the measured spectrum and writes it to disk
package spectrum

import (
	"math"

	"github.com/pkg/errors"
)

// Column names
const (
	Wavelength      = "wavelength"
	Intensity       = "intensity"
	MeterWavelength = "meter_wavelength"
	FineTuning      = "finetuning"
)

// ErrRowWidth is returned when appending a row of the wrong width
var ErrRowWidth = errors.New("spectrum: row width does not match table")

// Table is an append-only table of float rows with a fixed width
type Table struct {
	cols []string
	rows [][]float64
}

// NewTable returns an empty table with the given columns
func NewTable(columns ...string) *Table {
	return &Table{cols: append([]string(nil), columns...)}
}

// Columns returns the column names
func (t *Table) Columns() []string {
	return append([]string(nil), t.cols...)
}

// Width is the number of columns
func (t *Table) Width() int {
	return len(t.cols)
}

// Index returns the position of a column, or -1
func (t *Table) Index(col string) int {
	for i, c := range t.cols {
		if c == col {
			return i
		}
	}
	return -1
}

// Append adds one row to the end of the table
func (t *Table) Append(row []float64) error {
	if len(row) != len(t.cols) {
		return errors.Wrapf(ErrRowWidth, "got %d values for %d columns", len(row), len(t.cols))
	}
	t.rows = append(t.rows, append([]float64(nil), row...))
	return nil
}

// Len is the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Row returns a copy of row i
func (t *Table) Row(i int) []float64 {
	return append([]float64(nil), t.rows[i]...)
}

// Column returns a copy of column j
func (t *Table) Column(j int) []float64 {
	out := make([]float64, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[j]
	}
	return out
}

// Max returns the largest value in column j, or 0 for an empty table
func (t *Table) Max(j int) float64 {
	if len(t.rows) == 0 {
		return 0
	}
	m := math.Inf(-1)
	for _, r := range t.rows {
		m = math.Max(m, r[j])
	}
	return m
}

