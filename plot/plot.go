/*Package plot draws spectra with gonum/plot.

Renderer draws a finished table; Live is a sweep observer that keeps a
preview image current while the sweep runs, redrawing at most at a fixed rate.
*/
package plot

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/nasa-jpl/specsweep/spectrum"
)

// Renderer draws intensity against wavelength.
//
// The x axis spans [XMin, XMax], the physical range of the sweep.  The y axis
// runs from zero to the largest intensity in the table.
type Renderer struct {
	XMin, XMax float64

	// Width and Height of the image; 8x7 inches if zero
	Width, Height vg.Length
}

// Plot builds the plot of t
func (r Renderer) Plot(t *spectrum.Table) (*gplot.Plot, error) {
	p := gplot.New()
	p.X.Label.Text = "Wavelength (nm)"
	p.Y.Label.Text = "Intensity (V)"
	p.Y.Tick.Marker = sciTicks{}
	p.Add(plotter.NewGrid())
	defer r.setX(p)

	p.Y.Min, p.Y.Max = 0, 1
	if t.Len() == 0 {
		return p, nil
	}
	x, y := t.Column(0), t.Column(1)
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i].X, pts[i].Y = x[i], y[i]
	}
	line, scatter, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, errors.Wrap(err, "building plot")
	}
	blue := color.RGBA{B: 255, A: 255}
	line.Color = blue
	scatter.Color = blue
	p.Add(line, scatter)
	if m := t.Max(1); m > 0 {
		p.Y.Max = m
	}
	return p, nil
}

// setX fixes the x axis to the sweep range, widened when it is a point
func (r Renderer) setX(p *gplot.Plot) {
	lo, hi := r.XMin, r.XMax
	if hi <= lo {
		lo, hi = lo-0.5, lo+0.5
	}
	p.X.Min, p.X.Max = lo, hi
}

func (r Renderer) size() (vg.Length, vg.Length) {
	w, h := r.Width, r.Height
	if w == 0 || h == 0 {
		w, h = 8*vg.Inch, 7*vg.Inch
	}
	return w, h
}

// RenderTo writes t to w as a PNG
func (r Renderer) RenderTo(t *spectrum.Table, w io.Writer) error {
	p, err := r.Plot(t)
	if err != nil {
		return err
	}
	wd, ht := r.size()
	wt, err := p.WriterTo(wd, ht, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// Render writes t to path; the format follows the file extension
func (r Renderer) Render(t *spectrum.Table, path string) error {
	p, err := r.Plot(t)
	if err != nil {
		return err
	}
	wd, ht := r.size()
	return p.Save(wd, ht, path)
}

// sciTicks labels the default ticks in %1.1e
type sciTicks struct{}

func (sciTicks) Ticks(min, max float64) []gplot.Tick {
	ts := gplot.DefaultTicks{}.Ticks(min, max)
	for i := range ts {
		if ts[i].Label != "" {
			ts[i].Label = fmt.Sprintf("%1.1e", ts[i].Value)
		}
	}
	return ts
}

// DefaultRefresh is the fastest the live preview is redrawn
const DefaultRefresh = 2 * time.Second

// Live keeps a PNG preview of the spectrum as it is measured.  It is safe
// to read the preview from another goroutine.
type Live struct {
	Renderer Renderer

	// Path, if not empty, receives a copy of every preview
	Path string

	log     logrus.FieldLogger
	limiter *rate.Limiter

	mu     sync.RWMutex
	latest []byte
	table  *spectrum.Table
}

// NewLive returns a preview redrawn at most once per every
func NewLive(r Renderer, every time.Duration, log logrus.FieldLogger) *Live {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Live{Renderer: r, log: log, limiter: rate.NewLimiter(rate.Every(every), 1)}
}

// OnStart fixes the x axis to the physical span of the sweep
func (l *Live) OnStart(lo, hi float64) {
	l.Renderer.XMin, l.Renderer.XMax = lo, hi
}

// Render draws the finished table to path with the live x axis
func (l *Live) Render(t *spectrum.Table, path string) error {
	return l.Renderer.Render(t, path)
}

// OnRow redraws the preview if the rate limit allows
func (l *Live) OnRow(_ []float64, t *spectrum.Table) {
	l.table = t
	if !l.limiter.Allow() {
		return
	}
	l.draw()
}

// Close draws the final preview regardless of the rate limit
func (l *Live) Close() error {
	if l.table == nil {
		return nil
	}
	return l.draw()
}

// Latest returns the most recent preview, or nil
func (l *Live) Latest() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest
}

func (l *Live) draw() error {
	var buf bytes.Buffer
	if err := l.Renderer.RenderTo(l.table, &buf); err != nil {
		l.log.WithError(err).Warn("live plot")
		return err
	}
	l.mu.Lock()
	l.latest = buf.Bytes()
	l.mu.Unlock()
	if l.Path != "" {
		if err := os.WriteFile(l.Path, buf.Bytes(), 0o644); err != nil {
			l.log.WithError(err).Warn("live plot")
			return err
		}
	}
	return nil
}
