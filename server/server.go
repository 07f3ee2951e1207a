/*Package server exposes a running sweep over HTTP.

A Monitor observes the sweep loop and serves its state, the rows measured so
far, the latest preview plot, and prometheus metrics.  An operator may also
interrupt the sweep remotely with POST /interrupt {"bool": true}, which has
the same effect as ctrl-C.  POST /lock {"bool": true} refuses remote
interrupts until it is unlocked.
*/
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nasa-jpl/specsweep/generichttp"
	"github.com/nasa-jpl/specsweep/server/middleware/locker"
	"github.com/nasa-jpl/specsweep/spectrum"
	"github.com/nasa-jpl/specsweep/sweep"
)

// ErrNoRows is returned by the last-row getters before the first row
var ErrNoRows = errors.New("server: no rows measured yet")

// Status is the body of GET /status
type Status struct {
	State string `json:"state"`
	Rows  int    `json:"rows"`
}

// Spectrum is the body of GET /spectrum
type Spectrum struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

// Monitor is a sweep observer with an HTTP interface.  It is safe for
// concurrent use.
type Monitor struct {
	log     logrus.FieldLogger
	preview func() []byte
	lock    *locker.Locker

	mu      sync.RWMutex
	state   sweep.State
	columns []string
	rows    [][]float64
	cancel  context.CancelFunc

	reg       *prometheus.Registry
	rowsTotal prometheus.Counter
	lastWl    prometheus.Gauge
	lastInt   prometheus.Gauge
	stateG    prometheus.Gauge
}

// NewMonitor returns a monitor.  preview, if not nil, returns the latest
// PNG of the spectrum.
func NewMonitor(log logrus.FieldLogger, preview func() []byte) *Monitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Monitor{
		log:     log,
		preview: preview,
		lock:    locker.New(),
		reg:     prometheus.NewRegistry(),
		rowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "specsweep_rows_total",
			Help: "rows measured in this run",
		}),
		lastWl: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "specsweep_last_wavelength_nm",
			Help: "wavelength of the latest row",
		}),
		lastInt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "specsweep_last_intensity_volts",
			Help: "lock-in signal of the latest row",
		}),
		stateG: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "specsweep_state",
			Help: "sweep state, 0 Idle through 7 Terminated",
		}),
	}
	m.reg.MustRegister(m.rowsTotal, m.lastWl, m.lastInt, m.stateG)
	return m
}

// OnRow records a row
func (m *Monitor) OnRow(row []float64, t *spectrum.Table) {
	m.mu.Lock()
	if m.columns == nil {
		m.columns = t.Columns()
	}
	m.rows = append(m.rows, append([]float64(nil), row...))
	m.mu.Unlock()
	m.rowsTotal.Inc()
	m.lastWl.Set(row[0])
	m.lastInt.Set(row[1])
}

// OnState records a state transition
func (m *Monitor) OnState(s sweep.State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.stateG.Set(float64(s))
}

// Interrupts wraps next so that a remote interrupt also cancels the
// returned context
func (m *Monitor) Interrupts(next sweep.Interrupts) sweep.Interrupts {
	return func(ctx context.Context) (context.Context, context.CancelFunc) {
		c, stop := next(ctx)
		c, cancel := context.WithCancel(c)
		m.mu.Lock()
		m.cancel = cancel
		m.mu.Unlock()
		return c, func() {
			cancel()
			stop()
		}
	}
}

// Interrupt cancels the armed interrupt context, if any
func (m *Monitor) Interrupt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.log.Info("interrupt requested over HTTP")
		m.cancel()
	}
}

func (m *Monitor) last() ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.rows) == 0 {
		return nil, ErrNoRows
	}
	return m.rows[len(m.rows)-1], nil
}

func (m *Monitor) status(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	s := Status{State: m.state.String(), Rows: len(m.rows)}
	m.mu.RUnlock()
	writeJSON(w, s)
}

func (m *Monitor) spectrum(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	s := Spectrum{Columns: m.columns, Rows: m.rows}
	if s.Rows == nil {
		s.Rows = [][]float64{}
	}
	writeJSON(w, s)
	m.mu.RUnlock()
}

func (m *Monitor) plot(w http.ResponseWriter, r *http.Request) {
	var img []byte
	if m.preview != nil {
		img = m.preview()
	}
	if img == nil {
		http.Error(w, "no plot yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(img)
}

// RT satisfies generichttp.HTTPer
func (m *Monitor) RT() generichttp.RouteTable {
	column := func(i int) func() (float64, error) {
		return func() (float64, error) {
			row, err := m.last()
			if err != nil {
				return 0, err
			}
			return row[i], nil
		}
	}
	rows := func() (int, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return len(m.rows), nil
	}
	state := func() (string, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.state.String(), nil
	}
	interrupt := func(b bool) error {
		if b {
			m.Interrupt()
		}
		return nil
	}
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/status"}:          m.status,
		{Method: http.MethodGet, Path: "/state"}:           generichttp.GetString(state),
		{Method: http.MethodGet, Path: "/rows"}:            generichttp.GetInt(rows),
		{Method: http.MethodGet, Path: "/spectrum"}:        m.spectrum,
		{Method: http.MethodGet, Path: "/last/wavelength"}: generichttp.GetFloat(column(0)),
		{Method: http.MethodGet, Path: "/last/intensity"}:  generichttp.GetFloat(column(1)),
		{Method: http.MethodGet, Path: "/plot.png"}:        m.plot,
		{Method: http.MethodPost, Path: "/interrupt"}:      generichttp.SetBool(interrupt),
	}
	locker.Inject(rt, m.lock)
	return rt
}

// Handler returns the monitor's router, with request logging and /metrics
func (m *Monitor) Handler() http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Use(m.lock.Check)
	generichttp.Bind(root, m)
	root.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	return root
}

// ListenAndServe serves the monitor on addr until ctx is done
func (m *Monitor) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: m.Handler()}
	errc := make(chan error, 1)
	go func() {
		m.log.WithField("addr", addr).Info("monitor listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
