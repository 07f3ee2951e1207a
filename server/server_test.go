package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/nasa-jpl/specsweep/spectrum"
	"github.com/nasa-jpl/specsweep/sweep"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func monitor() *Monitor {
	log, _ := test.NewNullLogger()
	return NewMonitor(log, func() []byte { return []byte("\x89PNG") })
}

func TestMonitorRows(t *testing.T) {
	m := monitor()
	h := m.Handler()
	if w := get(t, h, "/last/wavelength"); w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 before any row, got %d", w.Code)
	}
	tbl := spectrum.NewTable(spectrum.Wavelength, spectrum.Intensity)
	for _, r := range [][]float64{{1550, 1e-4}, {1550.5, 2e-4}} {
		tbl.Append(r)
		m.OnRow(r, tbl)
	}
	m.OnState(sweep.Sweeping)

	var st Status
	if err := json.NewDecoder(get(t, h, "/status").Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.State != "Sweeping" || st.Rows != 2 {
		t.Errorf("unexpected status %+v", st)
	}
	if got := strings.TrimSpace(get(t, h, "/last/wavelength").Body.String()); got != `{"f64":1550.5}` {
		t.Errorf("unexpected last wavelength %s", got)
	}
	var sp Spectrum
	if err := json.NewDecoder(get(t, h, "/spectrum").Body).Decode(&sp); err != nil {
		t.Fatal(err)
	}
	if len(sp.Rows) != 2 || sp.Columns[1] != spectrum.Intensity {
		t.Errorf("unexpected spectrum %+v", sp)
	}
}

func TestMonitorMetrics(t *testing.T) {
	m := monitor()
	tbl := spectrum.NewTable(spectrum.Wavelength, spectrum.Intensity)
	tbl.Append([]float64{1551, 3e-4})
	m.OnRow(tbl.Row(0), tbl)
	body := get(t, m.Handler(), "/metrics").Body.String()
	for _, want := range []string{"specsweep_rows_total 1", "specsweep_last_wavelength_nm 1551"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestMonitorPlot(t *testing.T) {
	w := get(t, monitor().Handler(), "/plot.png")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("unexpected reply %d %s", w.Code, w.Header().Get("Content-Type"))
	}
}

func TestRemoteInterrupt(t *testing.T) {
	m := monitor()
	arm := m.Interrupts(func(ctx context.Context) (context.Context, context.CancelFunc) {
		return context.WithCancel(ctx)
	})
	ctx, stop := arm(context.Background())
	defer stop()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/interrupt", strings.NewReader(`{"bool":true}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if ctx.Err() == nil {
		t.Error("remote interrupt did not cancel the sweep context")
	}
}

func TestLockedMonitorRefusesInterrupt(t *testing.T) {
	m := monitor()
	h := m.Handler()
	ctx, stop := m.Interrupts(func(ctx context.Context) (context.Context, context.CancelFunc) {
		return context.WithCancel(ctx)
	})(context.Background())
	defer stop()
	post := func(path, body string) int {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		return w.Code
	}
	if code := post("/lock", `{"bool":true}`); code != http.StatusOK {
		t.Fatalf("locking returned %d", code)
	}
	if code := post("/interrupt", `{"bool":true}`); code != http.StatusLocked {
		t.Errorf("expected 423 got %d", code)
	}
	if ctx.Err() != nil {
		t.Error("locked monitor interrupted the sweep")
	}
	if got := strings.TrimSpace(get(t, h, "/lock").Body.String()); got != `{"bool":true}` {
		t.Errorf("unexpected lock state %s", got)
	}
}
