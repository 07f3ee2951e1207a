package generichttp

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
)

func TestGetFloat(t *testing.T) {
	w := httptest.NewRecorder()
	GetFloat(func() (float64, error) { return 1550.5, nil })(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := strings.TrimSpace(w.Body.String()); got != `{"f64":1550.5}` {
		t.Errorf("expected {\"f64\":1550.5} got %s", got)
	}
}

func TestGetIntError(t *testing.T) {
	w := httptest.NewRecorder()
	GetInt(func() (int, error) { return 0, errors.New("bus down") })(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 got %d", w.Code)
	}
}

func TestSetBool(t *testing.T) {
	var got bool
	h := SetBool(func(b bool) error {
		got = b
		return nil
	})
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bool":true}`)))
	if w.Code != http.StatusOK || !got {
		t.Errorf("expected 200 and true, got %d and %v", w.Code, got)
	}
	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`nope`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 got %d", w.Code)
	}
}

type table RouteTable

func (t table) RT() RouteTable { return RouteTable(t) }

func TestBind(t *testing.T) {
	r := chi.NewRouter()
	Bind(r, table{
		{Method: http.MethodGet, Path: "/name"}: GetString(func() (string, error) { return "TSL-710", nil }),
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/name", nil))
	if got := strings.TrimSpace(w.Body.String()); got != `{"str":"TSL-710"}` {
		t.Errorf("unexpected body %s", got)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/route-list", nil))
	if got := strings.TrimSpace(w.Body.String()); got != `["GET /name"]` {
		t.Errorf("unexpected route list %s", got)
	}
}
