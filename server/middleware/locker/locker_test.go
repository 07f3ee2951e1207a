package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/specsweep/generichttp"
)

type table generichttp.RouteTable

func (t table) RT() generichttp.RouteTable { return generichttp.RouteTable(t) }

func router(l *Locker) http.Handler {
	rt := generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/interrupt"}: func(w http.ResponseWriter, r *http.Request) {},
		{Method: http.MethodGet, Path: "/state"}:      func(w http.ResponseWriter, r *http.Request) {},
	}
	Inject(rt, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	generichttp.Bind(r, table(rt))
	return r
}

func do(h http.Handler, method, path, body string) int {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w.Code
}

func TestLockRefusesChanges(t *testing.T) {
	l := New()
	h := router(l)
	if code := do(h, http.MethodPost, "/lock", `{"bool":true}`); code != http.StatusOK {
		t.Fatalf("locking returned %d", code)
	}
	if !l.Locked() {
		t.Fatal("POST /lock did not lock")
	}
	if code := do(h, http.MethodPost, "/interrupt", `{"bool":true}`); code != http.StatusLocked {
		t.Errorf("expected 423 while locked, got %d", code)
	}
	if code := do(h, http.MethodGet, "/state", ""); code != http.StatusOK {
		t.Errorf("reads should pass while locked, got %d", code)
	}
	if code := do(h, http.MethodPost, "/lock", `{"bool":false}`); code != http.StatusOK {
		t.Errorf("unlocking returned %d", code)
	}
	if code := do(h, http.MethodPost, "/interrupt", `{"bool":true}`); code != http.StatusOK {
		t.Errorf("expected 200 after unlocking, got %d", code)
	}
}
