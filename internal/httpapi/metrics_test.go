package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 200: "200", 404: "404", 422: "422", 503: "503"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Fatalf("itoa(%d) = %q", n, got)
		}
	}
}

func TestRoutePatternFallsBackToPath(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/some/raw/path", nil)
	if got := routePatternOrPath(r); got != "/some/raw/path" {
		t.Fatalf("fallback path: %q", got)
	}
}

func TestMetricsMiddlewareRecordsStatus(t *testing.T) {
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("middleware must pass the status through, got %d", rec.Code)
	}
}

func TestMetricsMiddlewareForwardsFlush(t *testing.T) {
	flushed := false
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
			flushed = true
		}
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/generate", nil))
	if !flushed {
		t.Fatal("streaming handlers must see a flusher through the middleware")
	}
	if !rec.Flushed {
		t.Fatal("flush must reach the underlying writer")
	}
}
