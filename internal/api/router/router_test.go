package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/careslot/careslot-platform/pkg/logging"
)

func TestHealthEndpoint(t *testing.T) {
	r := New(&Config{Logger: logging.Default()})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Body.String(); got != `{"status":"ok"}` {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# HELP noop\n"))
	})
	r := New(&Config{MetricsHandler: metrics})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	r := New(&Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	r := New(&Config{CORSAllowedOrigins: []string{"https://app.careslot.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://app.careslot.example")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.careslot.example" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
