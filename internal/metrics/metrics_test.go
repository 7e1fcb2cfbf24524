package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Second call must be a no-op, not a duplicate-collector panic.
	if err := Register(reg); err != nil {
		t.Fatalf("second Register: %v", err)
	}
}

func TestCountersDoNotPanic(t *testing.T) {
	IncStart("demo")
	ObserveFinal("demo", "completed")
	IncStop("demo")
	IncSchedulerTrigger("demo")
	IncSchedulerError("demo")
}

func TestHandlerServesScrape(t *testing.T) {
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("scrape status: %d", w.Code)
	}
}
