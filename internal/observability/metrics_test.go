package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// promauto registers against the default registry, so metrics are created
// once and shared across tests in this package.
var testMetrics = NewMetrics("relay_test")

func TestMetrics_Counters(t *testing.T) {
	testMetrics.AttemptsRecorded.WithLabelValues("success").Inc()
	testMetrics.AttemptsRecorded.WithLabelValues("success").Inc()
	testMetrics.AttemptsRecorded.WithLabelValues("failed").Inc()

	if got := testutil.ToFloat64(testMetrics.AttemptsRecorded.WithLabelValues("success")); got != 2 {
		t.Errorf("success attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(testMetrics.AttemptsRecorded.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed attempts = %v, want 1", got)
	}

	testMetrics.RetriesScheduled.Inc()
	if got := testutil.ToFloat64(testMetrics.RetriesScheduled); got != 1 {
		t.Errorf("retries scheduled = %v, want 1", got)
	}
}

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware(testMetrics))
	r.Get("/webhooks/{id}/policy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/webhooks/wh_1/policy", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// the counter is labeled with the route pattern, not the concrete URL
	got := testutil.ToFloat64(testMetrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/webhooks/{id}/policy", "200"))
	if got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
}
