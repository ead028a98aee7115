package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"tendly/internal/metrics"
	"tendly/models"
)

func TestObserveRun(t *testing.T) {
	m := metrics.New()

	m.ObserveRun("uk", models.RunStatusSuccess, 3*time.Second)
	m.ObserveRun("uk", models.RunStatusError, time.Second)
	m.ObserveRecord("uk", metrics.OutcomeInserted)
	m.ObserveRecord("uk", metrics.OutcomeInserted)
	m.ObserveRecord("uk", metrics.OutcomeError)
	m.ObservePage("uk")
	m.ObserveRetry("uk")

	require.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("uk", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("uk", "error")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("uk", metrics.OutcomeInserted)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("uk", metrics.OutcomeError)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PagesFetched.WithLabelValues("uk")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.FetchRetries.WithLabelValues("uk")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.LastRunSuccess.WithLabelValues("uk")))
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.ObserveRun("uk", models.RunStatusSuccess, time.Second)
		m.ObserveRecord("uk", metrics.OutcomeDuplicate)
		m.ObservePage("uk")
		m.ObserveRetry("uk")
	})
}

func TestHandlerAndMiddleware(t *testing.T) {
	m := metrics.New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/tenders/{tenderId}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tenders/42", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/tenders/{tenderId}", "4xx")))

	m.ObserveRun("eu", models.RunStatusSuccess, time.Second)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `tendly_scrape_runs_total{source="eu",status="success"} 1`)
	require.Contains(t, string(body), "go_goroutines")
}
