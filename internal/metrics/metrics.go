// Package metrics - метрики Prometheus для запусков загрузки и HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tendly/models"
)

const namespace = "tendly"

// Исход обработки одной записи
const (
	OutcomeInserted  = "inserted"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	RunsTotal      *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	RecordsTotal   *prometheus.CounterVec
	PagesFetched   *prometheus.CounterVec
	FetchRetries   *prometheus.CounterVec
	LastRunSuccess *prometheus.GaugeVec
	HTTPRequests   *prometheus.CounterVec
}

// New регистрирует метрики в собственном реестре (плюс go/process коллекторы).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_runs_total",
			Help:      "Scrape runs by source and final status",
		}, []string{"source", "status"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_run_duration_seconds",
			Help:      "Scrape run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"source"}),
		RecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_records_total",
			Help:      "Processed records by source and outcome",
		}, []string{"source", "outcome"}),
		PagesFetched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_pages_fetched_total",
			Help:      "Pages fetched from the source API",
		}, []string{"source"}),
		FetchRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_fetch_retries_total",
			Help:      "Page fetch retries after transient errors",
		}, []string{"source"}),
		LastRunSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scrape_last_run_success",
			Help:      "1 if the last run of the source succeeded, 0 otherwise",
		}, []string{"source"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status code class",
		}, []string{"route", "code"}),
	}
}

// ObserveRun записывает итог запуска.
func (m *Metrics) ObserveRun(source string, status models.RunStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(source, string(status)).Inc()
	m.RunDuration.WithLabelValues(source).Observe(d.Seconds())
	if status == models.RunStatusSuccess {
		m.LastRunSuccess.WithLabelValues(source).Set(1)
	} else {
		m.LastRunSuccess.WithLabelValues(source).Set(0)
	}
}

func (m *Metrics) ObserveRecord(source, outcome string) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ObservePage(source string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveRetry(source string) {
	if m == nil {
		return
	}
	m.FetchRetries.WithLabelValues(source).Inc()
}

// Middleware считает запросы API по шаблону маршрута chi.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status/100)+"xx").Inc()
	})
}

// Handler - обработчик /metrics для этого реестра.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry нужен тестам и для регистрации сторонних коллекторов.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
