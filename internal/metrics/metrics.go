package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch is one completed gateway operation.
type Dispatch struct {
	Operation    string // execute, evaluate, test_connection
	ProviderType string
	Model        string
	Success      bool
	Duration     time.Duration
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Metrics exposes gateway metrics.
type Metrics interface {
	ObserveDispatch(d Dispatch)
	ObserveHTTP(method, route string, status int, duration time.Duration)
	HTTPHandler() http.Handler
}

// NoopMetrics discards observations.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (m *NoopMetrics) ObserveDispatch(Dispatch) {}

func (m *NoopMetrics) ObserveHTTP(string, string, int, time.Duration) {}

func (m *NoopMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// LLMBuckets covers vendor latencies from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// PrometheusMetrics records into its own registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	dispatchTotal   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	costTotal       *prometheus.CounterVec
}

// NewPrometheusMetrics creates the gateway collectors, plus the Go runtime
// and process collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lens_http_requests_total",
				Help: "HTTP requests by route and status class",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lens_http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: LLMBuckets,
			},
			[]string{"method", "route"},
		),
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lens_provider_requests_total",
				Help: "Dispatched provider operations",
			},
			[]string{"operation", "provider_type", "status"},
		),
		dispatchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lens_provider_latency_seconds",
				Help:    "Provider operation latency",
				Buckets: LLMBuckets,
			},
			[]string{"operation", "provider_type"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lens_provider_tokens_total",
				Help: "Tokens by direction (input/output)",
			},
			[]string{"provider_type", "model", "direction"},
		),
		costTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lens_provider_cost_usd_total",
				Help: "Estimated provider cost in USD",
			},
			[]string{"provider_type", "model"},
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.dispatchTotal,
		m.dispatchLatency,
		m.tokensTotal,
		m.costTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry backing the collectors
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) ObserveDispatch(d Dispatch) {
	status := "success"
	if !d.Success {
		status = "failure"
	}

	m.dispatchTotal.WithLabelValues(d.Operation, d.ProviderType, status).Inc()
	m.dispatchLatency.WithLabelValues(d.Operation, d.ProviderType).Observe(d.Duration.Seconds())

	if !d.Success {
		return
	}
	if d.InputTokens > 0 {
		m.tokensTotal.WithLabelValues(d.ProviderType, d.Model, "input").Add(float64(d.InputTokens))
	}
	if d.OutputTokens > 0 {
		m.tokensTotal.WithLabelValues(d.ProviderType, d.Model, "output").Add(float64(d.OutputTokens))
	}
	if d.CostUSD > 0 {
		m.costTotal.WithLabelValues(d.ProviderType, d.Model).Add(d.CostUSD)
	}
}

func (m *PrometheusMetrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status/100)+"xx").Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CacheStats is a point-in-time view of a lookup cache.
type CacheStats struct {
	Size   int
	Hits   uint64
	Misses uint64
}

// RegisterCache exports a cache's size and hit counts on reg. stats is read
// at scrape time.
func RegisterCache(reg prometheus.Registerer, name string, stats func() CacheStats) {
	labels := prometheus.Labels{"cache": name}
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "lens_cache_entries",
			Help:        "Entries held by a lookup cache",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Size) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "lens_cache_hits_total",
			Help:        "Lookups served from a cache",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "lens_cache_misses_total",
			Help:        "Lookups that fell through a cache",
			ConstLabels: labels,
		}, func() float64 { return float64(stats().Misses) }),
	)
}
