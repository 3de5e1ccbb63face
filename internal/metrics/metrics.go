// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a private Prometheus registry so several instances can live
// side by side in one process (tests, multiple viewer sessions).
type Registry struct {
	registry *prometheus.Registry
	Cache    *CacheMetrics
	HTTP     *HTTPMetrics
}

// NewRegistry creates and registers all metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		Cache:    NewCacheMetrics(),
		HTTP:     NewHTTPMetrics(),
	}
	r.Cache.MustRegister(reg)
	r.HTTP.MustRegister(reg)
	return r
}

// Handler returns the Prometheus metrics handler
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// CacheMetrics tracks the image loading cache.
type CacheMetrics struct {
	Entries      prometheus.Gauge
	Pending      prometheus.Gauge
	Requests     *prometheus.CounterVec
	Loads        *prometheus.CounterVec
	Evictions    prometheus.Counter
	Purges       prometheus.Counter
	LoadDuration prometheus.Histogram
}

// NewCacheMetrics creates unregistered cache metrics.
func NewCacheMetrics() *CacheMetrics {
	return &CacheMetrics{
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "viewercore_image360_cache_entries",
			Help: "Entities currently tracked by the loading cache",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "viewercore_image360_cache_pending",
			Help: "Entity loads currently in flight",
		}),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viewercore_image360_cache_requests_total",
				Help: "Preload requests by outcome (hit, join, miss)",
			},
			[]string{"result"},
		),
		Loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viewercore_image360_loads_total",
				Help: "Completed entity loads by status",
			},
			[]string{"status"},
		),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viewercore_image360_cache_evictions_total",
			Help: "Loaded entities evicted to honour capacity",
		}),
		Purges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "viewercore_image360_cache_purges_total",
			Help: "Entities purged from the cache",
		}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "viewercore_image360_load_duration_seconds",
			Help:    "Time to fetch and decode an entity's faces",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// MustRegister registers the cache metrics with reg.
func (m *CacheMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.Entries, m.Pending, m.Requests, m.Loads, m.Evictions, m.Purges, m.LoadDuration)
}

// HTTPMetrics tracks API requests.
type HTTPMetrics struct {
	RequestCounter   *prometheus.CounterVec
	LatencyHistogram *prometheus.HistogramVec
}

// NewHTTPMetrics creates unregistered HTTP metrics.
func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viewercore_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		LatencyHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "viewercore_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// MustRegister registers the HTTP metrics with reg.
func (m *HTTPMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.RequestCounter, m.LatencyHistogram)
}

// Observe records one request.
func (m *HTTPMetrics) Observe(method, route string, status int, seconds float64) {
	m.RequestCounter.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.LatencyHistogram.WithLabelValues(method, route).Observe(seconds)
}
