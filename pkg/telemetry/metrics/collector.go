package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector tracks proxy request metrics.
//
// Metrics:
//   - verge_requests_total: request count by status code and kind
//     (health, acme, redirect, http, tunnel)
//   - verge_request_duration_seconds: request duration histogram by kind
//   - verge_tunnels_active: currently open WebSocket tunnels
//   - verge_backend_errors_total: backend failures by phase
//     (connect, send, read)
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tunnelsActive   prometheus.Gauge
	backendErrors   *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry, including the
// standard Go runtime and process collectors.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verge",
				Name:      "requests_total",
				Help:      "Total number of requests handled by the proxy",
			},
			[]string{"status", "kind"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "verge",
				Name:      "request_duration_seconds",
				Help:      "Duration of proxied requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		tunnelsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "verge",
				Name:      "tunnels_active",
				Help:      "Number of currently open WebSocket tunnels",
			},
		),
		backendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verge",
				Name:      "backend_errors_total",
				Help:      "Total number of backend failures by phase",
			},
			[]string{"phase"},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.tunnelsActive,
		c.backendErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// ObserveRequest records a completed request.
func (c *Collector) ObserveRequest(status int, kind string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(strconv.Itoa(status), kind).Inc()
	c.requestDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// TunnelOpened increments the active tunnel gauge.
func (c *Collector) TunnelOpened() {
	c.tunnelsActive.Inc()
}

// TunnelClosed decrements the active tunnel gauge.
func (c *Collector) TunnelClosed() {
	c.tunnelsActive.Dec()
}

// BackendError counts a backend failure in the given phase.
func (c *Collector) BackendError(phase string) {
	c.backendErrors.WithLabelValues(phase).Inc()
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
