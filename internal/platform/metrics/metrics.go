package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the overlay studio backend.
type Metrics struct {
	registry                *prometheus.Registry
	requestsTotal           prometheus.Counter
	errorsTotal             prometheus.Counter
	conversionsTotal        prometheus.Counter
	conversionFailuresTotal prometheus.Counter
	overlaysCreatedTotal    prometheus.Counter
	overlaysUpdatedTotal    prometheus.Counter
	overlaysDeletedTotal    prometheus.Counter
	activeStreams           prometheus.Gauge
}

// New creates and registers Prometheus metrics for the service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studio_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studio_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	conversionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studio_conversions_total",
		Help: "Total number of successful RTSP to HLS conversions",
	})
	conversionFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studio_conversion_failures_total",
		Help: "Total number of failed conversion requests",
	})
	overlaysCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studio_overlays_created_total",
		Help: "Total number of overlays created",
	})
	overlaysUpdatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studio_overlays_updated_total",
		Help: "Total number of overlay updates applied",
	})
	overlaysDeletedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studio_overlays_deleted_total",
		Help: "Total number of overlays deleted",
	})
	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "studio_active_streams",
		Help: "Number of conversions currently running",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		conversionsTotal,
		conversionFailuresTotal,
		overlaysCreatedTotal,
		overlaysUpdatedTotal,
		overlaysDeletedTotal,
		activeStreams,
	)

	return &Metrics{
		registry:                registry,
		requestsTotal:           requestsTotal,
		errorsTotal:             errorsTotal,
		conversionsTotal:        conversionsTotal,
		conversionFailuresTotal: conversionFailuresTotal,
		overlaysCreatedTotal:    overlaysCreatedTotal,
		overlaysUpdatedTotal:    overlaysUpdatedTotal,
		overlaysDeletedTotal:    overlaysDeletedTotal,
		activeStreams:           activeStreams,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncConversions increments the successful conversions counter.
func (m *Metrics) IncConversions() {
	m.conversionsTotal.Inc()
}

// IncConversionFailures increments the failed conversions counter.
func (m *Metrics) IncConversionFailures() {
	m.conversionFailuresTotal.Inc()
}

// IncOverlaysCreated increments the overlays created counter.
func (m *Metrics) IncOverlaysCreated() {
	m.overlaysCreatedTotal.Inc()
}

// IncOverlaysUpdated increments the overlays updated counter.
func (m *Metrics) IncOverlaysUpdated() {
	m.overlaysUpdatedTotal.Inc()
}

// IncOverlaysDeleted increments the overlays deleted counter.
func (m *Metrics) IncOverlaysDeleted() {
	m.overlaysDeletedTotal.Inc()
}

// SetActiveStreams sets the active streams gauge.
func (m *Metrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
