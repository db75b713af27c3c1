package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chess-vn/chessload/internal/scenario"
)

// Exporter mirrors engine samples into Prometheus collectors. It owns its
// registry so several runs in one process never collide.
type Exporter struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	failed     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	checks     *prometheus.CounterVec
	iterations prometheus.Counter
	vus        prometheus.Gauge
}

// NewExporter creates an exporter with a fresh registry.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Exporter{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chessload_http_reqs_total",
				Help: "Total HTTP requests made by virtual users",
			},
			[]string{"endpoint", "status"},
		),
		failed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chessload_http_req_failed_total",
				Help: "HTTP requests that errored or returned status >= 400",
			},
			[]string{"endpoint"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chessload_http_req_duration_seconds",
				Help:    "HTTP request duration (sending + waiting + receiving) in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"endpoint"},
		),
		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chessload_checks_total",
				Help: "Check evaluations by outcome",
			},
			[]string{"check", "result"},
		),
		iterations: factory.NewCounter(prometheus.CounterOpts{
			Name: "chessload_iterations_total",
			Help: "Completed VU iterations",
		}),
		vus: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chessload_vus",
			Help: "Currently active virtual users",
		}),
	}
}

// Registry returns the exporter's registry.
func (x *Exporter) Registry() *prometheus.Registry {
	return x.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (x *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(x.registry, promhttp.HandlerOpts{})
}

// ObserveRequest implements Sink.
func (x *Exporter) ObserveRequest(s scenario.RequestSample) {
	x.requests.WithLabelValues(s.Endpoint, strconv.Itoa(s.Status)).Inc()
	if s.Failed {
		x.failed.WithLabelValues(s.Endpoint).Inc()
	}
	x.duration.WithLabelValues(s.Endpoint).Observe(s.Duration.Seconds())
}

// ObserveCheck implements Sink.
func (x *Exporter) ObserveCheck(name string, passed bool) {
	result := "pass"
	if !passed {
		result = "fail"
	}
	x.checks.WithLabelValues(name, result).Inc()
}

// ObserveIteration implements Sink.
func (x *Exporter) ObserveIteration(time.Duration) {
	x.iterations.Inc()
}

// ObserveVUs implements Sink.
func (x *Exporter) ObserveVUs(n int) {
	x.vus.Set(float64(n))
}
