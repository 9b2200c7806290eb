// Package telemetry exports engine traffic as Prometheus metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/justinsb/mxinvoke/pkg/ndarray"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements ndarray.Observer.
type Metrics struct {
	foreignCalls        *prometheus.CounterVec
	foreignCallDuration *prometheus.HistogramVec
	invocations         *prometheus.CounterVec
	liveHandles         prometheus.Gauge

	registry *prometheus.Registry
}

var _ ndarray.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors under namespace in a fresh registry,
// together with the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		foreignCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "foreign_calls_total",
				Help:      "Total number of engine calls, by call and status code",
			},
			[]string{"call", "status"},
		),
		foreignCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "foreign_call_duration_seconds",
				Help:      "Duration of engine calls in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"call"},
		),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of operator invocations, by operator and outcome",
			},
			[]string{"operator", "outcome"},
		),
		liveHandles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_handles",
				Help:      "Current number of tensor handles not yet released",
			},
		),
	}

	registry.MustRegister(
		m.foreignCalls,
		m.foreignCallDuration,
		m.invocations,
		m.liveHandles,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) ObserveForeignCall(call string, elapsed time.Duration, status int) {
	m.foreignCalls.WithLabelValues(call, strconv.Itoa(status)).Inc()
	m.foreignCallDuration.WithLabelValues(call).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveInvocation(operator string, outcome string) {
	m.invocations.WithLabelValues(operator, outcome).Inc()
}

func (m *Metrics) ObserveHandles(delta int) {
	m.liveHandles.Add(float64(delta))
}

// Registry returns the registry the metrics are registered in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
