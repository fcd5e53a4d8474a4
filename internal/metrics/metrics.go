package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for ProxyRequestsTotal
const (
	OutcomeSuccess        = "success"
	OutcomeUpstreamError  = "upstream_error"
	OutcomeTransportError = "transport_error"
	OutcomeNoKey          = "no_key"
)

// Metrics holds the Prometheus collectors for the proxy. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ProxyRequestsTotal *prometheus.CounterVec
	UpstreamDuration   prometheus.Histogram
	Keys               *prometheus.GaugeVec
	ErrorLogEntries    prometheus.Gauge
}

var defaultBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}

// NewMetrics creates and registers all collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ProxyRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "keypool",
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Proxied requests by outcome",
			},
			[]string{"outcome"},
		),
		UpstreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "keypool",
				Subsystem: "upstream",
				Name:      "duration_seconds",
				Help:      "Time spent waiting on the upstream, including failed exchanges",
				Buckets:   defaultBuckets,
			},
		),
		Keys: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "keypool",
				Name:      "keys",
				Help:      "Pooled keys by state",
			},
			[]string{"state"},
		),
		ErrorLogEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "keypool",
				Name:      "error_log_entries",
				Help:      "Failures currently retained in the error log",
			},
		),
	}
}

func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ProxyRequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUpstream(d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamDuration.Observe(d.Seconds())
}

func (m *Metrics) SetPoolSize(enabled, disabled int) {
	if m == nil {
		return
	}
	m.Keys.WithLabelValues("enabled").Set(float64(enabled))
	m.Keys.WithLabelValues("disabled").Set(float64(disabled))
}

func (m *Metrics) SetErrorLogSize(n int) {
	if m == nil {
		return
	}
	m.ErrorLogEntries.Set(float64(n))
}
