package muesli

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "muesli"

	operationLabel = "operation"
	outcomeLabel   = "outcome"
)

// Metrics records serializer activity in Prometheus collectors. A nil
// *Metrics records nothing.
type Metrics struct {
	passes      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	skipped     prometheus.Counter
	descriptors prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "passes_total",
			Help:      "read and write passes by operation and outcome",
		}, []string{operationLabel, outcomeLabel}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "pass_duration_seconds",
			Help:      "duration of read and write passes",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{operationLabel}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "skipped_nodes_total",
			Help:      "malformed nodes skipped while reading with errors allowed",
		}),
		descriptors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "descriptors_built_total",
			Help:      "type descriptors built",
		}),
	}
	for _, c := range []prometheus.Collector{m.passes, m.duration, m.skipped, m.descriptors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) pass(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.passes.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) skip() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

func (m *Metrics) built() {
	if m == nil {
		return
	}
	m.descriptors.Inc()
}
