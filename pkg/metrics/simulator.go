package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SimulatorMetrics contains Prometheus metrics for the synthetic reading generator.
type SimulatorMetrics struct {
	ReadingsGenerated *prometheus.CounterVec
	SpikesGenerated   *prometheus.CounterVec
	TickFailures      *prometheus.CounterVec
	TickDuration      prometheus.Histogram
}

// NewSimulatorMetrics creates and registers simulator metrics.
func NewSimulatorMetrics(namespace string) *SimulatorMetrics {
	m := &SimulatorMetrics{
		ReadingsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "readings_generated_total",
				Help:      "Total number of synthetic readings generated",
			},
			[]string{"kind"},
		),
		SpikesGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "spikes_generated_total",
				Help:      "Total number of out-of-range spikes generated",
			},
			[]string{"kind"},
		),
		TickFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "tick_failures_total",
				Help:      "Total number of per-sensor failures during simulation ticks",
			},
			[]string{"reason"},
		),
		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "tick_duration_seconds",
				Help:      "Duration of full simulation ticks",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	MustRegister(
		m.ReadingsGenerated,
		m.SpikesGenerated,
		m.TickFailures,
		m.TickDuration,
	)

	return m
}
