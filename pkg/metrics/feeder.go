package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FeederMetrics contains Prometheus metrics for the remote reading feeder.
type FeederMetrics struct {
	ReadingsPublished *prometheus.CounterVec
	PublishFailures   *prometheus.CounterVec
	PublishDuration   *prometheus.HistogramVec
	ActiveFeeds       prometheus.Gauge
}

// NewFeederMetrics creates and registers feeder metrics.
func NewFeederMetrics(namespace string) *FeederMetrics {
	m := &FeederMetrics{
		ReadingsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feeder",
				Name:      "readings_published_total",
				Help:      "Total number of readings published to the queue",
			},
			[]string{"kind"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feeder",
				Name:      "publish_failures_total",
				Help:      "Total number of failed reading publishes",
			},
			[]string{"kind", "reason"},
		),
		PublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "feeder",
				Name:      "publish_duration_seconds",
				Help:      "Duration of reading publish operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		ActiveFeeds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "feeder",
				Name:      "active_feeds",
				Help:      "Number of currently active sensor feeds",
			},
		),
	}

	MustRegister(
		m.ReadingsPublished,
		m.PublishFailures,
		m.PublishDuration,
		m.ActiveFeeds,
	)

	return m
}
