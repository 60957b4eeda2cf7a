package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BusMetrics contains Prometheus metrics for the event fan-out bus.
type BusMetrics struct {
	EventsPublished   *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
	SubscribersActive prometheus.Gauge
	SubscribersTotal  prometheus.Counter
	ReplayDuration    prometheus.Histogram
}

// NewBusMetrics creates and registers event bus metrics.
func NewBusMetrics(namespace string) *BusMetrics {
	m := &BusMetrics{
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "events_published_total",
				Help:      "Total number of events published to the bus",
			},
			[]string{"kind"},
		),
		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "events_dropped_total",
				Help:      "Total number of events dropped because a subscriber queue was full",
			},
			[]string{"kind"},
		),
		SubscribersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "subscribers_active",
				Help:      "Number of currently connected subscribers",
			},
		),
		SubscribersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "subscribers_total",
				Help:      "Total number of subscriber connections since start",
			},
		),
		ReplayDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "replay_duration_seconds",
				Help:      "Duration of connect-time state replay",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	MustRegister(
		m.EventsPublished,
		m.EventsDropped,
		m.SubscribersActive,
		m.SubscribersTotal,
		m.ReplayDuration,
	)

	return m
}
