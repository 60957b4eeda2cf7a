package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for the ingestion pipeline.
type PipelineMetrics struct {
	ReadingsIngested *prometheus.CounterVec
	IngestFailures   *prometheus.CounterVec
	IngestDuration   *prometheus.HistogramVec
	AlertsRaised     *prometheus.CounterVec
	AlertsSuppressed *prometheus.CounterVec
	AlertPathErrors  *prometheus.CounterVec
	StoreDuration    *prometheus.HistogramVec
}

// NewPipelineMetrics creates and registers ingestion pipeline metrics.
func NewPipelineMetrics(namespace string) *PipelineMetrics {
	m := &PipelineMetrics{
		ReadingsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "readings_ingested_total",
				Help:      "Total number of readings accepted by the pipeline",
			},
			[]string{"source"}, // source: http, amqp, simulator
		),
		IngestFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "ingest_failures_total",
				Help:      "Total number of readings rejected by the pipeline",
			},
			[]string{"source", "reason"}, // reason: invalid_input, store_unavailable
		),
		IngestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "ingest_duration_seconds",
				Help:      "Duration of full ingest operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		AlertsRaised: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "alerts_raised_total",
				Help:      "Total number of alerts raised",
			},
			[]string{"kind", "status"}, // status: low, high
		),
		AlertsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "alerts_suppressed_total",
				Help:      "Total number of alerts suppressed by deduplication",
			},
			[]string{"kind"},
		),
		AlertPathErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "alert_path_errors_total",
				Help:      "Total number of errors on the alert side path",
			},
			[]string{"stage"}, // stage: lookup, insert, publish
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "store_duration_seconds",
				Help:      "Duration of store operations issued by the pipeline",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"}, // operation: insert_reading, upsert_snapshot, insert_alert
		),
	}

	MustRegister(
		m.ReadingsIngested,
		m.IngestFailures,
		m.IngestDuration,
		m.AlertsRaised,
		m.AlertsSuppressed,
		m.AlertPathErrors,
		m.StoreDuration,
	)

	return m
}
