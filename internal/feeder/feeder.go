// Package feeder publishes synthetic sensor readings to the readings queue.
// It is the remote counterpart of the in-process simulator: the same random
// walk, but the readings travel over RabbitMQ and the baseline is kept
// locally instead of in the store.
package feeder

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"facilio.dev/envmon/internal/pipeline"
	"facilio.dev/envmon/internal/sensor"
	"facilio.dev/envmon/internal/simulator"
	"facilio.dev/envmon/pkg/metrics"
	"facilio.dev/envmon/pkg/mq"
)

// Feeder walks a value per sensor and pushes each reading as a JSON
// submission. Not safe for concurrent use; the server runs one goroutine
// per feeder.
type Feeder struct {
	ID       string
	logger   *slog.Logger
	queue    mq.ClientInterface
	registry *sensor.Registry
	last     map[string]float64
	metrics  *metrics.FeederMetrics // Optional metrics
}

// NewFeeder creates a feeder over the given queue client.
func NewFeeder(queue mq.ClientInterface, registry *sensor.Registry, logger *slog.Logger) *Feeder {
	id := uuid.NewString()
	return &Feeder{
		ID: id,
		logger: logger.With(
			slog.String("component", "feeder"),
			slog.String("feeder_id", id),
		),
		queue:    queue,
		registry: registry,
		last:     make(map[string]float64, registry.Len()),
	}
}

// SetMetrics sets the metrics collector for this feeder.
// This should be called before the feeder starts publishing.
func (f *Feeder) SetMetrics(m *metrics.FeederMetrics) {
	f.metrics = m
}

// PublishRound generates and publishes one reading for every sensor with
// thresholds. Per-sensor failures are logged and skipped so one bad push
// does not starve the rest of the fleet.
func (f *Feeder) PublishRound(ctx context.Context) error {
	var firstErr error

	for _, s := range f.registry.List() {
		if s.Thresholds == nil {
			continue
		}

		if err := f.publishReading(ctx, s); err != nil {
			f.logger.Error("failed to publish reading",
				"sensor", s.Name,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
	}

	return firstErr
}

// publishReading walks the sensor's value forward and pushes it.
func (f *Feeder) publishReading(ctx context.Context, s *sensor.Sensor) error {
	kind := string(s.Kind)

	var timer *prometheus.Timer
	if f.metrics != nil {
		timer = prometheus.NewTimer(f.metrics.PublishDuration.WithLabelValues(kind))
		defer timer.ObserveDuration()
	}

	var baseline *float64
	if v, ok := f.last[s.Name]; ok {
		baseline = &v
	}
	value, spiked := simulator.Next(s, f.registry.Params(s.Kind), baseline)
	f.last[s.Name] = value

	body, err := json.Marshal(pipeline.Submission{
		SensorName: s.Name,
		Value:      value,
		Unit:       s.Unit,
	})
	if err != nil {
		if f.metrics != nil {
			f.metrics.PublishFailures.WithLabelValues(kind, "marshal_error").Inc()
		}
		return err
	}

	if err := f.queue.Push(ctx, body); err != nil {
		if f.metrics != nil {
			f.metrics.PublishFailures.WithLabelValues(kind, "push_error").Inc()
		}
		return err
	}

	if f.metrics != nil {
		f.metrics.ReadingsPublished.WithLabelValues(kind).Inc()
	}

	f.logger.Debug("reading published",
		"sensor", s.Name,
		"value", value,
		"spiked", spiked,
	)

	return nil
}
