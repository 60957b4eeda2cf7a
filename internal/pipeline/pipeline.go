// Package pipeline implements the ingestion path: validate a reading, persist
// it, refresh the sensor snapshot, and raise deduplicated threshold alerts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"facilio.dev/envmon/internal/alerting"
	"facilio.dev/envmon/internal/bus"
	"facilio.dev/envmon/internal/sensor"
	"facilio.dev/envmon/internal/store"
	"facilio.dev/envmon/pkg/metrics"
)

// Sentinel errors for callers to classify failures with errors.Is.
var (
	// ErrInvalidInput marks a submission rejected before any state change.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable marks a submission that failed against the store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Reading sources, used for logging and metric labels.
const (
	SourceHTTP      = "http"
	SourceAMQP      = "amqp"
	SourceSimulator = "simulator"
)

// DefaultStoreTimeout bounds each store operation issued by the pipeline.
const DefaultStoreTimeout = 5 * time.Second

// Submission is one inbound reading before validation. The JSON shape is
// shared by the HTTP ingress and the AMQP queue payloads.
type Submission struct {
	SensorName string  `json:"sensor_id"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit,omitempty"`
}

// Publisher is the event sink for pipeline notifications.
type Publisher interface {
	Publish(event bus.Event)
}

// Config holds the pipeline configuration.
type Config struct {
	Logger       *slog.Logger
	Registry     *sensor.Registry
	Store        store.Store
	Publisher    Publisher
	Deduplicator *alerting.Deduplicator
	// Metrics is optional.
	Metrics *metrics.PipelineMetrics
	// StoreTimeout bounds each store call (defaults to DefaultStoreTimeout).
	StoreTimeout time.Duration
}

// Pipeline serializes ingestion per sensor and owns the alert decision path.
type Pipeline struct {
	logger       *slog.Logger
	registry     *sensor.Registry
	store        store.Store
	publisher    Publisher
	dedup        *alerting.Deduplicator
	metrics      *metrics.PipelineMetrics
	storeTimeout time.Duration

	// locks serializes ingestion per sensor name. The registry is immutable,
	// so the map is fully built at construction and never written again.
	locks map[string]*sync.Mutex
}

// New creates a pipeline from the given configuration.
func New(cfg *Config) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	if cfg.Deduplicator == nil {
		return nil, errors.New("deduplicator cannot be nil")
	}

	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}

	locks := make(map[string]*sync.Mutex, cfg.Registry.Len())
	for _, s := range cfg.Registry.List() {
		locks[s.Name] = &sync.Mutex{}
	}

	return &Pipeline{
		logger:       cfg.Logger,
		registry:     cfg.Registry,
		store:        cfg.Store,
		publisher:    cfg.Publisher,
		dedup:        cfg.Deduplicator,
		metrics:      cfg.Metrics,
		storeTimeout: storeTimeout,
		locks:        locks,
	}, nil
}

// Ingest runs one submission through the full path: validate, append the
// reading, refresh the snapshot, notify subscribers, and evaluate thresholds.
// Failures on the alert side path are logged and never fail the ingest; the
// reading and snapshot survive. Submissions for the same sensor are processed
// strictly one at a time.
func (p *Pipeline) Ingest(ctx context.Context, source string, sub Submission) (*store.Snapshot, error) {
	start := time.Now()

	s, err := p.validate(sub)
	if err != nil {
		if p.metrics != nil {
			p.metrics.IngestFailures.WithLabelValues(source, "invalid_input").Inc()
		}
		return nil, err
	}

	lock := p.locks[s.Name]
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	unit := s.Unit
	if unit == "" {
		unit = sub.Unit
	}

	reading := &store.Reading{
		Timestamp:  now,
		SensorName: s.Name,
		Unit:       unit,
		Value:      sub.Value,
	}
	if err := p.insertReading(ctx, reading); err != nil {
		if p.metrics != nil {
			p.metrics.IngestFailures.WithLabelValues(source, "store_unavailable").Inc()
		}
		return nil, fmt.Errorf("%w: insert reading: %w", ErrStoreUnavailable, err)
	}

	snapshot := &store.Snapshot{
		UpdatedAt:  now,
		SensorName: s.Name,
		Kind:       string(s.Kind),
		Unit:       unit,
		Location:   s.Location,
		Value:      sub.Value,
	}
	if err := p.upsertSnapshot(ctx, snapshot); err != nil {
		if p.metrics != nil {
			p.metrics.IngestFailures.WithLabelValues(source, "store_unavailable").Inc()
		}
		return nil, fmt.Errorf("%w: upsert snapshot: %w", ErrStoreUnavailable, err)
	}

	p.publisher.Publish(bus.ReadingUpdated(snapshot))

	if status := alerting.Evaluate(s, sub.Value); status != store.AlertStatusNone {
		p.handleExcursion(ctx, s, sub.Value, unit, status, now)
	}

	if p.metrics != nil {
		p.metrics.ReadingsIngested.WithLabelValues(source).Inc()
		p.metrics.IngestDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}
	p.logger.Debug("reading ingested",
		"source", source,
		"sensor", s.Name,
		"value", sub.Value,
	)

	return snapshot, nil
}

// ClearAlerts empties the alert log and notifies subscribers.
func (p *Pipeline) ClearAlerts(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	if err := p.store.ClearAlerts(opCtx); err != nil {
		return fmt.Errorf("%w: clear alerts: %w", ErrStoreUnavailable, err)
	}

	p.publisher.Publish(bus.AlertsCleared())
	p.logger.Info("alert log cleared")
	return nil
}

// validate rejects malformed submissions before any state change.
func (p *Pipeline) validate(sub Submission) (*sensor.Sensor, error) {
	if sub.SensorName == "" {
		return nil, fmt.Errorf("%w: sensor id is required", ErrInvalidInput)
	}
	if math.IsNaN(sub.Value) || math.IsInf(sub.Value, 0) {
		return nil, fmt.Errorf("%w: value must be a finite number", ErrInvalidInput)
	}
	s, ok := p.registry.Lookup(sub.SensorName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown sensor %q", ErrInvalidInput, sub.SensorName)
	}
	return s, nil
}

// handleExcursion runs the alert side path for an out-of-range reading. Every
// failure here is absorbed: the reading was already accepted.
func (p *Pipeline) handleExcursion(ctx context.Context, s *sensor.Sensor, value float64, unit string, status store.AlertStatus, now time.Time) {
	last, err := p.mostRecentAlert(ctx, s.Name)
	if err != nil {
		p.alertPathError("lookup", s.Name, err)
		return
	}

	if !p.dedup.ShouldRaise(s, value, status, last, now) {
		if p.metrics != nil {
			p.metrics.AlertsSuppressed.WithLabelValues(string(s.Kind)).Inc()
		}
		p.logger.Debug("alert suppressed",
			"sensor", s.Name,
			"status", string(status),
			"value", value,
		)
		return
	}

	alert := &store.AlertRecord{
		RaisedAt:   now,
		SensorName: s.Name,
		Kind:       string(s.Kind),
		Unit:       unit,
		Status:     status,
		Message:    alerting.Message(s, value, status),
		Value:      value,
	}
	if err := p.insertAlert(ctx, alert); err != nil {
		p.alertPathError("insert", s.Name, err)
		return
	}

	p.publisher.Publish(bus.AlertRaised(alert))

	if p.metrics != nil {
		p.metrics.AlertsRaised.WithLabelValues(string(s.Kind), string(status)).Inc()
	}
	p.logger.Info("alert raised",
		"sensor", s.Name,
		"status", string(status),
		"value", value,
	)
}

func (p *Pipeline) alertPathError(stage, sensorName string, err error) {
	if p.metrics != nil {
		p.metrics.AlertPathErrors.WithLabelValues(stage).Inc()
	}
	p.logger.Error("alert path failed, reading kept",
		"stage", stage,
		"sensor", sensorName,
		"error", err,
	)
}

func (p *Pipeline) insertReading(ctx context.Context, reading *store.Reading) error {
	opCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	start := time.Now()
	err := p.store.InsertReading(opCtx, reading)
	if p.metrics != nil {
		p.metrics.StoreDuration.WithLabelValues("insert_reading").Observe(time.Since(start).Seconds())
	}
	return err
}

func (p *Pipeline) upsertSnapshot(ctx context.Context, snapshot *store.Snapshot) error {
	opCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	start := time.Now()
	err := p.store.UpsertSnapshot(opCtx, snapshot)
	if p.metrics != nil {
		p.metrics.StoreDuration.WithLabelValues("upsert_snapshot").Observe(time.Since(start).Seconds())
	}
	return err
}

func (p *Pipeline) mostRecentAlert(ctx context.Context, sensorName string) (*store.AlertRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	return p.store.MostRecentAlert(opCtx, sensorName)
}

func (p *Pipeline) insertAlert(ctx context.Context, alert *store.AlertRecord) error {
	opCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	start := time.Now()
	err := p.store.InsertAlert(opCtx, alert)
	if p.metrics != nil {
		p.metrics.StoreDuration.WithLabelValues("insert_alert").Observe(time.Since(start).Seconds())
	}
	return err
}
