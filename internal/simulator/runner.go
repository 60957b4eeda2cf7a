package simulator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"facilio.dev/envmon/internal/pipeline"
	"facilio.dev/envmon/internal/sensor"
	"facilio.dev/envmon/internal/store"
	"facilio.dev/envmon/pkg/metrics"
)

// DefaultInterval is the cadence between simulation ticks.
const DefaultInterval = 5 * time.Second

// storeTimeout bounds the snapshot listing at the start of each tick.
const storeTimeout = 5 * time.Second

// Ingestor accepts synthetic readings. Satisfied by the ingestion pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, source string, sub pipeline.Submission) (*store.Snapshot, error)
}

// Config holds the simulator runner configuration.
type Config struct {
	Logger   *slog.Logger
	Registry *sensor.Registry
	Ingestor Ingestor
	Store    store.Store
	// Metrics is optional.
	Metrics *metrics.SimulatorMetrics
	// Interval is the tick cadence (defaults to DefaultInterval).
	Interval time.Duration
}

// Runner generates one reading per monitored sensor on every tick and submits
// it through the pipeline like any external reading.
type Runner struct {
	logger   *slog.Logger
	registry *sensor.Registry
	ingestor Ingestor
	store    store.Store
	metrics  *metrics.SimulatorMetrics
	interval time.Duration
}

// NewRunner creates a simulator runner from the given configuration.
func NewRunner(cfg *Config) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("simulator config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if cfg.Ingestor == nil {
		return nil, errors.New("ingestor cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Runner{
		logger:   cfg.Logger,
		registry: cfg.Registry,
		ingestor: cfg.Ingestor,
		store:    cfg.Store,
		metrics:  cfg.Metrics,
		interval: interval,
	}, nil
}

// Run ticks until the context is canceled. Per-sensor failures are logged and
// skipped; the loop never stops on its own.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("simulator started",
		"interval", r.interval,
		"sensors", r.registry.Len(),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("simulator shutting down")
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick generates and ingests one reading for every sensor with thresholds.
func (r *Runner) tick(ctx context.Context) {
	start := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	snapshots, err := r.store.ListSnapshots(opCtx)
	cancel()
	if err != nil {
		r.logger.Error("failed to list snapshots, skipping tick", "error", err)
		if r.metrics != nil {
			r.metrics.TickFailures.WithLabelValues("list_snapshots").Inc()
		}
		return
	}

	current := make(map[string]float64, len(snapshots))
	for _, s := range snapshots {
		current[s.SensorName] = s.Value
	}

	for _, s := range r.registry.List() {
		if s.Thresholds == nil {
			continue
		}

		var baseline *float64
		if v, ok := current[s.Name]; ok {
			baseline = &v
		}
		value, spiked := Next(s, r.registry.Params(s.Kind), baseline)

		_, err := r.ingestor.Ingest(ctx, pipeline.SourceSimulator, pipeline.Submission{
			SensorName: s.Name,
			Value:      value,
			Unit:       s.Unit,
		})
		if err != nil {
			r.logger.Error("failed to ingest synthetic reading",
				"sensor", s.Name,
				"error", err,
			)
			if r.metrics != nil {
				r.metrics.TickFailures.WithLabelValues("ingest").Inc()
			}
			continue
		}

		if r.metrics != nil {
			r.metrics.ReadingsGenerated.WithLabelValues(string(s.Kind)).Inc()
			if spiked {
				r.metrics.SpikesGenerated.WithLabelValues(string(s.Kind)).Inc()
			}
		}
	}

	if r.metrics != nil {
		r.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
}
