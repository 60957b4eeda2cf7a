package feeder

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"facilio.dev/envmon/internal/sensor"
	"facilio.dev/envmon/pkg/metrics"
	"facilio.dev/envmon/pkg/mq"
)

// ServerConfig holds the configuration for the feeder server.
type ServerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// RabbitMQURL is the connection string for RabbitMQ
	RabbitMQURL string
	// QueueName is the name of the queue to publish readings to
	QueueName string
	// Interval is the time between publish rounds
	Interval time.Duration
	// Sensors is the fleet to feed. When empty, a demo fleet of
	// SensorCount sensors is generated.
	Sensors []sensor.Sensor
	// SensorCount sizes the demo fleet when Sensors is empty.
	SensorCount int
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.FeederMetrics
	// MQMetrics is the optional Prometheus metrics collector for MQ operations
	MQMetrics *metrics.MQMetrics
}

// Server runs a feeder on a fixed cadence until shutdown.
type Server struct {
	logger  *slog.Logger
	config  *ServerConfig
	feeder  *Feeder
	client  *mq.Client
	wg      sync.WaitGroup
	metrics *metrics.FeederMetrics
}

var (
	errRabbitMQURLRequired = errors.New("rabbitmq URL is required")
	errQueueNameRequired   = errors.New("queue name is required")
	errInvalidInterval     = errors.New("interval must be greater than 0")
	errLoggerRequired      = errors.New("logger is required")
	errEmptyFleet          = errors.New("sensor count must be greater than 0 when no sensors are configured")
)

// NewServer creates a new feeder server with the given configuration.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	if cfg.RabbitMQURL == "" {
		return nil, errRabbitMQURLRequired
	}

	if cfg.QueueName == "" {
		return nil, errQueueNameRequired
	}

	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}

	fleet := cfg.Sensors
	if len(fleet) == 0 {
		if cfg.SensorCount <= 0 {
			return nil, errEmptyFleet
		}
		fleet = sensor.DemoFleet(cfg.SensorCount)
	}

	registry, err := sensor.NewRegistry(fleet, nil)
	if err != nil {
		return nil, err
	}

	client := mq.New(cfg.QueueName, cfg.RabbitMQURL, cfg.Logger.With(
		slog.String("component", "mq-client"),
	))
	if cfg.MQMetrics != nil {
		client.SetMetrics(cfg.MQMetrics)
	}

	feeder := NewFeeder(client, registry, cfg.Logger)
	if cfg.Metrics != nil {
		feeder.SetMetrics(cfg.Metrics)
	}

	s := &Server{
		logger:  cfg.Logger,
		config:  cfg,
		feeder:  feeder,
		client:  client,
		metrics: cfg.Metrics,
	}

	s.logger.Info("created feeder",
		"feeder_id", feeder.ID,
		"queue", cfg.QueueName,
		"sensors", registry.Len(),
	)

	return s, nil
}

// Run starts the feeder and blocks until a shutdown signal is received.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	s.wg.Add(1)
	go s.runFeeder(ctx)

	s.logger.Info("feeder server started",
		"interval", s.config.Interval,
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down")
	}

	s.logger.Info("waiting for feeder to shut down...")
	s.wg.Wait()

	s.logger.Info("closing MQ client...")
	s.closeClient()

	s.logger.Info("feeder server stopped")
	return nil
}

// runFeeder publishes rounds at the configured interval until the context
// is canceled.
func (s *Server) runFeeder(ctx context.Context) {
	defer s.wg.Done()

	if s.metrics != nil {
		s.metrics.ActiveFeeds.Inc()
		defer s.metrics.ActiveFeeds.Dec()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("feeder started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("feeder shutting down")
			return

		case <-ticker.C:
			if err := s.feeder.PublishRound(ctx); err != nil {
				s.logger.Error("publish round finished with errors",
					"error", err,
				)
				// Continue on error, the next round may succeed
				continue
			}

			s.logger.Debug("publish round complete")
		}
	}
}

// closeClient closes the MQ client gracefully.
func (s *Server) closeClient() {
	if err := s.client.Close(); err != nil {
		s.logger.Error("failed to close MQ client", "error", err)
		return
	}

	s.logger.Info("MQ client closed")
}

// Shutdown initiates a graceful shutdown of the server.
// This is an alternative to sending OS signals.
func (s *Server) Shutdown() error {
	s.logger.Info("shutdown requested")

	s.closeClient()

	return nil
}
