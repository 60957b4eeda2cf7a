// Package monitor wires the full monitoring service together: sensor
// registry, store, event bus, ingestion pipeline, HTTP API, and the
// optional simulator and queue consumer.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"facilio.dev/envmon/internal/alerting"
	"facilio.dev/envmon/internal/api"
	"facilio.dev/envmon/internal/bus"
	"facilio.dev/envmon/internal/consumer"
	"facilio.dev/envmon/internal/pipeline"
	"facilio.dev/envmon/internal/sensor"
	"facilio.dev/envmon/internal/simulator"
	"facilio.dev/envmon/internal/store"
	"facilio.dev/envmon/pkg/metrics"
	"facilio.dev/envmon/pkg/mq"
)

// DefaultReplayAlerts is how many recent alerts a new subscriber replays.
const DefaultReplayAlerts = 50

// httpShutdownTimeout bounds the graceful HTTP drain during shutdown.
const httpShutdownTimeout = 10 * time.Second

// Metrics groups the optional per-component collectors. Each collector
// registers on the global Prometheus registry, so a process builds them
// at most once and hands them down here.
type Metrics struct {
	Pipeline  *metrics.PipelineMetrics
	Bus       *metrics.BusMetrics
	API       *metrics.APIMetrics
	Simulator *metrics.SimulatorMetrics
	MQ        *metrics.MQMetrics
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Store selects and configures the persistence driver.
	Store *store.Config

	// HTTP server configuration
	HTTPPort int

	// Sensor fleet: explicit definitions, or a generated demo fleet when
	// Sensors is empty.
	Sensors     []sensor.Sensor
	DemoSensors int

	// Overrides replaces the built-in per-kind simulation parameters.
	Overrides map[sensor.Kind]sensor.Params

	// Cooldown is the minimum gap between same-status alerts per sensor.
	Cooldown time.Duration

	// Event bus configuration
	BusBuffer    int
	ReplayAlerts int

	// StoreTimeout bounds each pipeline store call.
	StoreTimeout time.Duration

	// Simulator configuration
	SimulatorEnabled  bool
	SimulatorInterval time.Duration

	// RabbitMQ ingest configuration
	IngestEnabled bool
	RabbitMQURL   string
	QueueName     string

	// Metrics is optional.
	Metrics *Metrics
}

// Server represents the monitor service that manages the store, event bus,
// ingestion pipeline, HTTP API, simulator, and queue consumer.
type Server struct {
	logger *slog.Logger
	config *ServerConfig

	store      store.Store
	bus        *bus.Bus
	consumer   *consumer.Consumer
	httpServer *http.Server

	simulatorWG sync.WaitGroup
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("store config cannot be nil")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if len(cfg.Sensors) == 0 && cfg.DemoSensors <= 0 {
		return nil, errors.New("sensor fleet cannot be empty")
	}

	if cfg.IngestEnabled {
		if cfg.RabbitMQURL == "" {
			return nil, errors.New("rabbitmq URL cannot be empty")
		}

		if cfg.QueueName == "" {
			return nil, errors.New("queue name cannot be empty")
		}
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the monitor and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting monitor")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	m := s.config.Metrics
	if m == nil {
		m = &Metrics{}
	}

	// Build the sensor registry
	fleet := s.config.Sensors
	if len(fleet) == 0 {
		fleet = sensor.DemoFleet(s.config.DemoSensors)
	}

	registry, err := sensor.NewRegistry(fleet, s.config.Overrides)
	if err != nil {
		return fmt.Errorf("failed to build sensor registry: %w", err)
	}

	s.logger.Info("sensor registry initialized", "sensors", registry.Len())

	// Open the store
	st, err := store.Open(s.config.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.store = st

	s.logger.Info("store initialized successfully")

	// Initialize the event bus with connect-time replay
	replayAlerts := s.config.ReplayAlerts
	if replayAlerts <= 0 {
		replayAlerts = DefaultReplayAlerts
	}

	eventBus, err := bus.New(&bus.Config{
		Logger:  s.logger,
		Metrics: m.Bus,
		State:   stateFunc(st, replayAlerts, s.config.StoreTimeout),
		Buffer:  s.config.BusBuffer,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	s.bus = eventBus

	// Initialize the ingestion pipeline
	dedup, err := alerting.NewDeduplicator(registry, s.config.Cooldown)
	if err != nil {
		return fmt.Errorf("failed to initialize deduplicator: %w", err)
	}

	pipe, err := pipeline.New(&pipeline.Config{
		Logger:       s.logger,
		Registry:     registry,
		Store:        st,
		Publisher:    eventBus,
		Deduplicator: dedup,
		Metrics:      m.Pipeline,
		StoreTimeout: s.config.StoreTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	// Start the simulator
	if s.config.SimulatorEnabled {
		runner, err := simulator.NewRunner(&simulator.Config{
			Logger:   s.logger,
			Registry: registry,
			Ingestor: pipe,
			Store:    st,
			Metrics:  m.Simulator,
			Interval: s.config.SimulatorInterval,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize simulator: %w", err)
		}

		s.simulatorWG.Add(1)
		go func() {
			defer s.simulatorWG.Done()
			if err := runner.Run(ctx); err != nil {
				s.logger.Error("simulator stopped with error", "error", err)
			}
		}()
	}

	// Start the queue consumer
	if s.config.IngestEnabled {
		queue := mq.New(s.config.QueueName, s.config.RabbitMQURL, s.logger)
		if m.MQ != nil {
			queue.SetMetrics(m.MQ)
		}

		cons, err := consumer.New(&consumer.Config{
			Logger:    s.logger,
			Ingestor:  pipe,
			Queue:     queue,
			QueueName: s.config.QueueName,
			Metrics:   m.MQ,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize consumer: %w", err)
		}
		s.consumer = cons

		if err := s.consumer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start consumer: %w", err)
		}
	}

	// Initialize the HTTP API
	handler, err := api.NewHandler(&api.Config{
		Logger:   s.logger,
		Registry: registry,
		Store:    st,
		Pipeline: pipe,
		Bus:      eventBus,
		Metrics:  m.API,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize API handler: %w", err)
	}

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	// Start HTTP server in goroutine
	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("monitor started successfully")

	// Wait for shutdown signal or HTTP error
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			cancel()
			return err
		}
	}

	// Wait for the simulator to finish its final tick
	s.simulatorWG.Wait()

	// Shutdown
	return s.Shutdown()
}

// Shutdown gracefully shuts down the monitor.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down monitor")

	var shutdownErr error

	// Shutdown HTTP server
	if s.httpServer != nil {
		s.logger.Info("stopping HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown HTTP server", "error", err)
			shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		s.logger.Info("HTTP server stopped")
	}

	// Stop consumer
	if s.consumer != nil {
		s.logger.Info("stopping consumer")
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("failed to stop consumer", "error", err)
			shutdownErr = joinShutdownErr(shutdownErr, fmt.Errorf("consumer shutdown error: %w", err))
		}
	}

	// Close the event bus so websocket clients disconnect
	if s.bus != nil {
		s.logger.Info("closing event bus")
		s.bus.Close()
	}

	// Close the store
	if s.store != nil {
		s.logger.Info("closing store")
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close store", "error", err)
			shutdownErr = joinShutdownErr(shutdownErr, fmt.Errorf("store close error: %w", err))
		}
	}

	if shutdownErr != nil {
		s.logger.Error("monitor shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("monitor shutdown completed successfully")
	return nil
}

func joinShutdownErr(existing, err error) error {
	if existing != nil {
		return fmt.Errorf("%w; %w", existing, err)
	}
	return err
}

// stateFunc builds the connect-time replay payload: every snapshot plus the
// most recent alerts, as non-nil slices so the payload always marshals to
// JSON arrays. The store queries run inside the bus's subscribe critical
// section, so they carry the same timeout as the pipeline's store calls to
// keep a slow store from stalling publishers.
func stateFunc(st store.Store, replayAlerts int, storeTimeout time.Duration) bus.StateFunc {
	if storeTimeout <= 0 {
		storeTimeout = pipeline.DefaultStoreTimeout
	}
	return func(ctx context.Context) (*bus.State, error) {
		ctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()

		snapshots, err := st.ListSnapshots(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", err)
		}

		alerts, err := st.ListAlerts(ctx, replayAlerts)
		if err != nil {
			return nil, fmt.Errorf("failed to list alerts: %w", err)
		}

		if snapshots == nil {
			snapshots = []store.Snapshot{}
		}
		if alerts == nil {
			alerts = []store.AlertRecord{}
		}

		return &bus.State{Snapshots: snapshots, Alerts: alerts}, nil
	}
}
