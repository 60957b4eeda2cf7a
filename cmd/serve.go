package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"facilio.dev/envmon/internal/monitor"
	"facilio.dev/envmon/internal/sensor"
	"facilio.dev/envmon/internal/store"
	"facilio.dev/envmon/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor server",
	Long: `Run the monitor server that:
- Ingests sensor readings over HTTP and RabbitMQ
- Evaluates alert thresholds with cooldown-based deduplication
- Persists readings, snapshots, and alerts
- Streams live updates to websocket subscribers
- Optionally generates synthetic readings in process`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server flags
	serveCmd.Flags().Int("http-port", 8080, "HTTP server port")
	serveCmd.Flags().String("store-driver", "memory", "store driver (memory, postgres, redis)")
	serveCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	serveCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	serveCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	serveCmd.Flags().String("db-password", "", "PostgreSQL password")
	serveCmd.Flags().String("db-name", "envmon", "PostgreSQL database name")
	serveCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database number")
	serveCmd.Flags().Int("demo-sensors", 8, "size of the generated demo fleet when no sensors are configured")
	serveCmd.Flags().Duration("cooldown", 2*time.Minute, "minimum gap between same-status alerts per sensor")
	serveCmd.Flags().Bool("simulator", true, "generate synthetic readings in process")
	serveCmd.Flags().Duration("simulator-interval", 5*time.Second, "interval between simulated readings")
	serveCmd.Flags().Bool("ingest", false, "consume readings from RabbitMQ")
	serveCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	serveCmd.Flags().String("queue-name", "readings", "RabbitMQ queue name for sensor readings")

	// Bind flags to viper
	_ = viper.BindPFlag("monitor.http.port", serveCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("monitor.store.driver", serveCmd.Flags().Lookup("store-driver"))
	_ = viper.BindPFlag("monitor.store.db.host", serveCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("monitor.store.db.port", serveCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("monitor.store.db.user", serveCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("monitor.store.db.password", serveCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("monitor.store.db.name", serveCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("monitor.store.db.sslmode", serveCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("monitor.store.redis.addr", serveCmd.Flags().Lookup("redis-addr"))
	_ = viper.BindPFlag("monitor.store.redis.password", serveCmd.Flags().Lookup("redis-password"))
	_ = viper.BindPFlag("monitor.store.redis.db", serveCmd.Flags().Lookup("redis-db"))
	_ = viper.BindPFlag("monitor.demo_sensors", serveCmd.Flags().Lookup("demo-sensors"))
	_ = viper.BindPFlag("monitor.alerting.cooldown", serveCmd.Flags().Lookup("cooldown"))
	_ = viper.BindPFlag("monitor.simulator.enabled", serveCmd.Flags().Lookup("simulator"))
	_ = viper.BindPFlag("monitor.simulator.interval", serveCmd.Flags().Lookup("simulator-interval"))
	_ = viper.BindPFlag("monitor.ingest.enabled", serveCmd.Flags().Lookup("ingest"))
	_ = viper.BindPFlag("monitor.ingest.rabbitmq.url", serveCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("monitor.ingest.rabbitmq.queue_name", serveCmd.Flags().Lookup("queue-name"))
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting monitor service")

	fleet, err := configuredSensors()
	if err != nil {
		logger.Error("invalid sensor configuration", "error", err)
		return err
	}

	overrides, err := configuredOverrides()
	if err != nil {
		logger.Error("invalid alerting configuration", "error", err)
		return err
	}

	// Create monitor configuration from viper
	config := &monitor.ServerConfig{
		Logger: logger,
		Store: &store.Config{
			Logger: logger,
			Driver: viper.GetString("monitor.store.driver"),
			Postgres: &store.PostgresConfig{
				Host:     viper.GetString("monitor.store.db.host"),
				Port:     viper.GetInt("monitor.store.db.port"),
				User:     viper.GetString("monitor.store.db.user"),
				Password: viper.GetString("monitor.store.db.password"),
				DBName:   viper.GetString("monitor.store.db.name"),
				SSLMode:  viper.GetString("monitor.store.db.sslmode"),
			},
			Redis: &store.RedisConfig{
				Addr:     viper.GetString("monitor.store.redis.addr"),
				Password: viper.GetString("monitor.store.redis.password"),
				DB:       viper.GetInt("monitor.store.redis.db"),
			},
		},
		HTTPPort:          viper.GetInt("monitor.http.port"),
		Sensors:           fleet,
		DemoSensors:       viper.GetInt("monitor.demo_sensors"),
		Overrides:         overrides,
		Cooldown:          viper.GetDuration("monitor.alerting.cooldown"),
		BusBuffer:         viper.GetInt("monitor.bus.buffer"),
		ReplayAlerts:      viper.GetInt("monitor.bus.replay_alerts"),
		StoreTimeout:      viper.GetDuration("monitor.store.timeout"),
		SimulatorEnabled:  viper.GetBool("monitor.simulator.enabled"),
		SimulatorInterval: viper.GetDuration("monitor.simulator.interval"),
		IngestEnabled:     viper.GetBool("monitor.ingest.enabled"),
		RabbitMQURL:       viper.GetString("monitor.ingest.rabbitmq.url"),
		QueueName:         viper.GetString("monitor.ingest.rabbitmq.queue_name"),
		Metrics: &monitor.Metrics{
			Pipeline:  metrics.NewPipelineMetrics("envmon"),
			Bus:       metrics.NewBusMetrics("envmon"),
			API:       metrics.NewAPIMetrics("envmon"),
			Simulator: metrics.NewSimulatorMetrics("envmon"),
			MQ:        metrics.NewMQMetrics("envmon"),
		},
	}

	// Create and run server
	server, err := monitor.NewServer(config)
	if err != nil {
		logger.Error("failed to create monitor server", "error", err)
		return err
	}

	logger.Info("monitor server configuration",
		"http_port", config.HTTPPort,
		"store_driver", config.Store.Driver,
		"configured_sensors", len(config.Sensors),
		"demo_sensors", config.DemoSensors,
		"cooldown", config.Cooldown,
		"simulator_enabled", config.SimulatorEnabled,
		"ingest_enabled", config.IngestEnabled,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("monitor server error", "error", err)
		return err
	}

	logger.Info("monitor server stopped")
	return nil
}

// configuredSensors loads the sensor fleet from the "sensors" config key.
// An absent key means the demo fleet will be generated instead.
func configuredSensors() ([]sensor.Sensor, error) {
	if !viper.IsSet("sensors") {
		return nil, nil
	}

	var defs []sensor.Definition
	if err := viper.UnmarshalKey("sensors", &defs); err != nil {
		return nil, fmt.Errorf("failed to parse sensors: %w", err)
	}

	return sensor.FromDefinitions(defs)
}

// configuredOverrides loads per-kind behavior overrides from the
// "alerting.categories" config key.
func configuredOverrides() (map[sensor.Kind]sensor.Params, error) {
	if !viper.IsSet("alerting.categories") {
		return nil, nil
	}

	var raw map[string]sensor.Params
	if err := viper.UnmarshalKey("alerting.categories", &raw); err != nil {
		return nil, fmt.Errorf("failed to parse alerting categories: %w", err)
	}

	overrides := make(map[sensor.Kind]sensor.Params, len(raw))
	for kind, params := range raw {
		overrides[sensor.Kind(kind)] = params
	}
	return overrides, nil
}
