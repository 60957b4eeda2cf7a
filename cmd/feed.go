package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"facilio.dev/envmon/internal/feeder"
	"facilio.dev/envmon/pkg/metrics"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Run the reading feeder",
	Long: `Run the reading feeder that:
- Generates synthetic sensor readings for a demo or configured fleet
- Publishes readings to RabbitMQ for the monitor to consume
- Reconnects automatically when the broker goes away`,
	RunE: runFeed,
}

func init() {
	rootCmd.AddCommand(feedCmd)

	// Feeder-specific flags
	feedCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	feedCmd.Flags().String("queue-name", "readings", "RabbitMQ queue name for sensor readings")
	feedCmd.Flags().Int("sensor-count", 8, "size of the generated demo fleet when no sensors are configured")
	feedCmd.Flags().Duration("interval", 5*time.Second, "interval between publish rounds")

	// Bind flags to viper
	_ = viper.BindPFlag("feeder.rabbitmq.url", feedCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("feeder.rabbitmq.queue_name", feedCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("feeder.sensor_count", feedCmd.Flags().Lookup("sensor-count"))
	_ = viper.BindPFlag("feeder.interval", feedCmd.Flags().Lookup("interval"))
}

func runFeed(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting feeder service")

	fleet, err := configuredSensors()
	if err != nil {
		logger.Error("invalid sensor configuration", "error", err)
		return err
	}

	// Create feeder configuration from viper
	config := &feeder.ServerConfig{
		Logger:      logger,
		RabbitMQURL: viper.GetString("feeder.rabbitmq.url"),
		QueueName:   viper.GetString("feeder.rabbitmq.queue_name"),
		Interval:    viper.GetDuration("feeder.interval"),
		Sensors:     fleet,
		SensorCount: viper.GetInt("feeder.sensor_count"),
		Metrics:     metrics.NewFeederMetrics("envmon"),
		MQMetrics:   metrics.NewMQMetrics("envmon"),
	}

	// Create and run server
	server, err := feeder.NewServer(config)
	if err != nil {
		logger.Error("failed to create feeder server", "error", err)
		return err
	}

	logger.Info("feeder server configuration",
		"rabbitmq_url", config.RabbitMQURL,
		"queue", config.QueueName,
		"configured_sensors", len(config.Sensors),
		"sensor_count", config.SensorCount,
		"interval", config.Interval,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("feeder server error", "error", err)
		return err
	}

	logger.Info("feeder server stopped")
	return nil
}
