package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"facilio.dev/envmon/internal/feeder"
)

func main() {
	// Parse command-line flags
	rabbitMQURL := flag.String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	queueName := flag.String("queue-name", "readings", "RabbitMQ queue name for sensor readings")
	sensorCount := flag.Int("sensor-count", 8, "Size of the generated demo fleet")
	interval := flag.Duration("interval", 5*time.Second, "Interval between publish rounds")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	// Set up logger
	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	// Create server configuration
	config := &feeder.ServerConfig{
		Logger:      logger,
		RabbitMQURL: *rabbitMQURL,
		QueueName:   *queueName,
		SensorCount: *sensorCount,
		Interval:    *interval,
	}

	// Create server
	server, err := feeder.NewServer(config)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Run server
	logger.Info("starting feeder server",
		"rabbitmq_url", *rabbitMQURL,
		"queue", *queueName,
		"sensor_count", *sensorCount,
		"interval", *interval,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("feeder server stopped")
}
