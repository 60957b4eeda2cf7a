// Package consumer drains the readings queue and feeds each message through
// the ingestion pipeline.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"facilio.dev/envmon/internal/pipeline"
	"facilio.dev/envmon/internal/store"
	"facilio.dev/envmon/pkg/metrics"
	"facilio.dev/envmon/pkg/mq"
)

// defaultStartupGrace gives the queue client time to finish its first
// connect before the initial Consume call.
const defaultStartupGrace = 2 * time.Second

// Ingestor accepts decoded submissions. Satisfied by the ingestion pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, source string, sub pipeline.Submission) (*store.Snapshot, error)
}

// Config holds the configuration for the Consumer.
type Config struct {
	Logger   *slog.Logger
	Ingestor Ingestor
	Queue    mq.ClientInterface
	// QueueName is used for log and metric labels only.
	QueueName string
	// Metrics is optional.
	Metrics *metrics.MQMetrics
	// StartupGrace overrides the wait before the first Consume call
	// (defaults to defaultStartupGrace).
	StartupGrace time.Duration
}

// Consumer consumes reading submissions from RabbitMQ and ingests them.
// It owns the queue client and closes it on Stop.
type Consumer struct {
	logger       *slog.Logger
	ingestor     Ingestor
	queue        mq.ClientInterface
	queueName    string
	metrics      *metrics.MQMetrics
	startupGrace time.Duration
	done         chan struct{}
}

// New creates a new Consumer instance.
func New(cfg *Config) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Ingestor == nil {
		return nil, errors.New("ingestor cannot be nil")
	}
	if cfg.Queue == nil {
		return nil, errors.New("queue client cannot be nil")
	}
	if cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	grace := cfg.StartupGrace
	if grace <= 0 {
		grace = defaultStartupGrace
	}

	return &Consumer{
		logger:       cfg.Logger.With(slog.String("component", "consumer")),
		ingestor:     cfg.Ingestor,
		queue:        cfg.Queue,
		queueName:    cfg.QueueName,
		metrics:      cfg.Metrics,
		startupGrace: grace,
		done:         make(chan struct{}),
	}, nil
}

// Start begins consuming messages from the queue.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting consumer", "queue", c.queueName)

	// Wait for the queue client to be ready
	time.Sleep(c.startupGrace)

	deliveries, err := c.queue.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consumer started, waiting for messages")

	go c.processMessages(ctx, deliveries)

	return nil
}

// processMessages processes incoming messages from the deliveries channel.
func (c *Consumer) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping message processing")
			close(c.done)
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed")
				close(c.done)
				return
			}

			c.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery decodes and ingests a single delivery. Malformed and
// rejected submissions are acked so they do not loop through the queue;
// only store outages requeue the message.
func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var sub pipeline.Submission
	if err := json.Unmarshal(delivery.Body, &sub); err != nil {
		c.logger.Error("failed to unmarshal submission", "error", err)
		c.countFailure("unmarshal")
		c.ack(delivery)
		return
	}

	_, err := c.ingestor.Ingest(ctx, pipeline.SourceAMQP, sub)
	switch {
	case err == nil:

	case errors.Is(err, pipeline.ErrStoreUnavailable):
		c.logger.Error("store unavailable, requeueing submission",
			"sensor", sub.SensorName,
			"error", err,
		)
		c.countFailure("store_unavailable")
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			c.logger.Error("failed to nack message", "error", nackErr)
		}
		return

	default:
		// Invalid submissions can never succeed, drop them.
		c.logger.Warn("submission rejected",
			"sensor", sub.SensorName,
			"error", err,
		)
		c.countFailure("rejected")
		c.ack(delivery)
		return
	}

	c.ack(delivery)
	if c.metrics != nil {
		c.metrics.MessagesConsumed.WithLabelValues(c.queueName).Inc()
	}

	c.logger.Debug("submission ingested",
		"sensor", sub.SensorName,
		"value", sub.Value,
	)
}

func (c *Consumer) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "error", err)
	}
}

func (c *Consumer) countFailure(reason string) {
	if c.metrics != nil {
		c.metrics.ConsumptionFailures.WithLabelValues(c.queueName, reason).Inc()
	}
}

// Stop closes the queue client and waits for message processing to finish.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping consumer")

	if err := c.queue.Close(); err != nil {
		return fmt.Errorf("failed to close mq client: %w", err)
	}

	// Wait for message processing to complete
	<-c.done

	c.logger.Info("consumer stopped")
	return nil
}
