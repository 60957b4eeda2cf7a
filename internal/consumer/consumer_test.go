package consumer_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	"facilio.dev/envmon/internal/consumer"
	"facilio.dev/envmon/internal/pipeline"
	"facilio.dev/envmon/internal/store"
	"facilio.dev/envmon/pkg/mq/mock"
)

// fakeIngestor records submissions and returns a configurable error.
type fakeIngestor struct {
	mu      sync.Mutex
	sources []string
	subs    []pipeline.Submission
	err     error
}

func (f *fakeIngestor) Ingest(_ context.Context, source string, sub pipeline.Submission) (*store.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sources = append(f.sources, source)
	f.subs = append(f.subs, sub)
	return &store.Snapshot{SensorName: sub.SensorName, Value: sub.Value}, nil
}

func (f *fakeIngestor) submissions() []pipeline.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pipeline.Submission, len(f.subs))
	copy(out, f.subs)
	return out
}

func (f *fakeIngestor) seenSources() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sources))
	copy(out, f.sources)
	return out
}

// fakeAcknowledger records ack/nack outcomes for a delivery.
type fakeAcknowledger struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	requeued bool
}

func (f *fakeAcknowledger) Ack(_ uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks++
	f.requeued = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	return f.Nack(0, false, requeue)
}

func (f *fakeAcknowledger) ackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acks
}

func (f *fakeAcknowledger) nackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nacks
}

func (f *fakeAcknowledger) wasRequeued() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requeued
}

var _ = Describe("Consumer", func() {
	var (
		logger   *slog.Logger
		ingestor *fakeIngestor
		queue    *mock.MockClient
		cfg      *consumer.Config
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
		ingestor = &fakeIngestor{}
		queue = mock.NewMockClient()
		cfg = &consumer.Config{
			Logger:       logger,
			Ingestor:     ingestor,
			Queue:        queue,
			QueueName:    "readings",
			StartupGrace: time.Millisecond,
		}
	})

	Describe("New", func() {
		It("creates a consumer", func() {
			c, err := consumer.New(cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(c).NotTo(BeNil())
		})

		It("should return error when config is nil", func() {
			c, err := consumer.New(nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("config cannot be nil"))
			Expect(c).To(BeNil())
		})

		It("should return error when logger is nil", func() {
			cfg.Logger = nil
			c, err := consumer.New(cfg)
			Expect(err).To(MatchError(ContainSubstring("logger")))
			Expect(c).To(BeNil())
		})

		It("should return error when ingestor is nil", func() {
			cfg.Ingestor = nil
			c, err := consumer.New(cfg)
			Expect(err).To(MatchError(ContainSubstring("ingestor")))
			Expect(c).To(BeNil())
		})

		It("should return error when queue client is nil", func() {
			cfg.Queue = nil
			c, err := consumer.New(cfg)
			Expect(err).To(MatchError(ContainSubstring("queue client")))
			Expect(c).To(BeNil())
		})

		It("should return error when queue name is empty", func() {
			cfg.QueueName = ""
			c, err := consumer.New(cfg)
			Expect(err).To(MatchError(ContainSubstring("queue name")))
			Expect(c).To(BeNil())
		})
	})

	Describe("Start", func() {
		It("returns an error when Consume fails", func() {
			queue.ConsumeError = errors.New("channel not open")

			c, err := consumer.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			err = c.Start(context.Background())
			Expect(err).To(MatchError(ContainSubstring("failed to start consuming")))
		})
	})

	Describe("message handling", func() {
		var (
			c          *consumer.Consumer
			ack        *fakeAcknowledger
			deliveries chan amqp.Delivery
			cancel     context.CancelFunc
		)

		BeforeEach(func() {
			deliveries = make(chan amqp.Delivery, 4)
			queue.ConsumeChannel = deliveries
			ack = &fakeAcknowledger{}

			var err error
			c, err = consumer.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			Expect(c.Start(ctx)).To(Succeed())
		})

		AfterEach(func() {
			cancel()
			Expect(c.Stop()).To(Succeed())
		})

		deliver := func(body []byte) {
			deliveries <- amqp.Delivery{
				Acknowledger: ack,
				DeliveryTag:  1,
				Body:         body,
			}
		}

		It("ingests a valid submission and acks", func() {
			body, err := json.Marshal(pipeline.Submission{
				SensorName: "Temperature Sensor 1",
				Value:      21.4,
			})
			Expect(err).NotTo(HaveOccurred())

			deliver(body)

			Eventually(ack.ackCount).Should(Equal(1))
			Expect(ack.nackCount()).To(BeZero())

			subs := ingestor.submissions()
			Expect(subs).To(HaveLen(1))
			Expect(subs[0].SensorName).To(Equal("Temperature Sensor 1"))
			Expect(subs[0].Value).To(Equal(21.4))
			Expect(ingestor.seenSources()).To(ConsistOf(pipeline.SourceAMQP))
		})

		It("acks malformed payloads without ingesting", func() {
			deliver([]byte("{not json"))

			Eventually(ack.ackCount).Should(Equal(1))
			Expect(ack.nackCount()).To(BeZero())
			Expect(ingestor.submissions()).To(BeEmpty())
		})

		It("acks rejected submissions so they do not loop", func() {
			ingestor.err = fmt.Errorf("%w: unknown sensor", pipeline.ErrInvalidInput)

			body, err := json.Marshal(pipeline.Submission{SensorName: "Nope", Value: 1})
			Expect(err).NotTo(HaveOccurred())

			deliver(body)

			Eventually(ack.ackCount).Should(Equal(1))
			Expect(ack.nackCount()).To(BeZero())
		})

		It("requeues submissions when the store is unavailable", func() {
			ingestor.err = fmt.Errorf("%w: insert reading", pipeline.ErrStoreUnavailable)

			body, err := json.Marshal(pipeline.Submission{SensorName: "Temperature Sensor 1", Value: 21.4})
			Expect(err).NotTo(HaveOccurred())

			deliver(body)

			Eventually(ack.nackCount).Should(Equal(1))
			Expect(ack.wasRequeued()).To(BeTrue())
			Expect(ack.ackCount()).To(BeZero())
		})

		It("drains pending deliveries before stopping", func() {
			for i := 0; i < 2; i++ {
				body, err := json.Marshal(pipeline.Submission{
					SensorName: "Temperature Sensor 1",
					Value:      20 + float64(i),
				})
				Expect(err).NotTo(HaveOccurred())
				deliver(body)
			}
			close(deliveries)

			Expect(c.Stop()).To(Succeed())
			Expect(ingestor.submissions()).To(HaveLen(2))
			Expect(queue.CloseCalls).To(BeNumerically(">=", 1))
		})

		It("stops when the context is canceled", func() {
			cancel()
			Expect(c.Stop()).To(Succeed())
		})
	})
})
