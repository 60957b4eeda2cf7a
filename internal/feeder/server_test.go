package feeder_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"facilio.dev/envmon/internal/feeder"
	"facilio.dev/envmon/internal/sensor"
)

var _ = Describe("Feeder Server", func() {
	var (
		logger *slog.Logger
	)

	BeforeEach(func() {
		// Create a logger for tests
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError, // Only show errors in tests
		}))
	})

	Describe("NewServer", func() {
		Context("with valid configuration", func() {
			It("should create a server with a demo fleet", func() {
				config := &feeder.ServerConfig{
					Logger:      logger,
					RabbitMQURL: "amqp://localhost:5672",
					QueueName:   "readings",
					Interval:    5 * time.Second,
					SensorCount: 4,
				}

				server, err := feeder.NewServer(config)
				Expect(err).NotTo(HaveOccurred())
				Expect(server).NotTo(BeNil())
			})

			It("should create a server with an explicit fleet", func() {
				config := &feeder.ServerConfig{
					Logger:      logger,
					RabbitMQURL: "amqp://localhost:5672",
					QueueName:   "readings",
					Interval:    1 * time.Second,
					Sensors: []sensor.Sensor{
						{
							Name:       "Temperature Sensor 1",
							Kind:       sensor.KindTemperature,
							Unit:       "°C",
							Thresholds: &sensor.ThresholdSpec{Min: 18, Max: 28},
						},
					},
				}

				server, err := feeder.NewServer(config)
				Expect(err).NotTo(HaveOccurred())
				Expect(server).NotTo(BeNil())
			})
		})

		Context("with invalid configuration", func() {
			It("should return error when logger is nil", func() {
				config := &feeder.ServerConfig{
					Logger:      nil,
					RabbitMQURL: "amqp://localhost:5672",
					QueueName:   "readings",
					Interval:    5 * time.Second,
					SensorCount: 4,
				}

				server, err := feeder.NewServer(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("logger"))
				Expect(server).To(BeNil())
			})

			It("should return error when RabbitMQ URL is empty", func() {
				config := &feeder.ServerConfig{
					Logger:      logger,
					RabbitMQURL: "",
					QueueName:   "readings",
					Interval:    5 * time.Second,
					SensorCount: 4,
				}

				server, err := feeder.NewServer(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("rabbitmq URL"))
				Expect(server).To(BeNil())
			})

			It("should return error when queue name is empty", func() {
				config := &feeder.ServerConfig{
					Logger:      logger,
					RabbitMQURL: "amqp://localhost:5672",
					QueueName:   "",
					Interval:    5 * time.Second,
					SensorCount: 4,
				}

				server, err := feeder.NewServer(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("queue name"))
				Expect(server).To(BeNil())
			})

			It("should return error when interval is zero", func() {
				config := &feeder.ServerConfig{
					Logger:      logger,
					RabbitMQURL: "amqp://localhost:5672",
					QueueName:   "readings",
					Interval:    0,
					SensorCount: 4,
				}

				server, err := feeder.NewServer(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("interval"))
				Expect(server).To(BeNil())
			})

			It("should return error when the fleet is empty", func() {
				config := &feeder.ServerConfig{
					Logger:      logger,
					RabbitMQURL: "amqp://localhost:5672",
					QueueName:   "readings",
					Interval:    5 * time.Second,
					SensorCount: 0,
				}

				server, err := feeder.NewServer(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("sensor count"))
				Expect(server).To(BeNil())
			})

			It("should return error when sensor names collide", func() {
				config := &feeder.ServerConfig{
					Logger:      logger,
					RabbitMQURL: "amqp://localhost:5672",
					QueueName:   "readings",
					Interval:    5 * time.Second,
					Sensors: []sensor.Sensor{
						{Name: "Temperature Sensor 1", Kind: sensor.KindTemperature},
						{Name: "Temperature Sensor 1", Kind: sensor.KindTemperature},
					},
				}

				server, err := feeder.NewServer(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("duplicate"))
				Expect(server).To(BeNil())
			})
		})
	})

	Describe("Server Run", func() {
		Context("with context cancellation", func() {
			It("should shutdown when context is canceled", func() {
				config := &feeder.ServerConfig{
					Logger:      logger,
					RabbitMQURL: "amqp://invalid:5672", // Invalid to prevent actual connection
					QueueName:   "readings",
					Interval:    100 * time.Millisecond,
					SensorCount: 2,
				}

				server, err := feeder.NewServer(config)
				Expect(err).NotTo(HaveOccurred())

				ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
				defer cancel()

				done := make(chan error, 1)
				go func() {
					done <- server.Run(ctx)
				}()

				// Should complete within reasonable time after context cancellation
				Eventually(done, 2*time.Second).Should(Receive(BeNil()))
			})

			It("should shutdown immediately with pre-canceled context", func() {
				config := &feeder.ServerConfig{
					Logger:      logger,
					RabbitMQURL: "amqp://invalid:5672",
					QueueName:   "readings",
					Interval:    1 * time.Second,
					SensorCount: 2,
				}

				server, err := feeder.NewServer(config)
				Expect(err).NotTo(HaveOccurred())

				ctx, cancel := context.WithCancel(context.Background())
				cancel() // Cancel before Run

				done := make(chan error, 1)
				go func() {
					done <- server.Run(ctx)
				}()

				// Should complete very quickly
				Eventually(done, 1*time.Second).Should(Receive(BeNil()))
			})
		})
	})

	Describe("Server Shutdown", func() {
		It("should shutdown cleanly", func() {
			config := &feeder.ServerConfig{
				Logger:      logger,
				RabbitMQURL: "amqp://invalid:5672",
				QueueName:   "readings",
				Interval:    1 * time.Second,
				SensorCount: 2,
			}

			server, err := feeder.NewServer(config)
			Expect(err).NotTo(HaveOccurred())

			err = server.Shutdown()
			Expect(err).NotTo(HaveOccurred())
		})

		It("should handle multiple shutdown calls", func() {
			config := &feeder.ServerConfig{
				Logger:      logger,
				RabbitMQURL: "amqp://invalid:5672",
				QueueName:   "readings",
				Interval:    1 * time.Second,
				SensorCount: 2,
			}

			server, err := feeder.NewServer(config)
			Expect(err).NotTo(HaveOccurred())

			err1 := server.Shutdown()
			Expect(err1).NotTo(HaveOccurred())

			err2 := server.Shutdown()
			// Second shutdown should not panic and may return error
			Expect(err2).To(Or(BeNil(), HaveOccurred()))
		})
	})
})
