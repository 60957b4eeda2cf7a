package pipeline_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"facilio.dev/envmon/internal/alerting"
	"facilio.dev/envmon/internal/bus"
	"facilio.dev/envmon/internal/pipeline"
	"facilio.dev/envmon/internal/sensor"
	"facilio.dev/envmon/internal/store"
	"facilio.dev/envmon/pkg/logger"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []bus.Event
}

func (c *capturePublisher) Publish(event bus.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *capturePublisher) Events() []bus.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]bus.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *capturePublisher) Kinds() []bus.EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]bus.EventKind, 0, len(c.events))
	for _, e := range c.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// flakyStore wraps a Store and fails selected operations.
type flakyStore struct {
	store.Store
	failInsertReading  bool
	failUpsertSnapshot bool
	failMostRecent     bool
	failInsertAlert    bool
	failClearAlerts    bool
}

var errStoreDown = errors.New("store down")

func (f *flakyStore) InsertReading(ctx context.Context, reading *store.Reading) error {
	if f.failInsertReading {
		return errStoreDown
	}
	return f.Store.InsertReading(ctx, reading)
}

func (f *flakyStore) UpsertSnapshot(ctx context.Context, snapshot *store.Snapshot) error {
	if f.failUpsertSnapshot {
		return errStoreDown
	}
	return f.Store.UpsertSnapshot(ctx, snapshot)
}

func (f *flakyStore) MostRecentAlert(ctx context.Context, sensorName string) (*store.AlertRecord, error) {
	if f.failMostRecent {
		return nil, errStoreDown
	}
	return f.Store.MostRecentAlert(ctx, sensorName)
}

func (f *flakyStore) InsertAlert(ctx context.Context, alert *store.AlertRecord) error {
	if f.failInsertAlert {
		return errStoreDown
	}
	return f.Store.InsertAlert(ctx, alert)
}

func (f *flakyStore) ClearAlerts(ctx context.Context) error {
	if f.failClearAlerts {
		return errStoreDown
	}
	return f.Store.ClearAlerts(ctx)
}

var _ = Describe("Pipeline", func() {
	var (
		ctx       context.Context
		mem       *store.Memory
		flaky     *flakyStore
		published *capturePublisher
		pipe      *pipeline.Pipeline
	)

	sensors := []sensor.Sensor{
		{Name: "Temperature Sensor 1", Kind: sensor.KindTemperature, Unit: "°C",
			Thresholds: &sensor.ThresholdSpec{Min: 18, Max: 28}},
		{Name: "CO2 Sensor 1", Kind: sensor.KindCO2, Unit: "ppm",
			Thresholds: &sensor.ThresholdSpec{Min: 400, Max: 1000}},
		{Name: "Door Sensor 1", Kind: sensor.KindUnknown},
	}

	newPipeline := func() *pipeline.Pipeline {
		reg, err := sensor.NewRegistry(sensors, nil)
		Expect(err).NotTo(HaveOccurred())

		dedup, err := alerting.NewDeduplicator(reg, 2*time.Minute)
		Expect(err).NotTo(HaveOccurred())

		p, err := pipeline.New(&pipeline.Config{
			Logger:       logger.NewDefault(),
			Registry:     reg,
			Store:        flaky,
			Publisher:    published,
			Deduplicator: dedup,
		})
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	ingest := func(name string, value float64) (*store.Snapshot, error) {
		return pipe.Ingest(ctx, pipeline.SourceHTTP, pipeline.Submission{
			SensorName: name,
			Value:      value,
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		mem = store.NewMemory()
		flaky = &flakyStore{Store: mem}
		published = &capturePublisher{}
		pipe = newPipeline()
	})

	Describe("New", func() {
		It("should reject a nil config", func() {
			_, err := pipeline.New(nil)
			Expect(err).To(HaveOccurred())
		})

		It("should validate required dependencies", func() {
			reg, err := sensor.NewRegistry(sensors, nil)
			Expect(err).NotTo(HaveOccurred())
			dedup, err := alerting.NewDeduplicator(reg, 0)
			Expect(err).NotTo(HaveOccurred())

			base := pipeline.Config{
				Logger:       logger.NewDefault(),
				Registry:     reg,
				Store:        mem,
				Publisher:    published,
				Deduplicator: dedup,
			}

			for _, tc := range []struct {
				name   string
				mutate func(*pipeline.Config)
			}{
				{"logger", func(c *pipeline.Config) { c.Logger = nil }},
				{"registry", func(c *pipeline.Config) { c.Registry = nil }},
				{"store", func(c *pipeline.Config) { c.Store = nil }},
				{"publisher", func(c *pipeline.Config) { c.Publisher = nil }},
				{"deduplicator", func(c *pipeline.Config) { c.Deduplicator = nil }},
			} {
				cfg := base
				tc.mutate(&cfg)
				_, err := pipeline.New(&cfg)
				Expect(err).To(HaveOccurred(), tc.name)
				Expect(err.Error()).To(ContainSubstring(tc.name))
			}
		})
	})

	Describe("Ingest", func() {
		Context("with an in-range reading", func() {
			It("should persist the reading and snapshot and publish one event", func() {
				snapshot, err := ingest("Temperature Sensor 1", 22.5)
				Expect(err).NotTo(HaveOccurred())
				Expect(snapshot.Value).To(Equal(22.5))
				Expect(snapshot.Unit).To(Equal("°C"))
				Expect(snapshot.Kind).To(Equal("temperature"))

				readings, err := mem.ListReadings(ctx, "Temperature Sensor 1", 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(readings).To(HaveLen(1))
				Expect(readings[0].Value).To(Equal(22.5))

				snapshots, err := mem.ListSnapshots(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(snapshots).To(HaveLen(1))

				Expect(published.Kinds()).To(Equal([]bus.EventKind{bus.EventReadingUpdated}))

				alerts, err := mem.ListAlerts(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(BeEmpty())
			})

			It("should stamp reading and snapshot with the same UTC timestamp", func() {
				snapshot, err := ingest("Temperature Sensor 1", 22.5)
				Expect(err).NotTo(HaveOccurred())

				readings, err := mem.ListReadings(ctx, "Temperature Sensor 1", 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(readings[0].Timestamp).To(Equal(snapshot.UpdatedAt))
				Expect(snapshot.UpdatedAt.Location()).To(Equal(time.UTC))
			})

			It("should replace the snapshot on repeated ingests", func() {
				_, err := ingest("Temperature Sensor 1", 22.5)
				Expect(err).NotTo(HaveOccurred())
				_, err = ingest("Temperature Sensor 1", 23.1)
				Expect(err).NotTo(HaveOccurred())

				snapshots, err := mem.ListSnapshots(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(snapshots).To(HaveLen(1))
				Expect(snapshots[0].Value).To(Equal(23.1))

				readings, err := mem.ListReadings(ctx, "Temperature Sensor 1", 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(readings).To(HaveLen(2))
			})
		})

		Context("with a reading above the maximum", func() {
			It("should raise a high alert and publish both events", func() {
				_, err := ingest("Temperature Sensor 1", 30)
				Expect(err).NotTo(HaveOccurred())

				Expect(published.Kinds()).To(Equal([]bus.EventKind{
					bus.EventReadingUpdated,
					bus.EventAlertRaised,
				}))

				alerts, err := mem.ListAlerts(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(HaveLen(1))
				Expect(alerts[0].Status).To(Equal(store.AlertStatusHigh))
				Expect(alerts[0].Value).To(Equal(30.0))
				Expect(alerts[0].Message).To(ContainSubstring("above maximum 28.00"))
			})
		})

		Context("with a reading below the minimum", func() {
			It("should raise a low alert", func() {
				_, err := ingest("Temperature Sensor 1", 15)
				Expect(err).NotTo(HaveOccurred())

				alerts, err := mem.ListAlerts(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(HaveLen(1))
				Expect(alerts[0].Status).To(Equal(store.AlertStatusLow))
				Expect(alerts[0].Message).To(ContainSubstring("below minimum 18.00"))
			})
		})

		Context("with a reading exactly on a boundary", func() {
			It("should not alert at the maximum", func() {
				_, err := ingest("Temperature Sensor 1", 28)
				Expect(err).NotTo(HaveOccurred())

				alerts, err := mem.ListAlerts(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(BeEmpty())
			})

			It("should not alert at the minimum", func() {
				_, err := ingest("Temperature Sensor 1", 18)
				Expect(err).NotTo(HaveOccurred())

				alerts, err := mem.ListAlerts(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(BeEmpty())
			})
		})

		Context("with a repeat of the same excursion within the cooldown", func() {
			It("should record the reading but suppress the alert", func() {
				_, err := ingest("Temperature Sensor 1", 30)
				Expect(err).NotTo(HaveOccurred())
				_, err = ingest("Temperature Sensor 1", 30.2)
				Expect(err).NotTo(HaveOccurred())

				readings, err := mem.ListReadings(ctx, "Temperature Sensor 1", 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(readings).To(HaveLen(2))

				snapshots, err := mem.ListSnapshots(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(snapshots[0].Value).To(Equal(30.2))

				alerts, err := mem.ListAlerts(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(HaveLen(1))

				Expect(published.Kinds()).To(Equal([]bus.EventKind{
					bus.EventReadingUpdated,
					bus.EventAlertRaised,
					bus.EventReadingUpdated,
				}))
			})
		})

		Context("with a status flip inside the cooldown", func() {
			It("should raise the new alert immediately", func() {
				_, err := ingest("Temperature Sensor 1", 30)
				Expect(err).NotTo(HaveOccurred())
				_, err = ingest("Temperature Sensor 1", 15)
				Expect(err).NotTo(HaveOccurred())

				alerts, err := mem.ListAlerts(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(HaveLen(2))
				Expect(alerts[0].Status).To(Equal(store.AlertStatusLow))
				Expect(alerts[1].Status).To(Equal(store.AlertStatusHigh))
			})
		})

		Context("with a large swing of the same status inside the cooldown", func() {
			It("should raise again", func() {
				_, err := ingest("Temperature Sensor 1", 30)
				Expect(err).NotTo(HaveOccurred())
				_, err = ingest("Temperature Sensor 1", 31)
				Expect(err).NotTo(HaveOccurred())

				alerts, err := mem.ListAlerts(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(HaveLen(2))
			})
		})

		Context("with the previous alert older than the cooldown", func() {
			It("should raise a repeat of the same condition", func() {
				old := &store.AlertRecord{
					RaisedAt:   time.Now().UTC().Add(-3 * time.Minute),
					SensorName: "Temperature Sensor 1",
					Kind:       "temperature",
					Status:     store.AlertStatusHigh,
					Value:      30,
				}
				Expect(mem.InsertAlert(ctx, old)).To(Succeed())

				_, err := ingest("Temperature Sensor 1", 30.1)
				Expect(err).NotTo(HaveOccurred())

				alerts, err := mem.ListAlerts(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(HaveLen(2))
			})
		})

		Context("with a sensor that has no thresholds", func() {
			It("should accept any value and never alert", func() {
				_, err := ingest("Door Sensor 1", 1e9)
				Expect(err).NotTo(HaveOccurred())

				alerts, err := mem.ListAlerts(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(BeEmpty())
			})

			It("should take the unit from the submission", func() {
				snapshot, err := pipe.Ingest(ctx, pipeline.SourceHTTP, pipeline.Submission{
					SensorName: "Door Sensor 1",
					Value:      1,
					Unit:       "state",
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(snapshot.Unit).To(Equal("state"))
			})
		})

		Context("with invalid input", func() {
			DescribeTable("should reject the submission without touching the store",
				func(sub pipeline.Submission, fragment string) {
					_, err := pipe.Ingest(ctx, pipeline.SourceHTTP, sub)
					Expect(err).To(HaveOccurred())
					Expect(errors.Is(err, pipeline.ErrInvalidInput)).To(BeTrue())
					Expect(err.Error()).To(ContainSubstring(fragment))

					snapshots, serr := mem.ListSnapshots(ctx)
					Expect(serr).NotTo(HaveOccurred())
					Expect(snapshots).To(BeEmpty())
					Expect(published.Events()).To(BeEmpty())
				},
				Entry("empty sensor id",
					pipeline.Submission{Value: 20}, "sensor id"),
				Entry("NaN value",
					pipeline.Submission{SensorName: "Temperature Sensor 1", Value: math.NaN()}, "finite"),
				Entry("positive infinity",
					pipeline.Submission{SensorName: "Temperature Sensor 1", Value: math.Inf(1)}, "finite"),
				Entry("negative infinity",
					pipeline.Submission{SensorName: "Temperature Sensor 1", Value: math.Inf(-1)}, "finite"),
				Entry("unknown sensor",
					pipeline.Submission{SensorName: "No Such Sensor", Value: 20}, "No Such Sensor"),
			)
		})

		Context("when inserting the reading fails", func() {
			It("should fail with ErrStoreUnavailable and publish nothing", func() {
				flaky.failInsertReading = true

				_, err := ingest("Temperature Sensor 1", 22.5)
				Expect(err).To(HaveOccurred())
				Expect(errors.Is(err, pipeline.ErrStoreUnavailable)).To(BeTrue())
				Expect(published.Events()).To(BeEmpty())

				snapshots, serr := mem.ListSnapshots(ctx)
				Expect(serr).NotTo(HaveOccurred())
				Expect(snapshots).To(BeEmpty())
			})
		})

		Context("when upserting the snapshot fails", func() {
			It("should fail with ErrStoreUnavailable but keep the reading", func() {
				flaky.failUpsertSnapshot = true

				_, err := ingest("Temperature Sensor 1", 22.5)
				Expect(err).To(HaveOccurred())
				Expect(errors.Is(err, pipeline.ErrStoreUnavailable)).To(BeTrue())
				Expect(published.Events()).To(BeEmpty())

				readings, serr := mem.ListReadings(ctx, "Temperature Sensor 1", 0)
				Expect(serr).NotTo(HaveOccurred())
				Expect(readings).To(HaveLen(1))
			})
		})

		Context("when the alert lookup fails", func() {
			It("should keep the ingest successful and skip the alert", func() {
				flaky.failMostRecent = true

				snapshot, err := ingest("Temperature Sensor 1", 30)
				Expect(err).NotTo(HaveOccurred())
				Expect(snapshot.Value).To(Equal(30.0))

				Expect(published.Kinds()).To(Equal([]bus.EventKind{bus.EventReadingUpdated}))

				alerts, serr := mem.ListAlerts(ctx, 0)
				Expect(serr).NotTo(HaveOccurred())
				Expect(alerts).To(BeEmpty())
			})
		})

		Context("when inserting the alert fails", func() {
			It("should keep the ingest successful and publish no alert event", func() {
				flaky.failInsertAlert = true

				_, err := ingest("Temperature Sensor 1", 30)
				Expect(err).NotTo(HaveOccurred())

				Expect(published.Kinds()).To(Equal([]bus.EventKind{bus.EventReadingUpdated}))
			})
		})

		Context("with concurrent submissions for one sensor", func() {
			It("should raise exactly one alert for identical excursions", func() {
				const n = 16
				var wg sync.WaitGroup
				wg.Add(n)
				for i := 0; i < n; i++ {
					go func() {
						defer GinkgoRecover()
						defer wg.Done()
						_, err := ingest("Temperature Sensor 1", 30)
						Expect(err).NotTo(HaveOccurred())
					}()
				}
				wg.Wait()

				readings, err := mem.ListReadings(ctx, "Temperature Sensor 1", 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(readings).To(HaveLen(n))

				alerts, err := mem.ListAlerts(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(alerts).To(HaveLen(1))
			})
		})
	})

	Describe("ClearAlerts", func() {
		It("should empty the alert log and publish alerts-cleared", func() {
			_, err := ingest("Temperature Sensor 1", 30)
			Expect(err).NotTo(HaveOccurred())

			Expect(pipe.ClearAlerts(ctx)).To(Succeed())

			alerts, err := mem.ListAlerts(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(BeEmpty())

			kinds := published.Kinds()
			Expect(kinds[len(kinds)-1]).To(Equal(bus.EventAlertsCleared))
		})

		It("should allow a fresh alert for a condition cleared moments ago", func() {
			_, err := ingest("Temperature Sensor 1", 30)
			Expect(err).NotTo(HaveOccurred())
			Expect(pipe.ClearAlerts(ctx)).To(Succeed())

			_, err = ingest("Temperature Sensor 1", 30.05)
			Expect(err).NotTo(HaveOccurred())

			alerts, err := mem.ListAlerts(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(alerts).To(HaveLen(1))
		})

		It("should fail with ErrStoreUnavailable and publish nothing on store failure", func() {
			flaky.failClearAlerts = true

			err := pipe.ClearAlerts(ctx)
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, pipeline.ErrStoreUnavailable)).To(BeTrue())
			Expect(published.Events()).To(BeEmpty())
		})
	})
})
