package alerting_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"facilio.dev/envmon/internal/alerting"
	"facilio.dev/envmon/internal/sensor"
	"facilio.dev/envmon/internal/store"
)

func tempSensor() *sensor.Sensor {
	return &sensor.Sensor{
		Name:       "Temperature Sensor 1",
		Kind:       sensor.KindTemperature,
		Unit:       "°C",
		Thresholds: &sensor.ThresholdSpec{Min: 18, Max: 28},
	}
}

var _ = Describe("Evaluate", func() {
	DescribeTable("should classify values against thresholds",
		func(value float64, expected store.AlertStatus) {
			Expect(alerting.Evaluate(tempSensor(), value)).To(Equal(expected))
		},
		Entry("value above max", 30.0, store.AlertStatusHigh),
		Entry("value barely above max", 28.01, store.AlertStatusHigh),
		Entry("value below min", 15.0, store.AlertStatusLow),
		Entry("value barely below min", 17.99, store.AlertStatusLow),
		Entry("value inside the band", 23.0, store.AlertStatusNone),
		Entry("value exactly at max", 28.0, store.AlertStatusNone),
		Entry("value exactly at min", 18.0, store.AlertStatusNone),
	)

	It("should never alert for a sensor without thresholds", func() {
		s := &sensor.Sensor{Name: "Door Sensor 1"}
		Expect(alerting.Evaluate(s, 1e9)).To(Equal(store.AlertStatusNone))
		Expect(alerting.Evaluate(s, -1e9)).To(Equal(store.AlertStatusNone))
	})

	It("should never alert for a nil sensor", func() {
		Expect(alerting.Evaluate(nil, 42)).To(Equal(store.AlertStatusNone))
	})
})

var _ = Describe("Message", func() {
	It("should describe a high excursion", func() {
		msg := alerting.Message(tempSensor(), 30, store.AlertStatusHigh)
		Expect(msg).To(ContainSubstring("Temperature Sensor 1"))
		Expect(msg).To(ContainSubstring("above maximum 28.00"))
	})

	It("should describe a low excursion", func() {
		msg := alerting.Message(tempSensor(), 15, store.AlertStatusLow)
		Expect(msg).To(ContainSubstring("below minimum 18.00"))
	})

	It("should return an empty message for an in-range status", func() {
		Expect(alerting.Message(tempSensor(), 23, store.AlertStatusNone)).To(BeEmpty())
	})
})

var _ = Describe("Deduplicator", func() {
	var (
		dedup *alerting.Deduplicator
		now   time.Time
	)

	BeforeEach(func() {
		reg, err := sensor.NewRegistry([]sensor.Sensor{*tempSensor()}, nil)
		Expect(err).NotTo(HaveOccurred())

		dedup, err = alerting.NewDeduplicator(reg, 2*time.Minute)
		Expect(err).NotTo(HaveOccurred())

		now = time.Date(2025, 6, 12, 10, 30, 0, 0, time.UTC)
	})

	lastAlert := func(status store.AlertStatus, value float64, age time.Duration) *store.AlertRecord {
		return &store.AlertRecord{
			RaisedAt:   now.Add(-age),
			SensorName: "Temperature Sensor 1",
			Status:     status,
			Value:      value,
		}
	}

	Describe("NewDeduplicator", func() {
		It("should reject a nil registry", func() {
			_, err := alerting.NewDeduplicator(nil, time.Minute)
			Expect(err).To(HaveOccurred())
		})

		It("should default the cooldown when non-positive", func() {
			reg, err := sensor.NewRegistry([]sensor.Sensor{*tempSensor()}, nil)
			Expect(err).NotTo(HaveOccurred())

			d, err := alerting.NewDeduplicator(reg, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Cooldown()).To(Equal(alerting.DefaultCooldown))
		})
	})

	Describe("ShouldRaise", func() {
		Context("with no previous alert", func() {
			It("should raise", func() {
				raise := dedup.ShouldRaise(tempSensor(), 30, store.AlertStatusHigh, nil, now)
				Expect(raise).To(BeTrue())
			})
		})

		Context("with a recent alert of the same status and similar value", func() {
			It("should suppress", func() {
				last := lastAlert(store.AlertStatusHigh, 30, 10*time.Second)
				raise := dedup.ShouldRaise(tempSensor(), 30.2, store.AlertStatusHigh, last, now)
				Expect(raise).To(BeFalse())
			})
		})

		Context("with a status flip", func() {
			It("should raise even within the cooldown", func() {
				last := lastAlert(store.AlertStatusHigh, 30, 10*time.Second)
				raise := dedup.ShouldRaise(tempSensor(), 15, store.AlertStatusLow, last, now)
				Expect(raise).To(BeTrue())
			})
		})

		Context("with a large value swing of the same status", func() {
			It("should raise even within the cooldown", func() {
				last := lastAlert(store.AlertStatusHigh, 30, 10*time.Second)
				raise := dedup.ShouldRaise(tempSensor(), 31, store.AlertStatusHigh, last, now)
				Expect(raise).To(BeTrue())
			})

			It("should raise at exactly the minimum delta", func() {
				last := lastAlert(store.AlertStatusHigh, 30, 10*time.Second)
				raise := dedup.ShouldRaise(tempSensor(), 30.5, store.AlertStatusHigh, last, now)
				Expect(raise).To(BeTrue())
			})

			It("should raise for a swing in either direction", func() {
				last := lastAlert(store.AlertStatusHigh, 30, 10*time.Second)
				raise := dedup.ShouldRaise(tempSensor(), 29.4, store.AlertStatusHigh, last, now)
				Expect(raise).To(BeTrue())
			})
		})

		Context("with an expired cooldown", func() {
			It("should raise for a repeat of the same condition", func() {
				last := lastAlert(store.AlertStatusHigh, 30, 3*time.Minute)
				raise := dedup.ShouldRaise(tempSensor(), 30.1, store.AlertStatusHigh, last, now)
				Expect(raise).To(BeTrue())
			})

			It("should raise at exactly the cooldown boundary", func() {
				last := lastAlert(store.AlertStatusHigh, 30, 2*time.Minute)
				raise := dedup.ShouldRaise(tempSensor(), 30.1, store.AlertStatusHigh, last, now)
				Expect(raise).To(BeTrue())
			})
		})

		Context("with an in-range status", func() {
			It("should never raise", func() {
				raise := dedup.ShouldRaise(tempSensor(), 23, store.AlertStatusNone, nil, now)
				Expect(raise).To(BeFalse())
			})
		})

		Context("with a sensor of an unknown kind", func() {
			It("should apply the fallback minimum delta", func() {
				s := &sensor.Sensor{
					Name:       "Pressure Sensor 1",
					Kind:       sensor.KindUnknown,
					Thresholds: &sensor.ThresholdSpec{Min: 980, Max: 1040},
				}
				last := &store.AlertRecord{
					RaisedAt: now.Add(-10 * time.Second),
					Status:   store.AlertStatusHigh,
					Value:    1041,
				}

				// Below the fallback delta of 1.0: suppressed.
				Expect(dedup.ShouldRaise(s, 1041.5, store.AlertStatusHigh, last, now)).To(BeFalse())
				// At the fallback delta: raised.
				Expect(dedup.ShouldRaise(s, 1042, store.AlertStatusHigh, last, now)).To(BeTrue())
			})
		})
	})
})
