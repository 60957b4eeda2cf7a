package monitor

import (
	"context"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"facilio.dev/envmon/internal/store"
)

// stalledStore blocks snapshot listings until the caller's context expires.
type stalledStore struct {
	store.Store
}

func (s *stalledStore) ListSnapshots(ctx context.Context) ([]store.Snapshot, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

var _ = Describe("replay state", func() {
	var memStore store.Store

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(GinkgoWriter, nil))

		var err error
		memStore, err = store.Open(&store.Config{Logger: logger, Driver: store.DriverMemory})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(memStore.Close()).To(Succeed())
	})

	It("returns non-nil slices for an empty store", func() {
		state, err := stateFunc(memStore, 50, time.Second)(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Snapshots).NotTo(BeNil())
		Expect(state.Snapshots).To(BeEmpty())
		Expect(state.Alerts).NotTo(BeNil())
		Expect(state.Alerts).To(BeEmpty())
	})

	It("replays every snapshot plus the most recent alerts", func() {
		ctx := context.Background()
		Expect(memStore.UpsertSnapshot(ctx, &store.Snapshot{
			UpdatedAt:  time.Now().UTC(),
			SensorName: "Temperature Sensor 1",
			Kind:       "temperature",
			Unit:       "°C",
			Value:      23.4,
		})).To(Succeed())

		base := time.Now().UTC()
		for i := 0; i < 3; i++ {
			Expect(memStore.InsertAlert(ctx, &store.AlertRecord{
				RaisedAt:   base.Add(time.Duration(i) * time.Minute),
				SensorName: "Temperature Sensor 1",
				Status:     store.AlertStatusHigh,
				Value:      29 + float64(i),
			})).To(Succeed())
		}

		state, err := stateFunc(memStore, 2, time.Second)(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Snapshots).To(HaveLen(1))
		Expect(state.Snapshots[0].SensorName).To(Equal("Temperature Sensor 1"))
		Expect(state.Alerts).To(HaveLen(2))
		Expect(state.Alerts[0].Value).To(Equal(31.0))
	})

	It("gives up on a stalled store instead of blocking the subscriber", func() {
		st := &stalledStore{Store: memStore}

		start := time.Now()
		_, err := stateFunc(st, 50, 50*time.Millisecond)(context.Background())
		Expect(err).To(MatchError(ContainSubstring("context deadline exceeded")))
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
	})
})
