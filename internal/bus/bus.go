// Package bus fans monitor events out to connected subscribers. Every
// subscriber receives every event on its own buffered queue; a subscriber
// that falls behind loses events rather than slowing anyone down.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"facilio.dev/envmon/internal/store"
	"facilio.dev/envmon/pkg/metrics"
)

// EventKind names the fan-out event types.
type EventKind string

const (
	// EventReadingUpdated carries the refreshed snapshot after an accepted reading.
	EventReadingUpdated EventKind = "reading-updated"
	// EventAlertRaised carries a newly raised alert.
	EventAlertRaised EventKind = "alert-raised"
	// EventAlertsCleared signals that the alert log was emptied.
	EventAlertsCleared EventKind = "alerts-cleared"
	// EventState carries the connect-time replay payload. It is only ever the
	// first event on a subscription.
	EventState EventKind = "state"
)

// DefaultBuffer is the per-subscriber queue depth.
const DefaultBuffer = 64

// Event is one fan-out message. Exactly one payload field is set, matching Kind.
type Event struct {
	Kind     EventKind          `json:"kind"`
	Snapshot *store.Snapshot    `json:"snapshot,omitempty"`
	Alert    *store.AlertRecord `json:"alert,omitempty"`
	State    *State             `json:"state,omitempty"`
}

// State is the connect-time replay payload: the full snapshot set and the most
// recent alerts.
type State struct {
	Snapshots []store.Snapshot    `json:"snapshots"`
	Alerts    []store.AlertRecord `json:"alerts"`
}

// ReadingUpdated builds a reading-updated event.
func ReadingUpdated(snapshot *store.Snapshot) Event {
	return Event{Kind: EventReadingUpdated, Snapshot: snapshot}
}

// AlertRaised builds an alert-raised event.
func AlertRaised(alert *store.AlertRecord) Event {
	return Event{Kind: EventAlertRaised, Alert: alert}
}

// AlertsCleared builds an alerts-cleared event.
func AlertsCleared() Event {
	return Event{Kind: EventAlertsCleared}
}

// StateFunc produces the current state for connect-time replay.
type StateFunc func(ctx context.Context) (*State, error)

// Config holds the bus configuration.
type Config struct {
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *metrics.BusMetrics
	// State is called on every subscribe to build the replay payload. May be
	// nil, in which case subscribers start with deltas only.
	State StateFunc
	// Buffer is the per-subscriber queue depth (defaults to DefaultBuffer).
	Buffer int
}

// Subscription is one subscriber's feed. C is closed on Unsubscribe and on
// bus shutdown.
type Subscription struct {
	ID string
	C  <-chan Event
}

// Bus is the global broadcast hub.
type Bus struct {
	logger  *slog.Logger
	metrics *metrics.BusMetrics
	stateFn StateFunc
	buffer  int

	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
}

var errBusClosed = errors.New("bus is closed")

// New creates a bus from the given configuration.
func New(cfg *Config) (*Bus, error) {
	if cfg == nil {
		return nil, errors.New("bus config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	return &Bus{
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		stateFn:     cfg.State,
		buffer:      buffer,
		subscribers: make(map[string]chan Event),
	}, nil
}

// Subscribe registers a new subscriber and seeds its queue with a state event.
// The state is read and the subscriber registered under one critical section,
// so no published event can fall between the replay payload and the first
// delta.
func (b *Bus) Subscribe(ctx context.Context) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errBusClosed
	}

	ch := make(chan Event, b.buffer)
	if b.stateFn != nil {
		start := time.Now()
		state, err := b.stateFn(ctx)
		if err != nil {
			return nil, err
		}
		ch <- Event{Kind: EventState, State: state}
		if b.metrics != nil {
			b.metrics.ReplayDuration.Observe(time.Since(start).Seconds())
		}
	}

	id := uuid.NewString()
	b.subscribers[id] = ch

	if b.metrics != nil {
		b.metrics.SubscribersActive.Inc()
		b.metrics.SubscribersTotal.Inc()
	}
	b.logger.Debug("subscriber connected", "subscriber", id, "total", len(b.subscribers))

	return &Subscription{ID: id, C: ch}, nil
}

// Unsubscribe removes a subscriber and closes its queue. Unknown ids are
// ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[id]
	if !ok {
		return
	}
	delete(b.subscribers, id)
	close(ch)

	if b.metrics != nil {
		b.metrics.SubscribersActive.Dec()
	}
	b.logger.Debug("subscriber disconnected", "subscriber", id, "total", len(b.subscribers))
}

// Publish delivers the event to every subscriber queue without blocking.
// Events for full queues are dropped.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	dropped := 0
	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			dropped++
			b.logger.Debug("subscriber queue full, dropping event",
				"subscriber", id,
				"kind", string(event.Kind),
			)
		}
	}

	if b.metrics != nil {
		b.metrics.EventsPublished.WithLabelValues(string(event.Kind)).Inc()
		if dropped > 0 {
			b.metrics.EventsDropped.WithLabelValues(string(event.Kind)).Add(float64(dropped))
		}
	}
}

// Len returns the number of connected subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close disconnects all subscribers and rejects further subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
	if b.metrics != nil {
		b.metrics.SubscribersActive.Set(0)
	}
	b.logger.Info("bus closed")
}
