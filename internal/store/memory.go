package store

import (
	"context"
	"sort"
	"sync"
)

// Per-sensor history and alert log caps for the in-memory store. Oldest
// entries are discarded once a cap is reached.
const (
	memoryReadingCap = 1000
	memoryAlertCap   = 1000
)

// Memory is an in-memory Store used for local runs and tests.
type Memory struct {
	mu        sync.RWMutex
	readings  map[string][]Reading
	snapshots map[string]Snapshot
	alerts    []AlertRecord
	lastAlert map[string]AlertRecord
	nextID    uint
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		readings:  make(map[string][]Reading),
		snapshots: make(map[string]Snapshot),
		lastAlert: make(map[string]AlertRecord),
		nextID:    1,
	}
}

// InsertReading appends one reading to the history.
func (m *Memory) InsertReading(_ context.Context, reading *Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *reading
	r.ID = m.nextID
	m.nextID++
	reading.ID = r.ID

	history := append(m.readings[r.SensorName], r)
	if len(history) > memoryReadingCap {
		history = history[len(history)-memoryReadingCap:]
	}
	m.readings[r.SensorName] = history
	return nil
}

// UpsertSnapshot creates or replaces the per-sensor latest value.
func (m *Memory) UpsertSnapshot(_ context.Context, snapshot *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := *snapshot
	if existing, ok := m.snapshots[s.SensorName]; ok {
		s.ID = existing.ID
	} else {
		s.ID = m.nextID
		m.nextID++
	}
	snapshot.ID = s.ID
	m.snapshots[s.SensorName] = s
	return nil
}

// ListSnapshots returns all snapshots ordered by sensor name.
func (m *Memory) ListSnapshots(_ context.Context) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SensorName < out[j].SensorName
	})
	return out, nil
}

// ListReadings returns up to limit readings for one sensor, most recent first.
func (m *Memory) ListReadings(_ context.Context, sensorName string, limit int) ([]Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.readings[sensorName]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}

	out := make([]Reading, 0, limit)
	for i := len(history) - 1; i >= len(history)-limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

// InsertAlert appends one alert to the log.
func (m *Memory) InsertAlert(_ context.Context, alert *AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := *alert
	a.ID = m.nextID
	m.nextID++
	alert.ID = a.ID

	m.alerts = append(m.alerts, a)
	if len(m.alerts) > memoryAlertCap {
		m.alerts = m.alerts[len(m.alerts)-memoryAlertCap:]
	}
	m.lastAlert[a.SensorName] = a
	return nil
}

// MostRecentAlert returns the newest alert for one sensor, or nil when the
// sensor has never alerted.
func (m *Memory) MostRecentAlert(_ context.Context, sensorName string) (*AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.lastAlert[sensorName]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// ListAlerts returns up to limit alerts across all sensors, most recent first.
func (m *Memory) ListAlerts(_ context.Context, limit int) ([]AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.alerts) {
		limit = len(m.alerts)
	}

	out := make([]AlertRecord, 0, limit)
	for i := len(m.alerts) - 1; i >= len(m.alerts)-limit; i-- {
		out = append(out, m.alerts[i])
	}
	return out, nil
}

// ClearAlerts removes all alerts.
func (m *Memory) ClearAlerts(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.alerts = nil
	m.lastAlert = make(map[string]AlertRecord)
	return nil
}

// Ping always succeeds for the in-memory store.
func (m *Memory) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
