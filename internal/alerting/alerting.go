// Package alerting decides when an out-of-range reading becomes an alert.
package alerting

import (
	"errors"
	"fmt"
	"math"
	"time"

	"facilio.dev/envmon/internal/sensor"
	"facilio.dev/envmon/internal/store"
)

// DefaultCooldown is the window within which repeat alerts of the same status
// and similar magnitude are suppressed.
const DefaultCooldown = 2 * time.Minute

// Evaluate classifies value against the sensor's thresholds. Sensors without
// thresholds never produce alerts, and values on a boundary are in range.
func Evaluate(s *sensor.Sensor, value float64) store.AlertStatus {
	if s == nil || s.Thresholds == nil {
		return store.AlertStatusNone
	}
	switch {
	case value > s.Thresholds.Max:
		return store.AlertStatusHigh
	case value < s.Thresholds.Min:
		return store.AlertStatusLow
	default:
		return store.AlertStatusNone
	}
}

// Message renders the human-readable description of an out-of-range reading.
func Message(s *sensor.Sensor, value float64, status store.AlertStatus) string {
	if s == nil || s.Thresholds == nil {
		return ""
	}
	switch status {
	case store.AlertStatusHigh:
		return fmt.Sprintf("%s reads %.2f %s, above maximum %.2f", s.Name, value, s.Unit, s.Thresholds.Max)
	case store.AlertStatusLow:
		return fmt.Sprintf("%s reads %.2f %s, below minimum %.2f", s.Name, value, s.Unit, s.Thresholds.Min)
	default:
		return ""
	}
}

// Deduplicator suppresses repeat alerts for conditions that were already
// reported moments ago.
type Deduplicator struct {
	registry *sensor.Registry
	cooldown time.Duration
}

// NewDeduplicator creates a deduplicator using the registry's per-kind minimum
// deltas. A non-positive cooldown selects DefaultCooldown.
func NewDeduplicator(registry *sensor.Registry, cooldown time.Duration) (*Deduplicator, error) {
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Deduplicator{registry: registry, cooldown: cooldown}, nil
}

// Cooldown returns the configured suppression window.
func (d *Deduplicator) Cooldown() time.Duration {
	return d.cooldown
}

// ShouldRaise reports whether an out-of-range reading warrants a new alert,
// given the sensor's most recent alert. A repeat is suppressed only when the
// previous alert has the same status, the value moved less than the kind's
// minimum delta, and the previous alert is still within the cooldown window.
// A status flip or a large excursion always raises.
func (d *Deduplicator) ShouldRaise(s *sensor.Sensor, value float64, status store.AlertStatus, last *store.AlertRecord, now time.Time) bool {
	if status == store.AlertStatusNone {
		return false
	}
	if last == nil {
		return true
	}
	if last.Status != status {
		return true
	}
	if math.Abs(value-last.Value) >= d.registry.Params(s.Kind).MinDelta {
		return true
	}
	return now.Sub(last.RaisedAt) >= d.cooldown
}
