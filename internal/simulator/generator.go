// Package simulator synthesizes plausible sensor readings and feeds them
// through the ingestion pipeline on a fixed cadence.
package simulator

import (
	"math"
	"math/rand"

	"facilio.dev/envmon/internal/sensor"
)

// clampMargin bounds generated values to this many drift steps beyond the
// threshold band, so spikes read as anomalies rather than garbage.
const clampMargin = 6

// Next produces the next synthetic value for a sensor. The walk starts from
// the current snapshot value, or from the threshold midpoint when the sensor
// has no snapshot yet. With probability params.SpikeChance the value jumps
// beyond a threshold bound instead. The result is rounded to two decimals.
// The second return reports whether a spike was generated.
func Next(s *sensor.Sensor, params sensor.Params, current *float64) (float64, bool) {
	spec := s.Thresholds

	baseline := spec.Midpoint()
	if current != nil {
		baseline = *current
	}

	value := baseline + (rand.Float64()*2-1)*params.Drift

	spiked := false
	if rand.Float64() < params.SpikeChance {
		spiked = true
		overshoot := params.Drift * (1 + rand.Float64()*(clampMargin-2))
		if rand.Float64() < 0.5 {
			value = spec.Max + overshoot
		} else {
			value = spec.Min - overshoot
		}
	}

	floor := spec.Min - clampMargin*params.Drift
	ceil := spec.Max + clampMargin*params.Drift
	value = math.Max(floor, math.Min(ceil, value))

	return math.Round(value*100) / 100, spiked
}
