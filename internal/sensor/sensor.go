// Package sensor defines the facility sensor catalog: sensor identities,
// measurement kinds, alert thresholds, and per-kind behavior parameters.
package sensor

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies what a sensor measures.
type Kind string

const (
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
	KindCO2         Kind = "co2"
	KindLight       Kind = "light"
	// KindUnknown is used for sensors whose kind could not be determined.
	KindUnknown Kind = ""
)

// KindFromName infers a measurement kind from a sensor name.
// Used as a fallback when a sensor is configured without an explicit kind.
func KindFromName(name string) Kind {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "temp"):
		return KindTemperature
	case strings.Contains(n, "humid"):
		return KindHumidity
	case strings.Contains(n, "co2"), strings.Contains(n, "co₂"):
		return KindCO2
	case strings.Contains(n, "light"), strings.Contains(n, "lux"):
		return KindLight
	default:
		return KindUnknown
	}
}

// ThresholdSpec is the acceptable value band for a sensor. Values strictly
// above Max or strictly below Min are out of range; the boundaries themselves
// are in range.
type ThresholdSpec struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Midpoint returns the center of the threshold band.
func (t ThresholdSpec) Midpoint() float64 {
	return (t.Min + t.Max) / 2
}

// Validate checks that the band is well formed.
func (t ThresholdSpec) Validate() error {
	if t.Min >= t.Max {
		return fmt.Errorf("threshold min %v must be below max %v", t.Min, t.Max)
	}
	return nil
}

// Sensor describes one monitored identity. Name is the unique identity used
// throughout the system. Thresholds is nil for sensors that are recorded but
// never evaluated.
type Sensor struct {
	Name       string         `json:"name"`
	Kind       Kind           `json:"kind"`
	Unit       string         `json:"unit"`
	Location   string         `json:"location,omitempty"`
	Serial     string         `json:"serial,omitempty"`
	Thresholds *ThresholdSpec `json:"thresholds,omitempty"`
}

// Definition is the configuration-file shape of a sensor. Min and Max are
// pointers so that an absent band can be told apart from a zero one.
type Definition struct {
	Name     string   `mapstructure:"name"`
	Kind     string   `mapstructure:"kind"`
	Unit     string   `mapstructure:"unit"`
	Location string   `mapstructure:"location"`
	Serial   string   `mapstructure:"serial"`
	Min      *float64 `mapstructure:"min"`
	Max      *float64 `mapstructure:"max"`
}

// FromDefinitions converts configured sensor definitions into sensors.
// A definition with only one of min/max set is rejected. A definition without
// an explicit kind falls back to name inference.
func FromDefinitions(defs []Definition) ([]Sensor, error) {
	sensors := make([]Sensor, 0, len(defs))
	for i, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("sensor %d: name is required", i)
		}
		if (def.Min == nil) != (def.Max == nil) {
			return nil, fmt.Errorf("sensor %q: min and max must be set together", def.Name)
		}

		kind := Kind(def.Kind)
		if kind == KindUnknown {
			kind = KindFromName(def.Name)
		}

		s := Sensor{
			Name:     def.Name,
			Kind:     kind,
			Unit:     def.Unit,
			Location: def.Location,
			Serial:   def.Serial,
		}
		if def.Min != nil {
			spec := ThresholdSpec{Min: *def.Min, Max: *def.Max}
			if err := spec.Validate(); err != nil {
				return nil, fmt.Errorf("sensor %q: %w", def.Name, err)
			}
			s.Thresholds = &spec
		}
		sensors = append(sensors, s)
	}
	return sensors, nil
}

var errNoSensors = errors.New("at least one sensor is required")
