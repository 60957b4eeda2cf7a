package sensor

import (
	"fmt"
)

// Registry is the immutable catalog of monitored sensors and per-kind
// parameters. It is built once at startup and is safe for concurrent reads.
type Registry struct {
	sensors map[string]*Sensor
	order   []string
	params  map[Kind]Params
}

// NewRegistry builds a registry from the given sensors. Names must be unique
// and non-empty. Overrides replaces per-kind entries of the default params
// table; a nil map keeps the defaults.
func NewRegistry(sensors []Sensor, overrides map[Kind]Params) (*Registry, error) {
	if len(sensors) == 0 {
		return nil, errNoSensors
	}

	r := &Registry{
		sensors: make(map[string]*Sensor, len(sensors)),
		order:   make([]string, 0, len(sensors)),
		params:  DefaultParams(),
	}
	for kind, p := range overrides {
		r.params[kind] = p
	}

	for i := range sensors {
		s := sensors[i]
		if s.Name == "" {
			return nil, fmt.Errorf("sensor %d: name is required", i)
		}
		if _, exists := r.sensors[s.Name]; exists {
			return nil, fmt.Errorf("duplicate sensor name %q", s.Name)
		}
		if s.Thresholds != nil {
			if err := s.Thresholds.Validate(); err != nil {
				return nil, fmt.Errorf("sensor %q: %w", s.Name, err)
			}
		}
		r.sensors[s.Name] = &s
		r.order = append(r.order, s.Name)
	}
	return r, nil
}

// Lookup returns the sensor with the given name.
func (r *Registry) Lookup(name string) (*Sensor, bool) {
	s, ok := r.sensors[name]
	return s, ok
}

// List returns all sensors in registration order.
func (r *Registry) List() []*Sensor {
	out := make([]*Sensor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sensors[name])
	}
	return out
}

// Params returns the behavior table entry for the given kind, falling back to
// generic parameters for unknown kinds.
func (r *Registry) Params(kind Kind) Params {
	if p, ok := r.params[kind]; ok {
		return p
	}
	return fallbackParams
}

// Len returns the number of registered sensors.
func (r *Registry) Len() int {
	return len(r.order)
}
