package sensor

import (
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
)

// fleetMeta carries the randomly generated identity of a demo sensor.
type fleetMeta struct {
	Serial   string `fake:"{uuid}"`
	Location string `fake:"{city}, {state}"`
}

// kindDefaults holds per-kind demo units and threshold bands.
var kindDefaults = map[Kind]struct {
	Unit       string
	Thresholds ThresholdSpec
}{
	KindTemperature: {Unit: "°C", Thresholds: ThresholdSpec{Min: 18, Max: 28}},
	KindHumidity:    {Unit: "%", Thresholds: ThresholdSpec{Min: 30, Max: 60}},
	KindCO2:         {Unit: "ppm", Thresholds: ThresholdSpec{Min: 400, Max: 1000}},
	KindLight:       {Unit: "lux", Thresholds: ThresholdSpec{Min: 200, Max: 800}},
}

// demoKinds fixes the round-robin order of the demo fleet.
var demoKinds = []Kind{KindTemperature, KindHumidity, KindCO2, KindLight}

// demoNames maps kinds to human-readable name prefixes.
var demoNames = map[Kind]string{
	KindTemperature: "Temperature Sensor",
	KindHumidity:    "Humidity Sensor",
	KindCO2:         "CO2 Sensor",
	KindLight:       "Light Sensor",
}

// DemoFleet generates n demo sensors cycling through the measurement kinds,
// with fake locations and serials. Used when the simulator is enabled and no
// sensors are configured.
func DemoFleet(n int) []Sensor {
	sensors := make([]Sensor, 0, n)
	counts := make(map[Kind]int, len(demoKinds))

	for i := 0; i < n; i++ {
		kind := demoKinds[i%len(demoKinds)]
		counts[kind]++
		defaults := kindDefaults[kind]

		var meta fleetMeta
		if err := gofakeit.Struct(&meta); err != nil {
			meta = fleetMeta{}
		}

		spec := defaults.Thresholds
		sensors = append(sensors, Sensor{
			Name:       fmt.Sprintf("%s %d", demoNames[kind], counts[kind]),
			Kind:       kind,
			Unit:       defaults.Unit,
			Location:   meta.Location,
			Serial:     meta.Serial,
			Thresholds: &spec,
		})
	}
	return sensors
}
