package sensor

// Params holds the per-kind behavior table used by alert deduplication and
// synthetic generation. MinDelta is the smallest value change considered
// meaningful, Drift bounds the per-step random walk, and SpikeChance is the
// probability of an out-of-range excursion per generated reading.
type Params struct {
	MinDelta    float64 `mapstructure:"min_delta" json:"min_delta"`
	Drift       float64 `mapstructure:"drift" json:"drift"`
	SpikeChance float64 `mapstructure:"spike_chance" json:"spike_chance"`
}

// fallbackParams applies to kinds without an entry in the params table.
var fallbackParams = Params{MinDelta: 1.0, Drift: 1.0, SpikeChance: 0.02}

// DefaultParams returns the built-in per-kind behavior table. Configuration
// may override individual entries.
func DefaultParams() map[Kind]Params {
	return map[Kind]Params{
		KindTemperature: {MinDelta: 0.5, Drift: 0.4, SpikeChance: 0.05},
		KindHumidity:    {MinDelta: 2.0, Drift: 1.5, SpikeChance: 0.04},
		KindCO2:         {MinDelta: 25, Drift: 15, SpikeChance: 0.03},
		KindLight:       {MinDelta: 50, Drift: 40, SpikeChance: 0.03},
	}
}
