package systems

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/ecochamber/chamber"
)

// SensorNoise derives rounded, optionally perturbed sensor readings.
// Perturbation amplitude is sqrt(value) scaled by the multiplier.
type SensorNoise struct {
	enabled    bool
	multiplier float64
	dist       distuv.Uniform
}

// NewSensorNoise creates a sensor model. With enabled false readings are
// only rounded.
func NewSensorNoise(enabled bool, multiplier float64, src rand.Source) *SensorNoise {
	return &SensorNoise{
		enabled:    enabled,
		multiplier: multiplier,
		dist:       distuv.Uniform{Min: -1, Max: 1, Src: src},
	}
}

// Read returns one reading of the true value v.
func (n *SensorNoise) Read(v float64) float64 {
	if n == nil || !n.enabled || v <= 0 {
		return math.Round(math.Max(v, 0))
	}
	fuzzed := v + math.Sqrt(v)*n.dist.Rand()*n.multiplier
	return math.Max(0, math.Round(fuzzed))
}

// Refresh recomputes the derived sensor fields of s.
func (n *SensorNoise) Refresh(s *chamber.State) {
	s.O2Sensor = n.Read(s.O2)
	s.CO2Sensor = n.Read(s.CO2)
}
