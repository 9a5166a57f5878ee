// Package chamber holds the mutable state of the simulated closed chamber.
package chamber

import (
	"github.com/pthm-cable/ecochamber/config"
	"github.com/pthm-cable/ecochamber/organism"
)

// MaxFood is the full food reserve, in percent.
const MaxFood = 100.0

// Population is the per-kind organism group.
type Population struct {
	Count      int
	StoredFood float64 // percent, [0, MaxFood]
}

// State is the single mutable chamber aggregate.
// O2Sensor and CO2Sensor are derived readings and never feed back into O2/CO2.
type State struct {
	Time         int // elapsed ticks
	O2           float64
	CO2          float64
	Light        bool
	Populations  []Population // indexed by organism.Kind
	ExperimentID int

	O2Sensor  float64
	CO2Sensor float64
}

// Defaults is the state a fresh or reset chamber starts from.
type Defaults struct {
	O2         float64
	CO2        float64
	Light      bool
	StoredFood float64
}

// DefaultsFromConfig converts the chamber configuration section.
func DefaultsFromConfig(c config.ChamberConfig) Defaults {
	return Defaults{
		O2:         c.O2,
		CO2:        c.CO2,
		Light:      c.Light,
		StoredFood: c.StoredFood,
	}
}

// New returns a default chamber for numKinds organism kinds with experiment 0.
func New(d Defaults, numKinds int) State {
	s := State{
		O2:          d.O2,
		CO2:         d.CO2,
		Light:       d.Light,
		Populations: make([]Population, numKinds),
	}
	for i := range s.Populations {
		s.Populations[i].StoredFood = clamp(d.StoredFood, 0, MaxFood)
	}
	s.O2Sensor = s.O2
	s.CO2Sensor = s.CO2
	return s
}

// Reset returns a fresh default chamber with the experiment number bumped.
func (s State) Reset(d Defaults) State {
	next := New(d, len(s.Populations))
	next.ExperimentID = s.ExperimentID + 1
	return next
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := s
	c.Populations = make([]Population, len(s.Populations))
	copy(c.Populations, s.Populations)
	return c
}

// Equal reports whether two states are identical, sensors included.
func (s State) Equal(o State) bool {
	if s.Time != o.Time || s.O2 != o.O2 || s.CO2 != o.CO2 || s.Light != o.Light ||
		s.ExperimentID != o.ExperimentID || s.O2Sensor != o.O2Sensor || s.CO2Sensor != o.CO2Sensor {
		return false
	}
	if len(s.Populations) != len(o.Populations) {
		return false
	}
	for i := range s.Populations {
		if s.Populations[i] != o.Populations[i] {
			return false
		}
	}
	return true
}

// Population returns the group for k.
func (s State) Population(k organism.Kind) Population {
	return s.Populations[k]
}

// AddOrganism adds one individual of kind k.
func (s *State) AddOrganism(k organism.Kind) {
	s.Populations[k].Count++
}

// TotalOrganisms returns the count summed over all kinds.
func (s State) TotalOrganisms() int {
	var n int
	for _, p := range s.Populations {
		n += p.Count
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
