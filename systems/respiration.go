package systems

import (
	"github.com/pthm-cable/ecochamber/chamber"
	"github.com/pthm-cable/ecochamber/organism"
)

// respire converts count*respirationRate of O2 into CO2. When demand exceeds
// the O2 available the conversion is clamped, and the extinct policy zeroes
// the group.
func (e *Engine) respire(s *chamber.State, pop *chamber.Population, props organism.Properties, r *KindReport) {
	demand := float64(pop.Count) * props.RespirationRate
	if demand <= 0 {
		return
	}

	used := demand
	short := demand > s.O2
	if short {
		used = s.O2
	}

	s.O2 -= used
	s.CO2 += used
	r.Respired += used

	if short && e.opts.Shortfall == ShortfallExtinct {
		pop.Count = 0
		r.Extinctions++
	}
}
