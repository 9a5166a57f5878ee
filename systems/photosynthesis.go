package systems

import (
	"github.com/pthm-cable/ecochamber/chamber"
	"github.com/pthm-cable/ecochamber/organism"
)

// photosynthesize converts CO2 into O2 for a producing kind and returns the
// amount converted. Nothing is converted in the dark.
func (e *Engine) photosynthesize(s *chamber.State, pop *chamber.Population, props organism.Properties, r *KindReport) float64 {
	if !props.Photosynthesizes() || !s.Light {
		return 0
	}

	rate := props.PhotosynthesisRate
	if e.opts.CO2DependentRate {
		// Saturating in CO2: starved plants still manage the floor rate.
		rate = e.opts.Photosynthesis.Rate(s.CO2)
	}

	produced := float64(pop.Count) * rate
	if produced > s.CO2 {
		produced = s.CO2
	}
	if produced <= 0 {
		return 0
	}

	s.CO2 -= produced
	s.O2 += produced
	r.Photosynthesized += produced
	return produced
}
