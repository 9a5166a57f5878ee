package systems

import (
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/ecochamber/chamber"
)

// applyMortality samples hypoxia deaths independently per individual.
func (e *Engine) applyMortality(s *chamber.State, pop *chamber.Population, r *KindReport) {
	p := e.opts.MortalityCurve.Chance(s.O2)
	if p <= 0 {
		return
	}

	die := distuv.Bernoulli{P: p, Src: e.src}
	dead := 0
	for i := 0; i < pop.Count; i++ {
		if die.Rand() == 1 {
			dead++
		}
	}

	pop.Count -= dead
	r.Deaths += dead
}
