package systems

import (
	"github.com/pthm-cable/ecochamber/chamber"
	"github.com/pthm-cable/ecochamber/organism"
)

// updateFood applies the per-tick food reserve budget. An empty reserve
// wipes the group and refills the reserve for the next generation.
func (e *Engine) updateFood(pop *chamber.Population, props organism.Properties, produced float64, r *KindReport) {
	if produced > 0 {
		pop.StoredFood += e.opts.Food.PhotosynthesisGain
	}
	if !props.AutoFed {
		pop.StoredFood -= e.opts.Food.MetabolismCost
	}
	pop.StoredFood = clamp(pop.StoredFood, 0, chamber.MaxFood)

	if pop.StoredFood <= 0 {
		pop.Count = 0
		pop.StoredFood = chamber.MaxFood
		r.Starvations++
	}
}
