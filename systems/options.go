package systems

import "github.com/pthm-cable/ecochamber/config"

// ShortfallPolicy decides what happens when respiration demand exceeds the O2 on hand.
type ShortfallPolicy string

const (
	// ShortfallExtinct clamps conversion to the available O2 and kills the whole group.
	ShortfallExtinct ShortfallPolicy = config.ShortfallExtinct
	// ShortfallClamp clamps conversion to the available O2; the group survives.
	ShortfallClamp ShortfallPolicy = config.ShortfallClamp
)

// PhotosynthesisCurve maps CO2 to a per-individual photosynthesis rate.
type PhotosynthesisCurve struct {
	Slope, Offset float64
	Min, Max      float64
}

// Rate returns clamp(Slope*co2 + Offset, Min, Max).
func (c PhotosynthesisCurve) Rate(co2 float64) float64 {
	return clamp(c.Slope*co2+c.Offset, c.Min, c.Max)
}

// MortalityCurve maps O2 to a per-individual death chance per tick.
type MortalityCurve struct {
	AtmosphericO2 float64
	HypoxicO2     float64
	HypoxicChance float64
}

// Chance is 0 at or above AtmosphericO2, HypoxicChance at HypoxicO2, and
// keeps rising linearly below it. The result is clamped to [0,1].
func (c MortalityCurve) Chance(o2 float64) float64 {
	span := c.AtmosphericO2 - c.HypoxicO2
	if span <= 0 {
		return 0
	}
	return clamp01(c.HypoxicChance * (c.AtmosphericO2 - o2) / span)
}

// FoodBudget is the per-tick food reserve change, in percent.
type FoodBudget struct {
	PhotosynthesisGain float64
	MetabolismCost     float64
}

// Options are the step engine feature toggles.
type Options struct {
	Mortality        bool
	FoodReserve      bool
	CO2DependentRate bool
	Shortfall        ShortfallPolicy

	Photosynthesis PhotosynthesisCurve
	MortalityCurve MortalityCurve
	Food           FoodBudget
}

// OptionsFromConfig converts the engine configuration section.
func OptionsFromConfig(c config.EngineConfig) Options {
	return Options{
		Mortality:        c.Mortality,
		FoodReserve:      c.FoodReserve,
		CO2DependentRate: c.CO2DependentPhotosynthesis,
		Shortfall:        ShortfallPolicy(c.RespirationShortfall),
		Photosynthesis: PhotosynthesisCurve{
			Slope:  c.PhotosynthesisCurve.Slope,
			Offset: c.PhotosynthesisCurve.Offset,
			Min:    c.PhotosynthesisCurve.Min,
			Max:    c.PhotosynthesisCurve.Max,
		},
		MortalityCurve: MortalityCurve{
			AtmosphericO2: c.MortalityCurve.AtmosphericO2,
			HypoxicO2:     c.MortalityCurve.HypoxicO2,
			HypoxicChance: c.MortalityCurve.HypoxicChance,
		},
		Food: FoodBudget{
			PhotosynthesisGain: c.Food.PhotosynthesisGain,
			MetabolismCost:     c.Food.MetabolismCost,
		},
	}
}

// DefaultOptions returns the options from the embedded configuration defaults.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default().Engine)
}
