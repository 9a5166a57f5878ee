package main

import (
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/ecochamber/chamber"
	"github.com/pthm-cable/ecochamber/config"
	"github.com/pthm-cable/ecochamber/organism"
	"github.com/pthm-cable/ecochamber/systems"
	"github.com/pthm-cable/ecochamber/telemetry"
)

// Ticks are minutes; one window per hour.
const ticksPerHour = 60

// FitnessEvaluator runs headless chambers and computes fitness.
type FitnessEvaluator struct {
	params   *ParamVector
	maxHours int
	snails   int
	seeds    []uint64
	cfg      *config.Config
	cat      *organism.Catalog

	plant, snail organism.Kind

	mu          sync.Mutex
	bestFitness float64
	bestWindows []telemetry.WindowStats
	lastQuality float64 // quality from most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxHours, snails int, seeds []uint64, cfg *config.Config) (*FitnessEvaluator, error) {
	cat, err := organism.FromConfig(cfg.Organisms)
	if err != nil {
		return nil, err
	}
	plant, err := cat.Lookup("PLANT")
	if err != nil {
		return nil, err
	}
	snail, err := cat.Lookup("SNAIL")
	if err != nil {
		return nil, err
	}
	return &FitnessEvaluator{
		params:      params,
		maxHours:    maxHours,
		snails:      snails,
		seeds:       seeds,
		cfg:         cfg,
		cat:         cat,
		plant:       plant,
		snail:       snail,
		bestFitness: math.Inf(1),
	}, nil
}

// BestWindows returns the hourly stats of the best seed of the best evaluation.
func (fe *FitnessEvaluator) BestWindows() []telemetry.WindowStats {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestWindows
}

// LastQuality returns the quality score from the most recent evaluation.
func (fe *FitnessEvaluator) LastQuality() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastQuality
}

// runResult holds the results from a single chamber run.
type runResult struct {
	survivalHours int // hours before either kind died out, or maxHours
	windows       []telemetry.WindowStats
}

type seedResult struct {
	fitness float64
	quality float64
	windows []telemetry.WindowStats
}

// Evaluate computes fitness for a parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	sc := fe.params.Scenario(x, fe.snails)

	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s uint64) {
			defer wg.Done()
			r := fe.run(sc, s)
			q := fe.quality(sc, r.windows)
			results[idx] = seedResult{
				fitness: fe.fitness(r, q),
				quality: q,
				windows: r.windows,
			}
		}(i, seed)
	}
	wg.Wait()

	var totalFitness, totalQuality float64
	bestSeed := math.Inf(1)
	var bestWindows []telemetry.WindowStats
	for _, r := range results {
		totalFitness += r.fitness
		totalQuality += r.quality
		if r.fitness < bestSeed {
			bestSeed = r.fitness
			bestWindows = r.windows
		}
	}

	n := float64(len(fe.seeds))
	avgFitness := totalFitness / n

	fe.mu.Lock()
	if avgFitness < fe.bestFitness {
		fe.bestFitness = avgFitness
		fe.bestWindows = bestWindows
	}
	fe.lastQuality = totalQuality / n
	fe.mu.Unlock()

	return avgFitness
}

// run simulates sc hour by hour until a kind dies out or maxHours pass.
func (fe *FitnessEvaluator) run(sc Scenario, seed uint64) *runResult {
	result := &runResult{survivalHours: fe.maxHours}

	collector := telemetry.NewCollector(ticksPerHour)
	collector.OnFlush(func(ws telemetry.WindowStats) {
		result.windows = append(result.windows, ws)
	})
	engine := systems.NewEngine(fe.cat, systems.OptionsFromConfig(fe.cfg.Engine), rand.NewPCG(seed, seed+1))
	engine.SetObserver(collector)

	s := chamber.New(chamber.DefaultsFromConfig(fe.cfg.Chamber), fe.cat.Len())
	s.Populations[fe.plant].Count = sc.Plants
	s.Populations[fe.snail].Count = sc.Snails
	s.CO2 = sc.InitialCO2

	lit := sc.LitTicks()
	for hour := 1; hour <= fe.maxHours; hour++ {
		if lit > 0 {
			s.Light = true
			s, _ = engine.Advance(s, nil, lit)
		}
		if dark := ticksPerHour - lit; dark > 0 {
			s.Light = false
			s, _ = engine.Advance(s, nil, dark)
		}
		if s.Population(fe.plant).Count == 0 || s.Population(fe.snail).Count == 0 {
			result.survivalHours = hour
			break
		}
	}
	return result
}

// fitness: -(survival fraction × (1 + quality)). Survival dominates;
// quality separates setups that both survive.
func (fe *FitnessEvaluator) fitness(r *runResult, quality float64) float64 {
	survival := float64(r.survivalHours) / float64(fe.maxHours)
	return -(survival * (1.0 + quality))
}

// Skip the first windows while the gases settle.
const qualityWarmupWindows = 2

// quality scores gas balance in [0, 1]: hourly means near the starting
// chamber and little spread between hours.
func (fe *FitnessEvaluator) quality(sc Scenario, windows []telemetry.WindowStats) float64 {
	if len(windows) <= qualityWarmupWindows {
		return 0
	}
	valid := windows[qualityWarmupWindows:]

	o2Start := fe.cfg.Chamber.O2
	o2 := make([]float64, len(valid))
	co2 := make([]float64, len(valid))
	var drift float64
	for i, w := range valid {
		o2[i] = w.O2Mean
		co2[i] = w.CO2Mean
		drift += math.Abs(w.O2Mean-o2Start)/o2Start + math.Abs(w.CO2Mean-sc.InitialCO2)/sc.InitialCO2
	}
	drift /= float64(len(valid))

	stability := 1.0
	if len(valid) >= 2 {
		stability = math.Exp(-(cv(o2)*cv(o2) + cv(co2)*cv(co2)))
	}
	return clamp01(0.6*math.Exp(-drift) + 0.4*stability)
}

// cv computes the coefficient of variation (std/mean).
func cv(values []float64) float64 {
	mean, std := stat.MeanStdDev(values, nil)
	if mean == 0 {
		return 0
	}
	return std / mean
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
