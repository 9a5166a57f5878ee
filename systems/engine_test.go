package systems

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/pthm-cable/ecochamber/chamber"
	"github.com/pthm-cable/ecochamber/organism"
)

var baseline = chamber.Defaults{O2: 200000, CO2: 400, Light: true, StoredFood: 100}

func newTestEngine(opts Options) (*Engine, *organism.Catalog) {
	cat := organism.Default()
	return NewEngine(cat, opts, rand.NewPCG(1, 2)), cat
}

func TestAdvanceZeroTicksIsIdentity(t *testing.T) {
	e, cat := newTestEngine(DefaultOptions())
	s := chamber.New(baseline, cat.Len())
	s.Populations[cat.MustLookup("PLANT")].Count = 4
	s.Time = 9

	got, rep := e.Advance(s, nil, 0)
	if !got.Equal(s) {
		t.Errorf("Advance(0) = %+v, want %+v", got, s)
	}
	if rep.Ticks != 0 {
		t.Errorf("ticks = %d, want 0", rep.Ticks)
	}
}

func TestAdvanceDoesNotMutateInput(t *testing.T) {
	e, cat := newTestEngine(DefaultOptions())
	s := chamber.New(baseline, cat.Len())
	s.Populations[cat.MustLookup("SNAIL")].Count = 3
	before := s.Clone()

	e.Advance(s, nil, 10)
	if !s.Equal(before) {
		t.Error("Advance modified its input state")
	}
}

func TestSinglePlantScenario(t *testing.T) {
	e, cat := newTestEngine(DefaultOptions())
	plant := cat.MustLookup("PLANT")
	s := chamber.New(baseline, cat.Len())
	s.AddOrganism(plant)

	got, rep := e.Advance(s, nil, 1)

	if got.Time != 1 {
		t.Errorf("time = %d, want 1", got.Time)
	}
	if got.Population(plant).Count != 1 {
		t.Errorf("plants = %d, want 1", got.Population(plant).Count)
	}
	// Respiration 1, then photosynthesis at the saturated rate of 7.
	if got.O2 != 200006 || got.CO2 != 394 {
		t.Errorf("o2/co2 = %v/%v, want 200006/394", got.O2, got.CO2)
	}
	if rep.Kinds[plant].Respired != 1 || rep.Kinds[plant].Photosynthesized != 7 {
		t.Errorf("report = %+v", rep.Kinds[plant])
	}
}

func TestSnailShortfall(t *testing.T) {
	tests := []struct {
		name      string
		policy    ShortfallPolicy
		wantCount int
	}{
		{"extinct", ShortfallExtinct, 0},
		{"clamp", ShortfallClamp, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Shortfall = tt.policy
			e, cat := newTestEngine(opts)
			snail := cat.MustLookup("SNAIL")

			s := chamber.New(baseline, cat.Len())
			s.O2 = 1
			s.Populations[snail].Count = 5

			got, rep := e.Advance(s, nil, 1)
			if got.O2 != 0 {
				t.Errorf("o2 = %v, want 0", got.O2)
			}
			if got.CO2 != 401 {
				t.Errorf("co2 = %v, want 401", got.CO2)
			}
			if got.Population(snail).Count != tt.wantCount {
				t.Errorf("snails = %d, want %d", got.Population(snail).Count, tt.wantCount)
			}
			wantExt := 0
			if tt.policy == ShortfallExtinct {
				wantExt = 1
			}
			if rep.Kinds[snail].Extinctions != wantExt {
				t.Errorf("extinctions = %d, want %d", rep.Kinds[snail].Extinctions, wantExt)
			}
		})
	}
}

func TestLightOffBlocksPhotosynthesis(t *testing.T) {
	for _, co2 := range []float64{0, 50, 400, 1e6} {
		e, cat := newTestEngine(DefaultOptions())
		plant := cat.MustLookup("PLANT")
		s := chamber.New(baseline, cat.Len())
		s.Light = false
		s.CO2 = co2
		s.Populations[plant].Count = 10

		_, rep := e.Advance(s, nil, 1)
		if rep.Kinds[plant].Photosynthesized != 0 {
			t.Errorf("co2=%v: photosynthesized %v in the dark", co2, rep.Kinds[plant].Photosynthesized)
		}
	}
}

func TestPhotosynthesisClampedToCO2(t *testing.T) {
	e, cat := newTestEngine(DefaultOptions())
	plant := cat.MustLookup("PLANT")
	s := chamber.New(baseline, cat.Len())
	s.CO2 = 0
	s.Populations[plant].Count = 100

	got, _ := e.Advance(s, nil, 1)
	// All CO2 came from this tick's respiration, and all of it is used up.
	if got.CO2 != 0 {
		t.Errorf("co2 = %v, want 0", got.CO2)
	}
	if got.O2 != s.O2 {
		t.Errorf("o2 = %v, want %v", got.O2, s.O2)
	}
}

func TestFixedPhotosynthesisRate(t *testing.T) {
	opts := DefaultOptions()
	opts.CO2DependentRate = false
	e, cat := newTestEngine(opts)
	plant := cat.MustLookup("PLANT")
	s := chamber.New(baseline, cat.Len())
	s.Populations[plant].Count = 2

	_, rep := e.Advance(s, []organism.Kind{plant}, 1)
	if rep.Kinds[plant].Photosynthesized != 10 {
		t.Errorf("photosynthesized = %v, want 10", rep.Kinds[plant].Photosynthesized)
	}
}

func TestStarvation(t *testing.T) {
	opts := DefaultOptions()
	opts.FoodReserve = true
	e, cat := newTestEngine(opts)
	plant := cat.MustLookup("PLANT")
	snail := cat.MustLookup("SNAIL")

	s := chamber.New(baseline, cat.Len())
	s.Light = false
	s.Populations[plant] = chamber.Population{Count: 3, StoredFood: 2}
	s.Populations[snail] = chamber.Population{Count: 2, StoredFood: 2}

	got, rep := e.Advance(s, nil, 1)

	if p := got.Population(plant); p.Count != 0 || p.StoredFood != chamber.MaxFood {
		t.Errorf("starved plants = %+v, want count 0 food 100", p)
	}
	if rep.Kinds[plant].Starvations != 1 {
		t.Errorf("starvations = %d, want 1", rep.Kinds[plant].Starvations)
	}
	// Snails are fed externally.
	if p := got.Population(snail); p.Count != 2 || p.StoredFood != 2 {
		t.Errorf("snails = %+v, want unchanged", p)
	}
}

func TestFoodGainWhenPhotosynthesizing(t *testing.T) {
	opts := DefaultOptions()
	opts.FoodReserve = true
	e, cat := newTestEngine(opts)
	plant := cat.MustLookup("PLANT")

	s := chamber.New(baseline, cat.Len())
	s.Populations[plant] = chamber.Population{Count: 1, StoredFood: 50}

	got, _ := e.Advance(s, nil, 1)
	if f := got.Population(plant).StoredFood; f != 54 {
		t.Errorf("food = %v, want 54", f)
	}
}

func TestIterationOrderMatters(t *testing.T) {
	opts := DefaultOptions()
	opts.Shortfall = ShortfallExtinct
	e, cat := newTestEngine(opts)
	plant := cat.MustLookup("PLANT")
	snail := cat.MustLookup("SNAIL")

	s := chamber.New(baseline, cat.Len())
	s.O2 = 1
	s.Populations[plant].Count = 1
	s.Populations[snail].Count = 1

	// Snails first: they need 2 O2 but only 1 is there.
	snailsFirst, _ := e.Advance(s, []organism.Kind{snail, plant}, 1)
	// Plants first: their photosynthesis leaves enough O2 for the snail.
	plantsFirst, _ := e.Advance(s, []organism.Kind{plant, snail}, 1)

	if snailsFirst.Population(snail).Count != 0 {
		t.Errorf("snails-first: snail survived")
	}
	if plantsFirst.Population(snail).Count != 1 {
		t.Errorf("plants-first: snail died")
	}
}

func TestMortalityCurve(t *testing.T) {
	c := DefaultOptions().MortalityCurve

	if got := c.Chance(c.AtmosphericO2); got != 0 {
		t.Errorf("Chance(atmospheric) = %v, want 0", got)
	}
	if got := c.Chance(c.HypoxicO2); math.Abs(got-c.HypoxicChance) > 1e-12 {
		t.Errorf("Chance(hypoxic) = %v, want %v", got, c.HypoxicChance)
	}

	prev := -1.0
	for o2 := 300000.0; o2 >= 0; o2 -= 5000 {
		p := c.Chance(o2)
		if p < 0 || p > 1 {
			t.Fatalf("Chance(%v) = %v out of [0,1]", o2, p)
		}
		if p < prev {
			t.Fatalf("Chance not monotonic at o2=%v: %v < %v", o2, p, prev)
		}
		prev = p
	}

	steep := MortalityCurve{AtmosphericO2: 100, HypoxicO2: 50, HypoxicChance: 0.9}
	if got := steep.Chance(0); got != 1 {
		t.Errorf("steep Chance(0) = %v, want clamped 1", got)
	}
}

func TestMortalitySampling(t *testing.T) {
	opts := DefaultOptions()
	opts.Mortality = true
	opts.MortalityCurve = MortalityCurve{AtmosphericO2: 200000, HypoxicO2: 50000, HypoxicChance: 1}
	e, cat := newTestEngine(opts)
	snail := cat.MustLookup("SNAIL")

	s := chamber.New(baseline, cat.Len())
	s.Populations[snail].Count = 20

	healthy, rep := e.Advance(s, nil, 1)
	if healthy.Population(snail).Count != 20 || rep.Kinds[snail].Deaths != 0 {
		t.Errorf("deaths at atmospheric O2: %+v", rep.Kinds[snail])
	}

	s.O2 = 50000
	hypoxic, rep := e.Advance(s, nil, 1)
	if hypoxic.Population(snail).Count != 0 || rep.Kinds[snail].Deaths != 20 {
		t.Errorf("hypoxic survivors = %d, deaths = %d", hypoxic.Population(snail).Count, rep.Kinds[snail].Deaths)
	}
	// Nobody left to breathe.
	if hypoxic.O2 != 50000 {
		t.Errorf("o2 = %v, want 50000", hypoxic.O2)
	}
}

func TestInvariantsHoldOverLongRuns(t *testing.T) {
	opts := DefaultOptions()
	opts.Mortality = true
	opts.FoodReserve = true
	cat := organism.Default()
	rng := rand.New(rand.NewPCG(7, 7))

	for trial := 0; trial < 25; trial++ {
		e := NewEngine(cat, opts, rand.NewPCG(uint64(trial), 3))
		s := chamber.New(baseline, cat.Len())
		s.O2 = rng.Float64() * 1000
		s.CO2 = rng.Float64() * 1000
		s.Light = rng.IntN(2) == 0
		for i := range s.Populations {
			s.Populations[i].Count = rng.IntN(50)
			s.Populations[i].StoredFood = rng.Float64() * 100
		}

		for step := 0; step < 50; step++ {
			s, _ = e.Advance(s, nil, 3)
			if s.O2 < 0 || s.CO2 < 0 {
				t.Fatalf("trial %d: negative gas o2=%v co2=%v", trial, s.O2, s.CO2)
			}
			for k, p := range s.Populations {
				if p.Count < 0 || p.StoredFood < 0 || p.StoredFood > chamber.MaxFood {
					t.Fatalf("trial %d: kind %d out of bounds: %+v", trial, k, p)
				}
			}
			if step%10 == 0 {
				s.Light = !s.Light
			}
		}
	}
}

type tickCounter struct {
	ticks []int
}

func (c *tickCounter) ObserveTick(s chamber.State, r Report) {
	c.ticks = append(c.ticks, s.Time)
}

func TestObserverSeesEveryTick(t *testing.T) {
	e, cat := newTestEngine(DefaultOptions())
	obs := &tickCounter{}
	e.SetObserver(obs)

	e.Advance(chamber.New(baseline, cat.Len()), nil, 4)
	if len(obs.ticks) != 4 || obs.ticks[3] != 4 {
		t.Errorf("observed times = %v, want [1 2 3 4]", obs.ticks)
	}
}

func TestSensorNoise(t *testing.T) {
	off := NewSensorNoise(false, 1, rand.NewPCG(1, 1))
	if got := off.Read(399.6); got != 400 {
		t.Errorf("noise off Read = %v, want 400", got)
	}

	on := NewSensorNoise(true, 1, rand.NewPCG(1, 1))
	v := 10000.0
	for i := 0; i < 200; i++ {
		r := on.Read(v)
		if r != math.Round(r) {
			t.Fatalf("reading %v not rounded", r)
		}
		if math.Abs(r-v) > math.Sqrt(v)+1 {
			t.Fatalf("reading %v too far from %v", r, v)
		}
	}
	if got := on.Read(0); got != 0 {
		t.Errorf("Read(0) = %v, want 0", got)
	}

	s := chamber.New(baseline, 2)
	s.O2 = 5.4
	off.Refresh(&s)
	if s.O2Sensor != 5 || s.O2 != 5.4 {
		t.Errorf("Refresh changed truth or misread: sensor=%v truth=%v", s.O2Sensor, s.O2)
	}
}
