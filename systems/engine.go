// Package systems implements the per-tick chamber update rule.
package systems

import (
	"math/rand/v2"

	"github.com/pthm-cable/ecochamber/chamber"
	"github.com/pthm-cable/ecochamber/organism"
)

// KindReport totals what happened to one organism kind over an Advance call.
type KindReport struct {
	Respired         float64 // O2 converted to CO2
	Photosynthesized float64 // CO2 converted to O2
	Deaths           int     // hypoxia deaths
	Starvations      int     // groups wiped by an empty food reserve
	Extinctions      int     // groups wiped by an O2 shortfall
}

// Report summarises an Advance call. Kinds is indexed by organism.Kind.
type Report struct {
	Ticks int
	Kinds []KindReport
}

func newReport(numKinds int) Report {
	return Report{Kinds: make([]KindReport, numKinds)}
}

func (r *Report) add(o Report) {
	r.Ticks += o.Ticks
	for i := range o.Kinds {
		k := &r.Kinds[i]
		k.Respired += o.Kinds[i].Respired
		k.Photosynthesized += o.Kinds[i].Photosynthesized
		k.Deaths += o.Kinds[i].Deaths
		k.Starvations += o.Kinds[i].Starvations
		k.Extinctions += o.Kinds[i].Extinctions
	}
}

// Observer sees the whole state after every tick along with that tick's report.
type Observer interface {
	ObserveTick(s chamber.State, r Report)
}

// Engine advances a chamber state tick by tick. It is not safe for
// concurrent use; the random source is shared with the caller.
type Engine struct {
	cat      *organism.Catalog
	opts     Options
	src      rand.Source
	observer Observer
}

// NewEngine creates an engine over cat. src drives mortality sampling.
func NewEngine(cat *organism.Catalog, opts Options, src rand.Source) *Engine {
	if opts.Shortfall == "" {
		opts.Shortfall = ShortfallExtinct
	}
	return &Engine{cat: cat, opts: opts, src: src}
}

// SetObserver installs o; nil removes it.
func (e *Engine) SetObserver(o Observer) {
	e.observer = o
}

// Options returns the engine toggles.
func (e *Engine) Options() Options {
	return e.opts
}

// Catalog returns the organism catalog the engine iterates.
func (e *Engine) Catalog() *organism.Catalog {
	return e.cat
}

// Advance runs n sequential ticks over the given kinds and returns the new
// state. The input state is not modified. A nil kinds slice means every kind
// in catalog order. Time advances by one per tick.
func (e *Engine) Advance(s chamber.State, kinds []organism.Kind, n int) (chamber.State, Report) {
	if kinds == nil {
		kinds = e.cat.Kinds()
	}
	next := s.Clone()
	total := newReport(len(next.Populations))
	for i := 0; i < n; i++ {
		tick := newReport(len(next.Populations))
		e.Tick(&next, kinds, &tick)
		next.Time++
		total.add(tick)
		if e.observer != nil {
			e.observer.ObserveTick(next, tick)
		}
	}
	return next, total
}

// Tick applies one tick of the update rule to s in place. Kinds are
// processed in order and share the gas pools, so earlier kinds see fresher
// O2 and CO2 than later ones. Time is left to the caller.
func (e *Engine) Tick(s *chamber.State, kinds []organism.Kind, r *Report) {
	r.Ticks++
	for _, k := range kinds {
		pop := &s.Populations[k]
		if pop.Count == 0 {
			continue
		}
		props := e.cat.PropertiesOf(k)
		kr := &r.Kinds[k]

		if e.opts.Mortality {
			e.applyMortality(s, pop, kr)
			if pop.Count == 0 {
				continue
			}
		}

		e.respire(s, pop, props, kr)
		if pop.Count == 0 {
			continue
		}

		produced := e.photosynthesize(s, pop, props, kr)

		if e.opts.FoodReserve {
			e.updateFood(pop, props, produced, kr)
		}
	}
}

// Observers fans a tick out to several observers in order.
type Observers []Observer

// ObserveTick implements Observer.
func (obs Observers) ObserveTick(s chamber.State, r Report) {
	for _, o := range obs {
		if o != nil {
			o.ObserveTick(s, r)
		}
	}
}
