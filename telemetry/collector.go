package telemetry

import (
	"github.com/pthm-cable/ecochamber/chamber"
	"github.com/pthm-cable/ecochamber/systems"
)

// Collector accumulates per-tick samples and produces WindowStats every
// windowTicks ticks. It implements systems.Observer.
type Collector struct {
	windowTicks int
	onFlush     func(WindowStats)

	experiment  int
	windowStart int
	last        chamber.State
	seen        bool

	o2, co2 []float64
	lit     int

	respired, photosynthesized       float64
	deaths, starvations, extinctions int
}

// NewCollector creates a collector. windowTicks below 1 is treated as 1.
func NewCollector(windowTicks int) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{windowTicks: windowTicks}
}

// OnFlush sets the sink for completed windows.
func (c *Collector) OnFlush(fn func(WindowStats)) {
	c.onFlush = fn
}

// WindowTicks returns the number of ticks per window.
func (c *Collector) WindowTicks() int {
	return c.windowTicks
}

// ObserveTick records one tick and flushes when the window is full. A new
// experiment number discards the partial window of the previous one.
func (c *Collector) ObserveTick(s chamber.State, r systems.Report) {
	if !c.seen || s.ExperimentID != c.experiment {
		c.restart(s.ExperimentID, s.Time-r.Ticks)
	}
	if s.Time <= c.windowStart {
		// Time was rewound by a script; keep the samples, move the window.
		c.windowStart = s.Time - r.Ticks
	}
	c.seen = true
	c.last = s

	c.o2 = append(c.o2, s.O2)
	c.co2 = append(c.co2, s.CO2)
	if s.Light {
		c.lit++
	}
	for _, k := range r.Kinds {
		c.respired += k.Respired
		c.photosynthesized += k.Photosynthesized
		c.deaths += k.Deaths
		c.starvations += k.Starvations
		c.extinctions += k.Extinctions
	}

	if c.ShouldFlush(s.Time) {
		stats := c.Flush()
		if c.onFlush != nil {
			c.onFlush(stats)
		}
	}
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int) bool {
	return currentTick-c.windowStart >= c.windowTicks
}

// Flush produces a WindowStats for the ticks seen so far and starts a new window.
func (c *Collector) Flush() WindowStats {
	o2 := Summarize(c.o2)
	co2 := Summarize(c.co2)

	var litFraction float64
	if n := len(c.o2); n > 0 {
		litFraction = float64(c.lit) / float64(n)
	}

	stats := WindowStats{
		Experiment:      c.experiment,
		WindowStartTick: c.windowStart,
		WindowEndTick:   c.last.Time,

		O2Mean:  o2.Mean,
		O2Std:   o2.Std,
		O2Min:   o2.Min,
		O2Max:   o2.Max,
		CO2Mean: co2.Mean,
		CO2Std:  co2.Std,
		CO2P10:  co2.P10,
		CO2P50:  co2.P50,
		CO2P90:  co2.P90,

		LitFraction: litFraction,
		Organisms:   c.last.TotalOrganisms(),

		Respired:         c.respired,
		Photosynthesized: c.photosynthesized,
		Deaths:           c.deaths,
		Starvations:      c.starvations,
		Extinctions:      c.extinctions,
	}

	c.restart(c.experiment, c.last.Time)
	return stats
}

// Pending returns the number of ticks in the current partial window.
func (c *Collector) Pending() int {
	return len(c.o2)
}

func (c *Collector) restart(experiment, start int) {
	if start < 0 {
		start = 0
	}
	c.experiment = experiment
	c.windowStart = start
	c.o2 = c.o2[:0]
	c.co2 = c.co2[:0]
	c.lit = 0
	c.respired = 0
	c.photosynthesized = 0
	c.deaths = 0
	c.starvations = 0
	c.extinctions = 0
}
