package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a sample of gas readings.
type Summary struct {
	Mean, Std float64
	Min, Max  float64
	P10, P50  float64
	P90       float64
}

// Summarize computes mean, standard deviation, range and empirical
// percentiles. An empty sample yields the zero Summary.
func Summarize(values []float64) Summary {
	n := len(values)
	if n == 0 {
		return Summary{}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	var s Summary
	if n == 1 {
		s.Mean = sorted[0]
	} else {
		s.Mean, s.Std = stat.MeanStdDev(sorted, nil)
	}
	s.Min = floats.Min(sorted)
	s.Max = floats.Max(sorted)
	s.P10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	s.P50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	s.P90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	return s
}

// WindowStats holds aggregated statistics for a window of ticks.
type WindowStats struct {
	Experiment      int `csv:"experiment"`
	WindowStartTick int `csv:"-"`
	WindowEndTick   int `csv:"window_end"`

	// Gas readings sampled every tick
	O2Mean  float64 `csv:"o2_mean"`
	O2Std   float64 `csv:"o2_std"`
	O2Min   float64 `csv:"o2_min"`
	O2Max   float64 `csv:"o2_max"`
	CO2Mean float64 `csv:"co2_mean"`
	CO2Std  float64 `csv:"co2_std"`
	CO2P10  float64 `csv:"co2_p10"`
	CO2P50  float64 `csv:"co2_p50"`
	CO2P90  float64 `csv:"co2_p90"`

	LitFraction float64 `csv:"lit_fraction"`
	Organisms   int     `csv:"organisms"` // total at window end

	// Conversions and losses during the window
	Respired         float64 `csv:"respired"`
	Photosynthesized float64 `csv:"photosynthesized"`
	Deaths           int     `csv:"deaths"`
	Starvations      int     `csv:"starvations"`
	Extinctions      int     `csv:"extinctions"`
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("experiment", s.Experiment),
		slog.Int("window_start", s.WindowStartTick),
		slog.Int("window_end", s.WindowEndTick),
		slog.Float64("o2_mean", s.O2Mean),
		slog.Float64("o2_std", s.O2Std),
		slog.Float64("o2_min", s.O2Min),
		slog.Float64("o2_max", s.O2Max),
		slog.Float64("co2_mean", s.CO2Mean),
		slog.Float64("co2_p50", s.CO2P50),
		slog.Float64("lit_fraction", s.LitFraction),
		slog.Int("organisms", s.Organisms),
		slog.Float64("respired", s.Respired),
		slog.Float64("photosynthesized", s.Photosynthesized),
		slog.Int("deaths", s.Deaths),
		slog.Int("starvations", s.Starvations),
		slog.Int("extinctions", s.Extinctions),
	)
}
