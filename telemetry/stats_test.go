package telemetry

import (
	"math"
	"testing"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Summary
	}{
		{"empty", nil, Summary{}},
		{"single", []float64{5}, Summary{Mean: 5, Min: 5, Max: 5, P10: 5, P50: 5, P90: 5}},
		{"odd", []float64{5, 1, 3, 2, 4}, Summary{Mean: 3, Std: math.Sqrt(2.5), Min: 1, Max: 5, P10: 1, P50: 3, P90: 5}},
		{"ten", []float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, Summary{Mean: 5.5, Std: math.Sqrt(55.0 / 6), Min: 1, Max: 10, P10: 1, P50: 5, P90: 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.values)
			check := func(field string, g, w float64) {
				if math.Abs(g-w) > 1e-9 {
					t.Errorf("%s = %v, want %v", field, g, w)
				}
			}
			check("mean", got.Mean, tt.want.Mean)
			check("std", got.Std, tt.want.Std)
			check("min", got.Min, tt.want.Min)
			check("max", got.Max, tt.want.Max)
			check("p10", got.P10, tt.want.P10)
			check("p50", got.P50, tt.want.P50)
			check("p90", got.P90, tt.want.P90)
		})
	}
}

func TestSummarizeDoesNotReorderInput(t *testing.T) {
	values := []float64{3, 1, 2}
	Summarize(values)
	if values[0] != 3 || values[1] != 1 || values[2] != 2 {
		t.Errorf("input reordered: %v", values)
	}
}
