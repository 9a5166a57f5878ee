// Package main provides CMA-ES optimization for chamber setups.
package main

import (
	"fmt"
	"math"
	"strings"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "plants", Min: 1, Max: 200, Default: 20},
			// Fraction of every hour the light is on.
			{Name: "light_duty", Min: 0, Max: 1, Default: 0.5},
			{Name: "initial_co2", Min: 100, Max: 4000, Default: 400},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = math.Max(spec.Min, math.Min(spec.Max, v[i]))
	}
	return clamped
}

// Scenario is one chamber setup under evaluation.
type Scenario struct {
	Plants     int
	Snails     int
	LightDuty  float64
	InitialCO2 float64
}

// LitTicks returns how many ticks of each hour the light stays on.
func (s Scenario) LitTicks() int {
	return int(math.Round(s.LightDuty * ticksPerHour))
}

// Scenario converts values to a chamber setup with the given snail count.
// Order must match Specs order.
func (pv *ParamVector) Scenario(values []float64, snails int) Scenario {
	c := pv.Clamp(values)
	return Scenario{
		Plants:     int(math.Round(c[0])),
		Snails:     snails,
		LightDuty:  c[1],
		InitialCO2: c[2],
	}
}

// Lua renders the scenario as an experiment script runnable with
// `ecochamber run`.
func (s Scenario) Lua(hours int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- plants=%d snails=%d light_duty=%.3f initial_co2=%.0f\n",
		s.Plants, s.Snails, s.LightDuty, s.InitialCO2)
	fmt.Fprintf(&b, "setVar(\"plantsNumber\", %d)\n", s.Plants)
	fmt.Fprintf(&b, "setVar(\"snailsNumber\", %d)\n", s.Snails)
	fmt.Fprintf(&b, "setVar(\"co2\", %.0f)\n", s.InitialCO2)
	fmt.Fprintf(&b, "for hour = 1, %d do\n", hours)
	lit := s.LitTicks()
	if lit > 0 {
		b.WriteString("  setVar(\"light\", true)\n")
		fmt.Fprintf(&b, "  wait(%d)\n", lit)
	}
	if dark := ticksPerHour - lit; dark > 0 {
		b.WriteString("  setVar(\"light\", false)\n")
		fmt.Fprintf(&b, "  wait(%d)\n", dark)
	}
	b.WriteString("  recordData()\n")
	b.WriteString("end\n")
	return b.String()
}
