package chamber

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/ecochamber/organism"
)

// Built-in variable names visible to scripts and the recorder.
const (
	VarTime       = "time"
	VarO2         = "o2"
	VarCO2        = "co2"
	VarLight      = "light"
	VarExperiment = "experiment"
	VarO2Sensor   = "o2Sensor"
	VarCO2Sensor  = "co2Sensor"
)

var (
	ErrUnknownVar   = errors.New("chamber: unknown variable")
	ErrReadOnly     = errors.New("chamber: variable is read-only")
	ErrNotNumeric   = errors.New("chamber: variable is not numeric")
	ErrInvalidValue = errors.New("chamber: invalid value")
)

type varKind uint8

const (
	varTime varKind = iota
	varO2
	varCO2
	varLight
	varExperiment
	varO2Sensor
	varCO2Sensor
	varCount
	varFood
)

type varRef struct {
	kind    varKind
	org     organism.Kind
	numeric bool
	write   bool
}

// Vars resolves script variable names against a catalog.
type Vars struct {
	refs  map[string]varRef
	names []string
}

// NewVars builds the variable table: built-ins plus a count and a food
// variable per organism kind.
func NewVars(cat *organism.Catalog) *Vars {
	v := &Vars{refs: make(map[string]varRef)}
	v.add(VarTime, varRef{kind: varTime, numeric: true, write: true})
	v.add(VarO2, varRef{kind: varO2, numeric: true, write: true})
	v.add(VarCO2, varRef{kind: varCO2, numeric: true, write: true})
	v.add(VarLight, varRef{kind: varLight, write: true})
	v.add(VarExperiment, varRef{kind: varExperiment, numeric: true})
	v.add(VarO2Sensor, varRef{kind: varO2Sensor, numeric: true})
	v.add(VarCO2Sensor, varRef{kind: varCO2Sensor, numeric: true})
	for _, k := range cat.Kinds() {
		p := cat.PropertiesOf(k)
		v.add(p.CountVar, varRef{kind: varCount, org: k, numeric: true, write: true})
		v.add(p.FoodVar, varRef{kind: varFood, org: k, numeric: true, write: true})
	}
	return v
}

func (v *Vars) add(name string, ref varRef) {
	v.refs[name] = ref
	v.names = append(v.names, name)
}

// Names returns every variable name in registration order.
func (v *Vars) Names() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

func (v *Vars) lookup(name string) (varRef, error) {
	ref, ok := v.refs[name]
	if !ok {
		return varRef{}, fmt.Errorf("%w: %q", ErrUnknownVar, name)
	}
	return ref, nil
}

// Get reads a variable. Light reads as 1 or 0.
func (v *Vars) Get(s State, name string) (float64, error) {
	ref, err := v.lookup(name)
	if err != nil {
		return 0, err
	}
	switch ref.kind {
	case varTime:
		return float64(s.Time), nil
	case varO2:
		return s.O2, nil
	case varCO2:
		return s.CO2, nil
	case varLight:
		if s.Light {
			return 1, nil
		}
		return 0, nil
	case varExperiment:
		return float64(s.ExperimentID), nil
	case varO2Sensor:
		return s.O2Sensor, nil
	case varCO2Sensor:
		return s.CO2Sensor, nil
	case varCount:
		return float64(s.Populations[ref.org].Count), nil
	case varFood:
		return s.Populations[ref.org].StoredFood, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVar, name)
}

// Set writes a variable, clamping it into its valid range.
func (v *Vars) Set(s *State, name string, value float64) error {
	ref, err := v.lookup(name)
	if err != nil {
		return err
	}
	if !ref.write {
		return fmt.Errorf("%w: %q", ErrReadOnly, name)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s = %v", ErrInvalidValue, name, value)
	}
	switch ref.kind {
	case varTime:
		s.Time = int(math.Max(0, math.Round(value)))
	case varO2:
		s.O2 = math.Max(0, value)
	case varCO2:
		s.CO2 = math.Max(0, value)
	case varLight:
		s.Light = value != 0
	case varCount:
		s.Populations[ref.org].Count = int(math.Max(0, math.Round(value)))
	case varFood:
		s.Populations[ref.org].StoredFood = clamp(value, 0, MaxFood)
	}
	return nil
}

// Inc adds one to a numeric variable.
func (v *Vars) Inc(s *State, name string) error {
	ref, err := v.lookup(name)
	if err != nil {
		return err
	}
	if !ref.write {
		return fmt.Errorf("%w: %q", ErrReadOnly, name)
	}
	if !ref.numeric {
		return fmt.Errorf("%w: %q", ErrNotNumeric, name)
	}
	cur, err := v.Get(*s, name)
	if err != nil {
		return err
	}
	return v.Set(s, name, cur+1)
}
