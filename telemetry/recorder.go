package telemetry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pthm-cable/ecochamber/chamber"
	"github.com/pthm-cable/ecochamber/organism"
)

// External record field names.
const (
	FieldExperiment = "experiment_number"
	FieldHour       = "hour"
	FieldO2         = "O2"
	FieldCO2        = "CO2"
	FieldLight      = "light"
)

// ErrUntracked is returned when a variable has no record column.
var ErrUntracked = errors.New("telemetry: variable has no record column")

// Selection maps script variable names to whether they are exported.
// Missing names are not exported.
type Selection map[string]bool

// NewSelection copies the configured defaults.
func NewSelection(defaults map[string]bool) Selection {
	s := make(Selection, len(defaults))
	for k, v := range defaults {
		s[k] = v
	}
	return s
}

// Toggle flips the flag for name and returns the new value.
func (s Selection) Toggle(name string) bool {
	s[name] = !s[name]
	return s[name]
}

// Clone returns an independent copy.
func (s Selection) Clone() Selection {
	return NewSelection(s)
}

// Column binds a script variable to a record field.
type Column struct {
	Var   string
	Field string
	// Dynamic columns are not part of the data set template and must be
	// ensured on the export side before the first record that carries them.
	Dynamic bool

	read func(chamber.State) float64
}

// Value is one field of a record.
type Value struct {
	Name  string
	Value float64
}

// Record is one exported observation.
type Record struct {
	ExperimentNumber int
	Values           []Value
	Dynamic          []string // field names among Values that are dynamic
}

// Get returns the value of the named field.
func (r Record) Get(name string) (float64, bool) {
	if name == FieldExperiment {
		return float64(r.ExperimentNumber), true
	}
	for _, v := range r.Values {
		if v.Name == name {
			return v.Value, true
		}
	}
	return 0, false
}

// Fields returns every field name, experiment number first.
func (r Record) Fields() []string {
	out := make([]string, 0, len(r.Values)+1)
	out = append(out, FieldExperiment)
	for _, v := range r.Values {
		out = append(out, v.Name)
	}
	return out
}

// LogValue implements slog.LogValuer for structured logging.
func (r Record) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(r.Values)+1)
	attrs = append(attrs, slog.Int(FieldExperiment, r.ExperimentNumber))
	for _, v := range r.Values {
		attrs = append(attrs, slog.Float64(v.Name, v.Value))
	}
	return slog.GroupValue(attrs...)
}

// Recorder turns chamber state into records.
type Recorder struct {
	columns []Column
	byVar   map[string]int
}

// NewRecorder builds the column set for cat. Food columns exist only when
// the food reserve is modelled.
func NewRecorder(cat *organism.Catalog, foodReserve bool) *Recorder {
	r := &Recorder{byVar: make(map[string]int)}
	r.add(Column{Var: chamber.VarTime, Field: FieldHour, read: func(s chamber.State) float64 {
		return float64(s.Time)
	}})
	r.add(Column{Var: chamber.VarO2, Field: FieldO2, read: func(s chamber.State) float64 {
		return s.O2Sensor
	}})
	r.add(Column{Var: chamber.VarCO2, Field: FieldCO2, read: func(s chamber.State) float64 {
		return s.CO2Sensor
	}})
	r.add(Column{Var: chamber.VarLight, Field: FieldLight, Dynamic: true, read: func(s chamber.State) float64 {
		if s.Light {
			return 1
		}
		return 0
	}})

	for _, k := range cat.Kinds() {
		k := k
		p := cat.PropertiesOf(k)
		r.add(Column{Var: p.CountVar, Field: p.CountField, Dynamic: true, read: func(s chamber.State) float64 {
			return float64(s.Populations[k].Count)
		}})
	}
	if foodReserve {
		for _, k := range cat.Kinds() {
			k := k
			p := cat.PropertiesOf(k)
			r.add(Column{Var: p.FoodVar, Field: p.FoodField, Dynamic: true, read: func(s chamber.State) float64 {
				return s.Populations[k].StoredFood
			}})
		}
	}
	return r
}

func (r *Recorder) add(c Column) {
	r.byVar[c.Var] = len(r.columns)
	r.columns = append(r.columns, c)
}

// Columns returns the column set in record order.
func (r *Recorder) Columns() []Column {
	out := make([]Column, len(r.columns))
	copy(out, r.columns)
	return out
}

// Trackable reports whether name has a record column.
func (r *Recorder) Trackable(name string) error {
	if _, ok := r.byVar[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUntracked, name)
	}
	return nil
}

// TrackableVars returns the variable names that can be selected, sorted.
func (r *Recorder) TrackableVars() []string {
	out := make([]string, 0, len(r.columns))
	for _, c := range r.columns {
		out = append(out, c.Var)
	}
	sort.Strings(out)
	return out
}

// Build returns the record for s: experiment number always, plus one value
// per selected column. Gas fields carry the sensor readings.
func (r *Recorder) Build(s chamber.State, sel Selection) Record {
	rec := Record{ExperimentNumber: s.ExperimentID}
	for _, c := range r.columns {
		if !sel[c.Var] {
			continue
		}
		rec.Values = append(rec.Values, Value{Name: c.Field, Value: c.read(s)})
		if c.Dynamic {
			rec.Dynamic = append(rec.Dynamic, c.Field)
		}
	}
	return rec
}
