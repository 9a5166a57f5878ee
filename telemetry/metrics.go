package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pthm-cable/ecochamber/chamber"
	"github.com/pthm-cable/ecochamber/systems"
)

const namespace = "ecochamber"

// Death causes used as metric labels.
const (
	CauseHypoxia    = "hypoxia"
	CauseStarvation = "starvation"
	CauseShortfall  = "o2_shortfall"
)

// Metrics exposes chamber and runtime counters on a private registry.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry
	kinds    []string

	ticks        prometheus.Counter
	o2           prometheus.Gauge
	co2          prometheus.Gauge
	population   *prometheus.GaugeVec
	deaths       *prometheus.CounterVec
	instructions prometheus.Counter
	scriptRuns   *prometheus.CounterVec
	runState     prometheus.Gauge
	recordsSent  prometheus.Counter
	exportFails  *prometheus.CounterVec
	exportDrops  prometheus.Counter
}

// NewMetrics registers the collectors. kinds are the population label
// values, indexed by organism.Kind.
func NewMetrics(kinds []string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		kinds:    append([]string(nil), kinds...),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Simulation ticks advanced.",
		}),
		o2: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "o2",
			Help: "True O2 quantity in the chamber.",
		}),
		co2: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "co2",
			Help: "True CO2 quantity in the chamber.",
		}),
		population: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "population",
			Help: "Organism count by kind.",
		}, []string{"kind"}),
		deaths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deaths_total",
			Help: "Organism losses by kind and cause.",
		}, []string{"kind", "cause"}),
		instructions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "script_instructions_total",
			Help: "Script instructions executed.",
		}),
		scriptRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "script_runs_total",
			Help: "Finished script runs by outcome.",
		}, []string{"outcome"}),
		runState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "script_run_state",
			Help: "Script run state: 0 stopped, 1 running, 2 rushing.",
		}),
		recordsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "export_records_total",
			Help: "Records delivered to the export adapter.",
		}),
		exportFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "export_failures_total",
			Help: "Export adapter failures by operation.",
		}, []string{"op"}),
		exportDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "export_dropped_total",
			Help: "Export jobs dropped because the queue was full.",
		}),
	}
	m.registry.MustRegister(
		m.ticks, m.o2, m.co2, m.population, m.deaths,
		m.instructions, m.scriptRuns, m.runState,
		m.recordsSent, m.exportFails, m.exportDrops,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTick implements systems.Observer.
func (m *Metrics) ObserveTick(s chamber.State, r systems.Report) {
	if m == nil {
		return
	}
	m.ticks.Add(float64(r.Ticks))
	m.ObserveState(s)
	for i, k := range r.Kinds {
		name := m.kindName(i)
		if k.Deaths > 0 {
			m.deaths.WithLabelValues(name, CauseHypoxia).Add(float64(k.Deaths))
		}
		if k.Starvations > 0 {
			m.deaths.WithLabelValues(name, CauseStarvation).Add(float64(k.Starvations))
		}
		if k.Extinctions > 0 {
			m.deaths.WithLabelValues(name, CauseShortfall).Add(float64(k.Extinctions))
		}
	}
}

// ObserveState updates the gas and population gauges.
func (m *Metrics) ObserveState(s chamber.State) {
	if m == nil {
		return
	}
	m.o2.Set(s.O2)
	m.co2.Set(s.CO2)
	for i, p := range s.Populations {
		m.population.WithLabelValues(m.kindName(i)).Set(float64(p.Count))
	}
}

// InstructionExecuted counts one script instruction.
func (m *Metrics) InstructionExecuted() {
	if m == nil {
		return
	}
	m.instructions.Inc()
}

// ScriptFinished counts a finished run.
func (m *Metrics) ScriptFinished(outcome string) {
	if m == nil {
		return
	}
	m.scriptRuns.WithLabelValues(outcome).Inc()
}

// SetRunState records the current run state.
func (m *Metrics) SetRunState(state int) {
	if m == nil {
		return
	}
	m.runState.Set(float64(state))
}

// RecordSent counts a delivered record.
func (m *Metrics) RecordSent() {
	if m == nil {
		return
	}
	m.recordsSent.Inc()
}

// ExportFailed counts a failed adapter call.
func (m *Metrics) ExportFailed(op string) {
	if m == nil {
		return
	}
	m.exportFails.WithLabelValues(op).Inc()
}

// ExportDropped counts a job rejected by a full queue.
func (m *Metrics) ExportDropped() {
	if m == nil {
		return
	}
	m.exportDrops.Inc()
}

func (m *Metrics) kindName(i int) string {
	if i < len(m.kinds) {
		return m.kinds[i]
	}
	return "unknown"
}
