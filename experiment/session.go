// Package experiment owns the single live chamber and the commands that
// act on it, from the UI or from a running script.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"github.com/pthm-cable/ecochamber/chamber"
	"github.com/pthm-cable/ecochamber/config"
	"github.com/pthm-cable/ecochamber/export"
	"github.com/pthm-cable/ecochamber/organism"
	"github.com/pthm-cable/ecochamber/script"
	"github.com/pthm-cable/ecochamber/systems"
	"github.com/pthm-cable/ecochamber/telemetry"
)

// ErrNegativeWait is returned when asked to wait a negative number of ticks.
var ErrNegativeWait = errors.New("experiment: negative tick count")

// Options configure a Session. Zero values pick defaults.
type Options struct {
	Config  *config.Config
	Catalog *organism.Catalog // built from Config when nil
	Source  rand.Source       // seeded from Config.Seed when nil
	Adapter export.Adapter    // records are logged when nil
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	RunID   string // random UUID when empty

	// OnWindow receives every completed telemetry window.
	OnWindow func(telemetry.WindowStats)
}

// Session is the single live chamber. Every command replaces the state
// under one mutex, so no caller sees a half-applied tick.
type Session struct {
	mu          sync.Mutex
	state       chamber.State
	selection   telemetry.Selection
	highlighted string

	cfg        *config.Config
	cat        *organism.Catalog
	vars       *chamber.Vars
	defaults   chamber.Defaults
	engine     *systems.Engine
	noise      *systems.SensorNoise
	recorder   *telemetry.Recorder
	collector  *telemetry.Collector
	dispatcher *export.Dispatcher
	runner     *script.Runner
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	runID      string
}

// New creates a session at experiment 0 with default chamber state.
func New(opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cat := opts.Catalog
	if cat == nil {
		var err error
		if cat, err = organism.FromConfig(cfg.Organisms); err != nil {
			return nil, fmt.Errorf("building catalog: %w", err)
		}
	}

	src := opts.Source
	if src == nil {
		seed := uint64(cfg.Seed)
		src = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	adapter := opts.Adapter
	if adapter == nil {
		adapter = export.NewLog(logger)
	}

	opt := systems.OptionsFromConfig(cfg.Engine)
	s := &Session{
		cfg:       cfg,
		cat:       cat,
		vars:      chamber.NewVars(cat),
		defaults:  chamber.DefaultsFromConfig(cfg.Chamber),
		engine:    systems.NewEngine(cat, opt, src),
		noise:     systems.NewSensorNoise(cfg.Engine.SensorNoise, cfg.Engine.NoiseMultiplier, src),
		recorder:  telemetry.NewRecorder(cat, opt.FoodReserve),
		collector: telemetry.NewCollector(cfg.Telemetry.WindowTicks),
		metrics:   opts.Metrics,
		logger:    logger.With("run_id", runID),
		runID:     runID,
		selection: telemetry.NewSelection(cfg.Recorder.Tracked),
	}
	s.dispatcher = export.NewDispatcher(adapter, cfg.Export.QueueSize, s.logger, s.metrics)
	s.runner = script.NewRunner(s, script.RunnerOptions{
		StepDelay: cfg.Script.StepDelay,
		AllowRush: cfg.Script.AllowRush,
		Logger:    s.logger,
		Metrics:   s.metrics,
	})
	s.collector.OnFlush(func(ws telemetry.WindowStats) {
		s.logger.Debug("window", "stats", ws)
		if opts.OnWindow != nil {
			opts.OnWindow(ws)
		}
	})
	s.engine.SetObserver(systems.Observers{s.collector, s.metrics})

	s.state = chamber.New(s.defaults, cat.Len())
	s.noise.Refresh(&s.state)
	s.metrics.ObserveState(s.state)
	return s, nil
}

// RunID identifies this session in the data store.
func (s *Session) RunID() string {
	return s.runID
}

// Catalog returns the organism catalog.
func (s *Session) Catalog() *organism.Catalog {
	return s.cat
}

// Vars returns the script variable names.
func (s *Session) Vars() []string {
	return s.vars.Names()
}

// State returns a copy of the live chamber state.
func (s *Session) State() chamber.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// AddOrganism adds one individual of the named kind.
func (s *Session) AddOrganism(name string) error {
	k, err := s.cat.Lookup(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.AddOrganism(k)
	s.metrics.ObserveState(s.state)
	return nil
}

// ToggleLight flips the light and returns the new setting.
func (s *Session) ToggleLight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Light = !s.state.Light
	return s.state.Light
}

// Wait advances the chamber by ticks. Zero ticks changes nothing.
func (s *Session) Wait(ticks int) error {
	if ticks < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeWait, ticks)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticks == 0 {
		return nil
	}
	next, _ := s.engine.Advance(s.state, nil, ticks)
	s.noise.Refresh(&next)
	s.state = next
	return nil
}

// Reset starts the next experiment from default state. The tracked
// variable selection is kept.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.state.Reset(s.defaults)
	s.noise.Refresh(&s.state)
	s.metrics.ObserveState(s.state)
	s.logger.Info("experiment reset", "experiment", s.state.ExperimentID)
	return nil
}

// GetVar reads a script variable.
func (s *Session) GetVar(name string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vars.Get(s.state, name)
}

// SetVar writes a script variable.
func (s *Session) SetVar(name string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutate(func(st *chamber.State) error { return s.vars.Set(st, name, value) })
}

// IncVar adds one to a numeric script variable.
func (s *Session) IncVar(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutate(func(st *chamber.State) error { return s.vars.Inc(st, name) })
}

// mutate applies fn to a copy and commits it on success. Sensors follow
// time. Callers hold s.mu.
func (s *Session) mutate(fn func(*chamber.State) error) error {
	next := s.state.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if next.Time != s.state.Time {
		s.noise.Refresh(&next)
	}
	s.state = next
	s.metrics.ObserveState(s.state)
	return nil
}

// ToggleTracked flips whether name is exported and returns the new flag.
func (s *Session) ToggleTracked(name string) (bool, error) {
	if err := s.recorder.Trackable(name); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Toggle(name), nil
}

// Tracked returns a copy of the tracked variable selection.
func (s *Session) Tracked() telemetry.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Clone()
}

// TrackableVars lists the variables that have a record column.
func (s *Session) TrackableVars() []string {
	return s.recorder.TrackableVars()
}

// BuildRecord returns the record for the current state.
func (s *Session) BuildRecord() telemetry.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder.Build(s.state, s.selection)
}

// RecordData hands the current record to the exporter. Delivery happens in
// the background; failures are logged, never returned.
func (s *Session) RecordData() error {
	rec := s.BuildRecord()
	s.dispatcher.Submit(rec)
	return nil
}

// HighlightBlock marks the block about to run.
func (s *Session) HighlightBlock(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highlighted = id
}

// Highlighted returns the current block id, or "" when none.
func (s *Session) Highlighted() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highlighted
}

// StartScript compiles Lua source and runs it.
func (s *Session) StartScript(ctx context.Context, source string, rush bool) error {
	l, err := script.NewLua(source, s)
	if err != nil {
		return err
	}
	if err := s.runner.Start(ctx, l, rush); err != nil {
		_ = l.Close()
		return err
	}
	return nil
}

// StartProgram runs a Go instruction list.
func (s *Session) StartProgram(ctx context.Context, rush bool, instrs ...script.Instruction) error {
	return s.runner.Start(ctx, script.NewProgram(s, instrs...), rush)
}

// ToggleScript is the start/stop button: STOPPED starts source, RUNNING
// speeds up to RUSHING when allowed, anything else stops.
func (s *Session) ToggleScript(ctx context.Context, source string) (script.RunState, error) {
	return s.runner.Toggle(ctx, func() (script.Interpreter, error) {
		return script.NewLua(source, s)
	})
}

// StopScript stops the running script at the next instruction boundary.
func (s *Session) StopScript() {
	s.runner.Stop()
}

// ScriptState returns the run state.
func (s *Session) ScriptState() script.RunState {
	return s.runner.State()
}

// WaitScript blocks until the running script ends and returns its error.
func (s *Session) WaitScript(ctx context.Context) error {
	return s.runner.Wait(ctx)
}

// Flush waits until every submitted record has been handled.
func (s *Session) Flush(ctx context.Context) error {
	return s.dispatcher.Sync(ctx)
}

// Close stops any script and drains the export queue.
func (s *Session) Close() {
	s.runner.Stop()
	s.dispatcher.Close()
}
