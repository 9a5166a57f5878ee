package script

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pthm-cable/ecochamber/telemetry"
)

// RunState classifies the run loop.
type RunState int

const (
	Stopped RunState = iota
	Running
	Rushing
)

func (s RunState) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Running:
		return "RUNNING"
	case Rushing:
		return "RUSHING"
	}
	return "UNKNOWN"
}

// Run outcomes reported to metrics and spans.
const (
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
	OutcomeFailed    = "failed"
)

// RunnerOptions configure a Runner.
type RunnerOptions struct {
	// StepDelay is the pause between instructions while RUNNING.
	StepDelay time.Duration
	// AllowRush lets Toggle move from RUNNING to RUSHING.
	AllowRush bool
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics
}

// Runner drives one Interpreter at a time on a background goroutine. The
// run state is checked at every instruction boundary, so stopping never
// interrupts an instruction.
type Runner struct {
	prims Primitives
	opts  RunnerOptions

	mu     sync.Mutex
	state  RunState
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	steps  int
}

// NewRunner creates a stopped runner that clears highlights through p.
func NewRunner(p Primitives, opts RunnerOptions) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	closed := make(chan struct{})
	close(closed)
	return &Runner{prims: p, opts: opts, done: closed}
}

// State returns the current run state.
func (r *Runner) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the error that ended the last run, if any.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Steps returns the number of instructions executed by the last run.
func (r *Runner) Steps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.steps
}

// Start runs interp in the RUNNING state, or RUSHING when rush is set and
// allowed. The runner takes ownership of interp and closes it when the run
// ends.
func (r *Runner) Start(ctx context.Context, interp Interpreter, rush bool) error {
	r.mu.Lock()
	if r.state != Stopped {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	prev := r.done
	r.mu.Unlock()
	// A stopped loop may still be clearing up.
	<-prev

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Stopped || r.done != prev {
		return ErrAlreadyRunning
	}
	r.state = Running
	if rush && r.opts.AllowRush {
		r.state = Rushing
	}
	r.err = nil
	r.steps = 0
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.opts.Metrics.SetRunState(int(r.state))

	go r.loop(ctx, interp, r.done)
	return nil
}

// Toggle cycles STOPPED -> RUNNING -> RUSHING -> STOPPED. RUSHING is skipped
// unless allowed. newInterp is only called when starting.
func (r *Runner) Toggle(ctx context.Context, newInterp func() (Interpreter, error)) (RunState, error) {
	switch r.State() {
	case Stopped:
		interp, err := newInterp()
		if err != nil {
			return Stopped, err
		}
		if err := r.Start(ctx, interp, false); err != nil {
			_ = interp.Close()
			return r.State(), err
		}
		return Running, nil
	case Running:
		if r.opts.AllowRush {
			r.mu.Lock()
			if r.state == Running {
				r.state = Rushing
				r.opts.Metrics.SetRunState(int(Rushing))
			}
			st := r.state
			r.mu.Unlock()
			return st, nil
		}
	}
	r.Stop()
	return Stopped, nil
}

// Stop flips the state to STOPPED and waits for the loop to exit. An
// instruction in flight finishes first; no further instruction starts.
// Stop must not be called from inside a primitive.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.state = Stopped
	if r.cancel != nil {
		r.cancel()
	}
	done := r.done
	r.mu.Unlock()
	<-done
}

// Wait blocks until the current run ends or ctx is done and returns the
// run's error.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	select {
	case <-done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) loop(ctx context.Context, interp Interpreter, done chan struct{}) {
	ctx, span := telemetry.Tracer().Start(ctx, "script.run")
	defer span.End()

	var (
		runErr  error
		steps   int
		outcome = OutcomeCompleted
	)
	for {
		st := r.State()
		if st == Stopped || ctx.Err() != nil {
			outcome = OutcomeStopped
			break
		}

		more, err := interp.Step(ctx)
		steps++
		r.opts.Metrics.InstructionExecuted()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				outcome = OutcomeStopped
			} else {
				runErr = err
				outcome = OutcomeFailed
			}
			break
		}
		if !more {
			break
		}

		if delay := r.delay(); delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
		}
	}

	if err := interp.Close(); err != nil {
		r.opts.Logger.Warn("closing interpreter", "error", err)
	}
	r.prims.HighlightBlock("")

	span.SetAttributes(attribute.Int("script.steps", steps), attribute.String("script.outcome", outcome))
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		r.opts.Logger.Error("script failed", "steps", steps, "error", runErr)
	} else {
		r.opts.Logger.Info("script finished", "steps", steps, "outcome", outcome)
	}
	r.opts.Metrics.ScriptFinished(outcome)
	r.opts.Metrics.SetRunState(int(Stopped))

	r.mu.Lock()
	r.state = Stopped
	r.err = runErr
	r.steps = steps
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	close(done)
}

func (r *Runner) delay() time.Duration {
	if r.State() == Rushing {
		return 0
	}
	return r.opts.StepDelay
}
