// Package script drives experiment programs one instruction at a time.
package script

import (
	"context"
	"errors"
)

// Primitives is the fixed capability surface a script may use.
type Primitives interface {
	GetVar(name string) (float64, error)
	SetVar(name string, value float64) error
	IncVar(name string) error
	// Wait advances the simulation by ticks.
	Wait(ticks int) error
	// Reset starts a new experiment from default state.
	Reset() error
	// RecordData builds a record from the tracked variables and hands it
	// to the exporter.
	RecordData() error
	// HighlightBlock marks the block about to run. An empty id clears it.
	HighlightBlock(id string)
}

// Interpreter executes a program one instruction at a time. It is driven
// from a single goroutine and is not safe for concurrent use.
type Interpreter interface {
	// Step executes exactly one instruction and reports whether more remain.
	Step(ctx context.Context) (more bool, err error)
	// Close releases the interpreter, aborting an unfinished program.
	Close() error
}

var (
	ErrAborted        = errors.New("script: aborted")
	ErrClosed         = errors.New("script: interpreter closed")
	ErrAlreadyRunning = errors.New("script: already running")
)

// Error is a runtime error raised while executing a script. Err is the
// primitive failure behind it, if any.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }
