package script

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/Shopify/go-lua"
)

// Globals removed from the script environment.
var sandboxed = []string{"os", "io", "dofile", "loadfile", "require", "package"}

type stepResult struct {
	done bool
	err  error
}

// Lua runs generated Lua source against Primitives. The primitives are
// globals (getVar, setVar, incVar, wait, reset, recordData, highlightBlock)
// and also live in the chamber table. One instruction is everything up to
// and including the next primitive call.
//
// The script runs on its own goroutine in strict hand-off with Step, so
// only one side executes at a time. A script that loops forever without
// calling a primitive cannot be interrupted.
type Lua struct {
	prims Primitives
	state *lua.State

	resume chan struct{}
	yield  chan stepResult

	started bool
	done    bool
	closed  bool

	// worker-owned while the script runs
	aborted bool
	primErr error
}

// NewLua compiles source. Syntax errors are reported here.
func NewLua(source string, p Primitives) (*Lua, error) {
	l := &Lua{
		prims:  p,
		state:  lua.NewState(),
		resume: make(chan struct{}),
		yield:  make(chan stepResult, 1),
	}
	lua.OpenLibraries(l.state)
	for _, name := range sandboxed {
		l.state.PushNil()
		l.state.SetGlobal(name)
	}
	if err := l.register(); err != nil {
		return nil, fmt.Errorf("register primitives: %w", err)
	}

	if err := lua.LoadString(l.state, source); err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}
	return l, nil
}

// Copies the chamber table into globals so generated code can call the
// primitives unqualified.
const exposePrimitives = `for name, fn in pairs(chamber) do _G[name] = fn end`

func (l *Lua) register() error {
	l.state.NewTable()
	lua.SetFunctions(l.state, []lua.RegistryFunction{
		{Name: "getVar", Function: l.getVar},
		{Name: "setVar", Function: l.setVar},
		{Name: "incVar", Function: l.incVar},
		{Name: "wait", Function: l.wait},
		{Name: "reset", Function: l.reset},
		{Name: "recordData", Function: l.recordData},
		{Name: "highlightBlock", Function: l.highlightBlock},
	}, 0)
	l.state.SetGlobal("chamber")

	if err := lua.LoadString(l.state, exposePrimitives); err != nil {
		return err
	}
	return l.state.ProtectedCall(0, 0, 0)
}

// Step implements Interpreter.
func (l *Lua) Step(ctx context.Context) (bool, error) {
	if l.closed {
		return false, ErrClosed
	}
	if l.done {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return true, err
	}
	if !l.started {
		l.started = true
		go l.run()
	}

	select {
	case l.resume <- struct{}{}:
	case <-ctx.Done():
		return true, ctx.Err()
	}
	// The instruction always runs to its boundary.
	r := <-l.yield
	if r.done {
		l.done = true
		return false, r.err
	}
	return true, nil
}

// Close implements Interpreter.
func (l *Lua) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if l.started && !l.done {
		close(l.resume)
		for r := range l.yield {
			if r.done {
				break
			}
		}
		l.done = true
	}
	return nil
}

func (l *Lua) run() {
	if _, ok := <-l.resume; !ok {
		// Closed before the first instruction; Close still waits for done.
		l.yield <- stepResult{done: true, err: ErrAborted}
		return
	}
	defer func() {
		if l.aborted {
			l.yield <- stepResult{done: true, err: ErrAborted}
		}
	}()
	err := l.state.ProtectedCall(0, 0, 0)
	l.yield <- stepResult{done: true, err: l.finish(err)}
}

func (l *Lua) finish(err error) error {
	switch {
	case l.aborted:
		return ErrAborted
	case err == nil:
		return nil
	default:
		return &Error{Message: err.Error(), Err: l.primErr}
	}
}

// boundary hands control back to Step and waits to be resumed. On Close
// the worker exits on the spot; a Lua error could be swallowed by pcall.
func (l *Lua) boundary() {
	l.yield <- stepResult{}
	if _, ok := <-l.resume; !ok {
		l.aborted = true
		runtime.Goexit()
	}
}

func (l *Lua) enter() {
	l.primErr = nil
}

func (l *Lua) fail(state *lua.State, err error) {
	l.primErr = err
	lua.Errorf(state, "%s", err.Error())
}

func (l *Lua) getVar(state *lua.State) int {
	l.enter()
	name := lua.CheckString(state, 1)
	v, err := l.prims.GetVar(name)
	if err != nil {
		l.fail(state, err)
		return 0
	}
	l.boundary()
	state.PushNumber(v)
	return 1
}

func (l *Lua) setVar(state *lua.State) int {
	l.enter()
	name := lua.CheckString(state, 1)
	var v float64
	if state.TypeOf(2) == lua.TypeBoolean {
		if state.ToBoolean(2) {
			v = 1
		}
	} else {
		v = lua.CheckNumber(state, 2)
	}
	if err := l.prims.SetVar(name, v); err != nil {
		l.fail(state, err)
		return 0
	}
	l.boundary()
	return 0
}

func (l *Lua) incVar(state *lua.State) int {
	l.enter()
	name := lua.CheckString(state, 1)
	if err := l.prims.IncVar(name); err != nil {
		l.fail(state, err)
		return 0
	}
	l.boundary()
	return 0
}

func (l *Lua) wait(state *lua.State) int {
	l.enter()
	n := lua.CheckNumber(state, 1)
	if n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		lua.ArgumentError(state, 1, "non-negative tick count expected")
		return 0
	}
	if err := l.prims.Wait(int(math.Round(n))); err != nil {
		l.fail(state, err)
		return 0
	}
	l.boundary()
	return 0
}

func (l *Lua) reset(state *lua.State) int {
	l.enter()
	if err := l.prims.Reset(); err != nil {
		l.fail(state, err)
		return 0
	}
	l.boundary()
	return 0
}

func (l *Lua) recordData(state *lua.State) int {
	l.enter()
	if err := l.prims.RecordData(); err != nil {
		l.fail(state, err)
		return 0
	}
	l.boundary()
	return 0
}

func (l *Lua) highlightBlock(state *lua.State) int {
	l.enter()
	l.prims.HighlightBlock(lua.OptString(state, 1, ""))
	l.boundary()
	return 0
}
