package script

import (
	"errors"
	"fmt"
	"sync"
)

var errNoSuchVar = errors.New("no such variable")

// fakePrims records every primitive call.
type fakePrims struct {
	mu        sync.Mutex
	vars      map[string]float64
	calls     []string
	highlight string
	onWait    func(n int)
}

func newFakePrims() *fakePrims {
	return &fakePrims{vars: map[string]float64{"x": 4, "light": 1}}
}

func (f *fakePrims) log(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakePrims) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePrims) Highlighted() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.highlight
}

func (f *fakePrims) Var(name string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vars[name]
}

func (f *fakePrims) GetVar(name string) (float64, error) {
	f.log("get %s", name)
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[name]
	if !ok {
		return 0, errNoSuchVar
	}
	return v, nil
}

func (f *fakePrims) SetVar(name string, v float64) error {
	f.log("set %s %v", name, v)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vars[name] = v
	return nil
}

func (f *fakePrims) IncVar(name string) error {
	f.log("inc %s", name)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vars[name]++
	return nil
}

func (f *fakePrims) Wait(n int) error {
	f.log("wait %d", n)
	if f.onWait != nil {
		f.onWait(n)
	}
	return nil
}

func (f *fakePrims) Reset() error {
	f.log("reset")
	return nil
}

func (f *fakePrims) RecordData() error {
	f.log("record")
	return nil
}

func (f *fakePrims) HighlightBlock(id string) {
	f.log("highlight %s", id)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.highlight = id
}
