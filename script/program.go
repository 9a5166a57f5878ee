package script

import "context"

// Instruction is one step of a Program.
type Instruction func(ctx context.Context, p Primitives) error

// Program is an Interpreter over a fixed list of Go instructions.
type Program struct {
	prims  Primitives
	instrs []Instruction
	pc     int
	closed bool
}

// NewProgram returns a program that runs instrs against p in order.
func NewProgram(p Primitives, instrs ...Instruction) *Program {
	return &Program{prims: p, instrs: instrs}
}

// Step implements Interpreter.
func (p *Program) Step(ctx context.Context) (bool, error) {
	if p.closed {
		return false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return p.pc < len(p.instrs), err
	}
	if p.pc >= len(p.instrs) {
		return false, nil
	}
	instr := p.instrs[p.pc]
	p.pc++
	if err := instr(ctx, p.prims); err != nil {
		p.pc = len(p.instrs)
		return false, err
	}
	return p.pc < len(p.instrs), nil
}

// Close implements Interpreter.
func (p *Program) Close() error {
	p.closed = true
	return nil
}

// Executed returns the number of instructions run so far.
func (p *Program) Executed() int {
	return p.pc
}

// Wait returns an instruction that advances the simulation.
func Wait(ticks int) Instruction {
	return func(_ context.Context, p Primitives) error { return p.Wait(ticks) }
}

// SetVar returns an instruction that writes a variable.
func SetVar(name string, value float64) Instruction {
	return func(_ context.Context, p Primitives) error { return p.SetVar(name, value) }
}

// IncVar returns an instruction that increments a variable.
func IncVar(name string) Instruction {
	return func(_ context.Context, p Primitives) error { return p.IncVar(name) }
}

// Reset returns an instruction that starts a new experiment.
func Reset() Instruction {
	return func(_ context.Context, p Primitives) error { return p.Reset() }
}

// RecordData returns an instruction that records the tracked variables.
func RecordData() Instruction {
	return func(_ context.Context, p Primitives) error { return p.RecordData() }
}

// Highlight returns an instruction that marks block id as current.
func Highlight(id string) Instruction {
	return func(_ context.Context, p Primitives) error {
		p.HighlightBlock(id)
		return nil
	}
}

// Repeat flattens n copies of body into one instruction list. n <= 0
// yields an empty list.
func Repeat(n int, body ...Instruction) []Instruction {
	if n <= 0 {
		return nil
	}
	out := make([]Instruction, 0, n*len(body))
	for i := 0; i < n; i++ {
		out = append(out, body...)
	}
	return out
}
