package dfg

import (
	"fmt"
	"strings"

	"github.com/l3aro/go-bytecode-flow/pkg/bytecode"
	"github.com/l3aro/go-bytecode-flow/pkg/cfg"
)

// Frame is the register and operand-stack state at one pc. Frames behave as
// values: every mutating method returns the frame to use from then on, and a
// frozen frame is never written, so frames published at a pc can be shared
// freely. Registers, stack and subroutine stack are copied lazily, only when
// the part is first written.
type Frame struct {
	regs     []ValueID
	stack    []ValueID
	subs     []cfg.SubID
	maxStack int

	frozen            bool
	ownRegs, ownStack bool
}

// NewFrame returns a frame with every register empty and an empty stack.
func NewFrame(registers, maxStack int) *Frame {
	regs := make([]ValueID, registers)
	for i := range regs {
		regs[i] = NoValue
	}
	return &Frame{regs: regs, maxStack: maxStack, ownRegs: true, ownStack: true}
}

// Freeze marks f as published and returns it.
func (f *Frame) Freeze() *Frame {
	f.frozen = true
	return f
}

// Frozen reports whether f has been published.
func (f *Frame) Frozen() bool { return f.frozen }

// Thaw returns a writable frame with the same contents as f, sharing storage
// until the first write.
func (f *Frame) Thaw() *Frame {
	if !f.frozen {
		return f
	}
	return f.share()
}

// share returns an unfrozen frame over f's storage; its first write to each
// part copies that part.
func (f *Frame) share() *Frame {
	return &Frame{regs: f.regs, stack: f.stack, subs: f.subs, maxStack: f.maxStack}
}

// Registers returns the register count.
func (f *Frame) Registers() int { return len(f.regs) }

// StackSize returns the operand stack depth.
func (f *Frame) StackSize() int { return len(f.stack) }

// MaxStack returns the declared stack bound.
func (f *Frame) MaxStack() int { return f.maxStack }

// Len returns registers plus stack depth.
func (f *Frame) Len() int { return len(f.regs) + len(f.stack) }

// Slot returns slot i; registers come first, then the stack bottom-up.
func (f *Frame) Slot(i int) ValueID {
	if i < len(f.regs) {
		return f.regs[i]
	}
	return f.stack[i-len(f.regs)]
}

// Load returns the value in reg, or NoValue.
func (f *Frame) Load(reg int) ValueID {
	if reg < 0 || reg >= len(f.regs) {
		return NoValue
	}
	return f.regs[reg]
}

// Peek returns the value i entries below the top (0 is the top), or NoValue.
func (f *Frame) Peek(i int) ValueID {
	j := len(f.stack) - 1 - i
	if i < 0 || j < 0 {
		return NoValue
	}
	return f.stack[j]
}

// Stack returns a copy of the operand stack, bottom first.
func (f *Frame) Stack() []ValueID {
	return append([]ValueID(nil), f.stack...)
}

// Subs returns the active subroutine contexts, innermost last.
func (f *Frame) Subs() []cfg.SubID {
	return append([]cfg.SubID(nil), f.subs...)
}

// Store writes v into reg.
func (f *Frame) Store(reg int, v ValueID) *Frame {
	f = f.Thaw()
	if !f.ownRegs {
		f.regs = append([]ValueID(nil), f.regs...)
		f.ownRegs = true
	}
	f.regs[reg] = v
	return f
}

// Push pushes v. Exceeding the declared bound is a *bytecode.VerifyError.
func (f *Frame) Push(pc int, v ValueID) (*Frame, error) {
	if len(f.stack) >= f.maxStack {
		return f, bytecode.Verifyf(pc, "stack overflow: max stack %d", f.maxStack)
	}
	f = f.Thaw()
	if !f.ownStack {
		f.stack = append(make([]ValueID, 0, len(f.stack)+1), f.stack...)
		f.ownStack = true
	}
	f.stack = append(f.stack, v)
	return f, nil
}

// Pop removes the top value. Popping an empty stack is a *bytecode.VerifyError.
func (f *Frame) Pop(pc int) (*Frame, ValueID, error) {
	if len(f.stack) == 0 {
		return f, NoValue, bytecode.Verifyf(pc, "stack underflow")
	}
	f = f.Thaw()
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return f, v, nil
}

// PopN pops n values and returns them bottom first.
func (f *Frame) PopN(pc, n int) (*Frame, []ValueID, error) {
	if len(f.stack) < n {
		return f, nil, bytecode.Verifyf(pc, "stack underflow: need %d values, have %d", n, len(f.stack))
	}
	f = f.Thaw()
	vs := append([]ValueID(nil), f.stack[len(f.stack)-n:]...)
	f.stack = f.stack[:len(f.stack)-n]
	return f, vs, nil
}

// WithStack returns a frame with f's registers and subroutines and the given stack.
func (f *Frame) WithStack(stack []ValueID) *Frame {
	f = f.Thaw()
	f.stack = append([]ValueID(nil), stack...)
	f.ownStack = true
	return f
}

// PushSub enters subroutine s.
func (f *Frame) PushSub(s cfg.SubID) *Frame {
	f = f.Thaw()
	f.subs = append(append(make([]cfg.SubID, 0, len(f.subs)+1), f.subs...), s)
	return f
}

// PopSub leaves s and every context entered after it. ok is false when s is
// not active.
func (f *Frame) PopSub(s cfg.SubID) (*Frame, bool) {
	for i := len(f.subs) - 1; i >= 0; i-- {
		if f.subs[i] == s {
			f = f.Thaw()
			f.subs = f.subs[:i]
			return f, true
		}
	}
	return f, false
}

// Equal reports whether both frames hold the same nodes in every slot and the
// same subroutine contexts.
func (f *Frame) Equal(o *Frame) bool {
	if f == o {
		return true
	}
	if f == nil || o == nil {
		return false
	}
	return equalIDs(f.regs, o.regs) && equalIDs(f.stack, o.stack) && equalSubs(f.subs, o.subs)
}

func (f *Frame) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < f.Len(); i++ {
		switch {
		case i == len(f.regs):
			sb.WriteString(" | ")
		case i > 0:
			sb.WriteString(" ")
		}
		v := f.Slot(i)
		if v == NoValue {
			sb.WriteString("-")
		} else {
			fmt.Fprintf(&sb, "v%d", v)
		}
	}
	sb.WriteString("]")
	return sb.String()
}

func equalIDs(a, b []ValueID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalSubs(a, b []cfg.SubID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (f *Frame) withSubs(subs []cfg.SubID) *Frame {
	f = f.Thaw()
	f.subs = append([]cfg.SubID(nil), subs...)
	return f
}

func commonSubs(a, b []cfg.SubID) []cfg.SubID {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return a[:n]
}
