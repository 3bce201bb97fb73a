package dfg

import (
	"container/list"
	"errors"
	"fmt"

	"github.com/l3aro/go-bytecode-flow/pkg/bytecode"
	"github.com/l3aro/go-bytecode-flow/pkg/cfg"
	"github.com/l3aro/go-bytecode-flow/pkg/diag"
	"github.com/l3aro/go-bytecode-flow/pkg/types"
)

// ErrNoFixedPoint is returned when a block is revisited more often than the
// visit bound allows. It indicates an engine bug, not bad input.
var ErrNoFixedPoint = errors.New("dataflow did not reach a fixed point")

// DefaultMaxVisits bounds the visits of a single block.
const DefaultMaxVisits = 256

// Options tune a Run.
type Options struct {
	// Lattice joins types; a lattice without class hierarchy when nil.
	Lattice *types.Lattice
	// Sink receives warnings; may be nil.
	Sink diag.Sink
	// MaxVisits bounds visits per block; DefaultMaxVisits when zero.
	MaxVisits int
}

type slotKey struct{ pc, slot int }

type resultKey struct{ pc, index int }

// inKey identifies one incoming frame of a block: the edge it travels and,
// for catch edges, the pc whose state it carries.
type inKey struct {
	edge cfg.EdgeID
	pc   int
}

type incoming struct {
	key inKey
	fr  *Frame
}

// Flow is the result of type inference over one CFG: the value arena and
// the frame before and after every reachable operation.
type Flow struct {
	g         *cfg.CFG
	m         *bytecode.Method
	vals      *Graph
	lat       *types.Lattice
	sink      diag.Sink
	maxVisits int

	in       []*Frame
	out      []*Frame
	entry    map[cfg.BlockID]*Frame
	incoming map[cfg.BlockID][]incoming

	// node reuse across revisits
	results map[resultKey]ValueID
	merges  map[slotKey]ValueID
	excs    map[int]ValueID

	visits map[cfg.BlockID]int
	work   *list.List
	queued map[cfg.BlockID]bool
}

// Run seeds the entry frame from the method signature and iterates the
// transfer functions to a fixed point. g is numbered first if needed.
// Stack underflow or overflow fails with a *bytecode.VerifyError.
func Run(g *cfg.CFG, opts Options) (*Flow, error) {
	if opts.Lattice == nil {
		opts.Lattice = types.NewLattice(nil)
	}
	if opts.MaxVisits <= 0 {
		opts.MaxVisits = DefaultMaxVisits
	}
	if len(g.PostorderBlocks()) == 0 {
		g.ComputePostorder()
	}

	m := g.Method()
	f := &Flow{
		g:         g,
		m:         m,
		vals:      NewGraph(opts.Lattice, opts.Sink),
		lat:       opts.Lattice,
		sink:      opts.Sink,
		maxVisits: opts.MaxVisits,
		in:        make([]*Frame, len(m.Ops)),
		out:       make([]*Frame, len(m.Ops)),
		entry:     make(map[cfg.BlockID]*Frame),
		incoming:  make(map[cfg.BlockID][]incoming),
		results:   make(map[resultKey]ValueID),
		merges:    make(map[slotKey]ValueID),
		excs:      make(map[int]ValueID),
		visits:    make(map[cfg.BlockID]int),
		work:      list.New(),
		queued:    make(map[cfg.BlockID]bool),
	}

	start, err := f.seed()
	if err != nil {
		return nil, err
	}
	if err := f.flow(g.Start(), inKey{edge: -1, pc: -1}, start); err != nil {
		return nil, err
	}

	for f.work.Len() > 0 {
		b := f.dequeue()
		f.visits[b.ID()]++
		if n := f.visits[b.ID()]; n > f.maxVisits {
			return nil, fmt.Errorf("%w: block %s visited %d times", ErrNoFixedPoint, b, n)
		}
		if err := f.visit(b); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// CFG returns the analyzed graph.
func (f *Flow) CFG() *cfg.CFG { return f.g }

// Values returns the value arena.
func (f *Flow) Values() *Graph { return f.vals }

// Value returns the node with the given id.
func (f *Flow) Value(id ValueID) *Value { return f.vals.Value(id) }

// FrameAt returns the frame before the operation at pc, or nil when pc is
// unreachable.
func (f *Flow) FrameAt(pc int) *Frame {
	if pc < 0 || pc >= len(f.in) {
		return nil
	}
	return f.in[pc]
}

// InFrame returns the frame before op.
func (f *Flow) InFrame(op *bytecode.Op) *Frame { return f.FrameAt(op.PC) }

// OutFrame returns the frame after op, or nil when op is unreachable.
func (f *Flow) OutFrame(op *bytecode.Op) *Frame {
	if op.PC < 0 || op.PC >= len(f.out) {
		return nil
	}
	return f.out[op.PC]
}

// EntryFrame returns the merged frame entering b.
func (f *Flow) EntryFrame(b *cfg.BB) *Frame { return f.entry[b.ID()] }

// TypeAt returns the type of slot at pc, Bottom when the slot is empty.
func (f *Flow) TypeAt(pc, slot int) types.Type {
	fr := f.FrameAt(pc)
	if fr == nil || slot < 0 || slot >= fr.Len() {
		return types.Bottom
	}
	return f.vals.Type(fr.Slot(slot))
}

// seed builds the frame at pc 0 from the receiver and parameter types.
func (f *Flow) seed() (*Frame, error) {
	m := f.m
	params, _, err := m.Signature()
	if err != nil {
		return nil, bytecode.Decodef(0, "descriptor %q: %v", m.Descriptor, err)
	}
	slots, _ := m.ParamSlots()

	fr := NewFrame(m.Registers, m.MaxStack)
	reg := 0
	if m.Family == bytecode.FamilyDex {
		reg = m.Registers - slots
	}
	if !m.Static {
		this := types.Object
		if m.Owner != "" {
			this = types.Ref(m.Owner)
		}
		v := f.vals.NewConst(-1, this, nil)
		f.vals.Value(v).Name = "this"
		fr = fr.Store(reg, v)
		reg++
	}
	for _, p := range params {
		v := f.vals.NewConst(-1, p, nil)
		if dv, ok := m.VarAt(reg, 0); ok {
			f.vals.Value(v).Name = dv.Name
		}
		fr = fr.Store(reg, v)
		reg++
		if p.IsWide() {
			reg++
		}
	}
	return fr, nil
}

func (f *Flow) enqueue(b *cfg.BB) {
	if f.queued[b.ID()] {
		return
	}
	f.queued[b.ID()] = true
	// keep the list in decreasing postorder
	for e := f.work.Front(); e != nil; e = e.Next() {
		if e.Value.(*cfg.BB).Postorder() < b.Postorder() {
			f.work.InsertBefore(b, e)
			return
		}
	}
	f.work.PushBack(b)
}

func (f *Flow) dequeue() *cfg.BB {
	b := f.work.Remove(f.work.Front()).(*cfg.BB)
	delete(f.queued, b.ID())
	return b
}

// flow records in as the frame arriving at b along key, recomputes the
// entry frame of b as the merge of all its incoming frames and schedules b
// when the entry changed.
func (f *Flow) flow(b *cfg.BB, key inKey, in *Frame) error {
	in.Freeze()
	ins := f.incoming[b.ID()]
	found := false
	for i := range ins {
		if ins[i].key == key {
			ins[i].fr = in
			found = true
			break
		}
	}
	if !found {
		ins = append(ins, incoming{key: key, fr: in})
		f.incoming[b.ID()] = ins
	}

	merged := ins[0].fr
	for _, x := range ins[1:] {
		var err error
		if merged, err = f.Merge(b.PC(), merged, x.fr); err != nil {
			return err
		}
	}
	cur := f.entry[b.ID()]
	if cur != nil && merged.Equal(cur) {
		return nil
	}
	f.entry[b.ID()] = merged.Freeze()
	f.enqueue(b)
	return nil
}

func (f *Flow) visit(b *cfg.BB) error {
	fr := f.entry[b.ID()]
	if fr == nil {
		return nil
	}
	var catches []*cfg.E
	for _, e := range f.g.OutEdges(b) {
		if e.IsCatch() {
			catches = append(catches, e)
		}
	}

	for _, op := range b.Ops() {
		f.in[op.PC] = fr
		for _, e := range catches {
			if err := f.flowCatch(op.PC, fr, e); err != nil {
				return err
			}
		}
		next, err := f.step(op, fr)
		if err != nil {
			return err
		}
		fr = next.Freeze()
		f.out[op.PC] = fr
	}

	for _, e := range f.g.OutEdges(b) {
		target := f.g.Block(e.End)
		switch e.Kind {
		case cfg.EdgeKindCatch:
			continue
		case cfg.EdgeKindJsr:
			if err := f.flow(target, inKey{edge: e.ID, pc: -1}, fr.PushSub(e.Sub)); err != nil {
				return err
			}
			// the call site state feeds every return from the subroutine
			for _, pc := range f.g.Sub(e.Sub).Rets {
				if rb := f.g.BlockOf(pc); rb != nil && f.entry[rb.ID()] != nil {
					f.enqueue(rb)
				}
			}
		case cfg.EdgeKindRet:
			rf, ok := f.retFrame(e, fr)
			if !ok {
				continue
			}
			if err := f.flow(target, inKey{edge: e.ID, pc: -1}, rf); err != nil {
				return err
			}
		default:
			if err := f.flow(target, inKey{edge: e.ID, pc: -1}, fr); err != nil {
				return err
			}
		}
	}
	return nil
}

// flowCatch sends the registers of fr, the state before the operation at
// pc, with the exception as the only stack entry, to the handler of e.
func (f *Flow) flowCatch(pc int, fr *Frame, e *cfg.E) error {
	h := f.g.Block(e.End)
	exc := f.exception(h.PC(), e)
	return f.flow(h, inKey{edge: e.ID, pc: pc}, fr.WithStack([]ValueID{exc}))
}

func (f *Flow) exception(pc int, e *cfg.E) ValueID {
	t := types.Bottom
	for _, c := range e.Catches {
		ct := types.Throwable
		if c != "" {
			ct = types.Ref(c)
		}
		t = f.vals.Join(pc, t, ct)
	}
	if !t.IsKnown() {
		t = types.Throwable
	}
	if id, ok := f.excs[pc]; ok {
		f.vals.MergeTo(id, t)
		return id
	}
	id := f.vals.NewConst(pc, t, nil)
	f.excs[pc] = id
	return id
}

// retFrame builds the frame a RET hands to one call continuation: registers
// the subroutine writes come from the RET, the rest from the call site.
func (f *Flow) retFrame(e *cfg.E, fr *Frame) (*Frame, bool) {
	s := f.g.Sub(e.Sub)
	cont := f.g.Block(e.End)
	call := f.FrameAt(cont.PC() - 1)
	if call == nil {
		return nil, false
	}
	out := fr
	for r := 0; r < fr.Registers(); r++ {
		if !s.WritesReg(r) && out.Load(r) != call.Load(r) {
			out = out.Store(r, call.Load(r))
		}
	}
	out, ok := out.PopSub(s.ID)
	if !ok {
		f.warnf(f.g.Block(e.Start).LastOp().PC, "ret outside the context of subroutine at pc %d", s.PC)
	}
	return out, true
}

// Merge joins two frames reaching pc. Slots holding the same node are kept;
// differing slots get the merge node owned by (pc, slot). A register whose
// values have no common type becomes empty. Merging a frame with itself
// returns it unchanged.
func (f *Flow) Merge(pc int, a, b *Frame) (*Frame, error) {
	if a.Equal(b) {
		return a, nil
	}
	if a.StackSize() != b.StackSize() {
		return a, bytecode.Verifyf(pc, "stack height mismatch at merge: %d vs %d", a.StackSize(), b.StackSize())
	}
	out := a.share()
	for r := 0; r < a.Registers(); r++ {
		x, y := a.Load(r), b.Load(r)
		if x == y {
			continue
		}
		out = out.Store(r, f.mergeSlot(pc, r, x, y, false))
	}

	stack := a.Stack()
	changed := false
	for i := range stack {
		x, y := stack[i], b.stack[i]
		if x == y {
			continue
		}
		stack[i] = f.mergeSlot(pc, a.Registers()+i, x, y, true)
		changed = true
	}
	if changed {
		out = out.WithStack(stack)
	}

	if !equalSubs(a.subs, b.subs) {
		f.warnf(pc, "subroutine contexts differ at merge")
		out = out.withSubs(commonSubs(a.subs, b.subs))
	}
	return out, nil
}

func (f *Flow) mergeSlot(pc, slot int, x, y ValueID, stack bool) ValueID {
	if x == NoValue || y == NoValue {
		return NoValue
	}
	key := slotKey{pc, slot}
	m, reuse := f.merges[key]

	t := f.vals.Join(pc, f.vals.Type(x), f.vals.Type(y))
	if reuse {
		t = f.vals.Join(pc, f.vals.Type(m), t)
	}
	if t.Kind == types.KindUnknown {
		if !stack {
			return NoValue
		}
		f.warnf(pc, "stack slot %d joins %s and %s to unknown", slot-f.m.Registers, f.vals.Type(x), f.vals.Type(y))
		if !reuse {
			m = f.vals.NewMerge(pc, types.Unknown)
			f.merges[key] = m
		}
		f.vals.AddIn(m, x)
		f.vals.AddIn(m, y)
		f.vals.Value(m).Type = types.Unknown
		return m
	}

	if !reuse {
		m = f.vals.NewMerge(pc, types.Bottom)
		f.merges[key] = m
	}
	var added []ValueID
	for _, in := range []ValueID{x, y} {
		if f.vals.AddIn(m, in) {
			added = append(added, in)
		}
	}
	f.vals.MergeTo(m, t)
	for _, in := range added {
		f.vals.MergeTo(in, f.vals.Type(m))
	}
	return m
}

func (f *Flow) warnf(pc int, format string, args ...interface{}) {
	if f.sink == nil {
		return
	}
	f.sink.Report(diag.Diagnostic{PC: pc, Severity: diag.SeverityWarning, Message: fmt.Sprintf(format, args...)})
}
