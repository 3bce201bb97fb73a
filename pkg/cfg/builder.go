package cfg

import (
	"fmt"
	"sort"

	"github.com/l3aro/go-bytecode-flow/pkg/bytecode"
	"github.com/l3aro/go-bytecode-flow/pkg/diag"
)

// Build partitions the method's operations into basic blocks and wires every
// edge: sequential, conditional, switch, catch, JSR and RET. Malformed input
// (targets outside the code, exception ranges over unknown pcs, code that
// falls off the end) fails with a *bytecode.DecodeError. sink may be nil.
func Build(m *bytecode.Method, sink diag.Sink) (*CFG, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := checkTargets(m); err != nil {
		return nil, err
	}

	g := newCFG(m, sink)
	g.partition(leaders(m))
	g.start = g.pcBlock[0]

	for _, b := range g.Blocks() {
		if err := g.wireFlow(b); err != nil {
			return nil, err
		}
	}
	for _, b := range g.Blocks() {
		g.wireCatches(b)
	}
	if err := g.wireSubroutines(); err != nil {
		return nil, err
	}
	return g, nil
}

func checkTargets(m *bytecode.Method) error {
	n := len(m.Ops)
	for _, op := range m.Ops {
		for _, t := range op.Targets() {
			if t < 0 || t >= n {
				return bytecode.Decodef(op.PC, "%s target %d outside code [0,%d)", op.Code, t, n)
			}
		}
		if op.FallsThrough() && op.PC == n-1 {
			return bytecode.Decodef(op.PC, "control falls off the end of the code")
		}
		if op.Code == bytecode.OpJsr && op.PC == n-1 {
			return bytecode.Decodef(op.PC, "jsr has no continuation")
		}
	}
	for i, x := range m.Excs {
		switch {
		case x.Start < 0 || x.Start >= n:
			return bytecode.Decodef(x.Start, "exception range %d starts outside code", i)
		case x.End <= x.Start || x.End > n:
			return bytecode.Decodef(x.End, "exception range %d ends at invalid pc %d", i, x.End)
		case x.Handler < 0 || x.Handler >= n:
			return bytecode.Decodef(x.Handler, "exception range %d handler outside code", i)
		}
	}
	return nil
}

// leaders returns the sorted pcs that begin a block.
func leaders(m *bytecode.Method) []int {
	n := len(m.Ops)
	set := map[int]struct{}{0: {}}
	for _, op := range m.Ops {
		for _, t := range op.Targets() {
			set[t] = struct{}{}
		}
		if op.EndsBlock() && op.PC+1 < n {
			set[op.PC+1] = struct{}{}
		}
	}
	for _, x := range m.Excs {
		set[x.Start] = struct{}{}
		set[x.Handler] = struct{}{}
		if x.End < n {
			set[x.End] = struct{}{}
		}
	}
	pcs := make([]int, 0, len(set))
	for pc := range set {
		pcs = append(pcs, pc)
	}
	sort.Ints(pcs)
	return pcs
}

func (g *CFG) partition(pcs []int) {
	ops := g.method.Ops
	for i, pc := range pcs {
		end := len(ops)
		if i+1 < len(pcs) {
			end = pcs[i+1]
		}
		b := g.newBlock(pc)
		b.ops = append([]*bytecode.Op(nil), ops[pc:end]...)
		for j := pc; j < end; j++ {
			g.opBlock[j] = b.id
		}
	}
}

func (g *CFG) wireFlow(b *BB) error {
	last := b.LastOp()
	switch last.Code {
	case bytecode.OpGoto:
		g.AddEdge(b, g.BlockAt(last.Target), E{Kind: EdgeKindSequential})
	case bytecode.OpIf:
		taken := g.BlockAt(last.Target)
		next := g.BlockAt(last.PC + 1)
		if last.Target < last.PC+1 {
			g.AddEdge(b, taken, E{Kind: EdgeKindCond, Cond: true})
			g.AddEdge(b, next, E{Kind: EdgeKindCond, Cond: false})
		} else {
			g.AddEdge(b, next, E{Kind: EdgeKindCond, Cond: false})
			g.AddEdge(b, taken, E{Kind: EdgeKindCond, Cond: true})
		}
	case bytecode.OpSwitch:
		g.wireSwitch(b, last)
	case bytecode.OpJsr:
		s := g.subAt(last.Target)
		s.Calls = append(s.Calls, last.PC)
		g.AddEdge(b, g.BlockAt(last.Target), E{Kind: EdgeKindJsr, Sub: s.ID})
	case bytecode.OpReturn, bytecode.OpThrow, bytecode.OpRet:
		// no intraprocedural successor; RET edges are wired per subroutine
	default:
		next := g.BlockAt(last.PC + 1)
		if next == nil {
			return bytecode.Decodef(last.PC, "no block follows pc %d", last.PC)
		}
		g.AddEdge(b, next, E{Kind: EdgeKindSequential})
	}
	return nil
}

// wireSwitch adds one edge per distinct target, in ascending target pc,
// carrying every key (and the default) that branches there.
func (g *CFG) wireSwitch(b *BB, op *bytecode.Op) {
	keys := make(map[int][]SwitchKey)
	for _, c := range op.Cases {
		keys[c.Target] = append(keys[c.Target], SwitchKey{Value: c.Key})
	}
	keys[op.Default] = append(keys[op.Default], SwitchKey{Default: true})

	targets := make([]int, 0, len(keys))
	for t := range keys {
		targets = append(targets, t)
	}
	sort.Ints(targets)
	for _, t := range targets {
		g.AddEdge(b, g.BlockAt(t), E{Kind: EdgeKindSwitch, Keys: keys[t]})
	}
}

// wireCatches adds catch edges for every exception range covering the block
// start, in declaration order. Consecutive ranges sharing a handler share one
// edge; a handler seen again after another one gets a new edge.
func (g *CFG) wireCatches(b *BB) {
	var last *E
	for _, x := range g.method.Excs {
		if !x.ValidIn(b.pc) {
			continue
		}
		h := g.BlockAt(x.Handler)
		if last != nil && last.End == h.id {
			if !containsString(last.Catches, x.Catch) {
				last.Catches = append(last.Catches, x.Catch)
			}
			continue
		}
		last = g.AddEdge(b, h, E{Kind: EdgeKindCatch, Catches: []string{x.Catch}})
	}
}

func (g *CFG) subAt(pc int) *Sub {
	for _, s := range g.subs {
		if s.PC == pc {
			return s
		}
	}
	return g.newSub(pc)
}

// wireSubroutines discovers each subroutine body, its RETs and the registers
// it writes, then adds a RET edge from every RET to every call continuation.
func (g *CFG) wireSubroutines() error {
	owned := make(map[int]bool)
	for _, s := range g.subs {
		g.walkSub(s)
		for _, ret := range s.Rets {
			owned[ret] = true
			from := g.BlockOf(ret)
			for _, call := range s.Calls {
				cont := g.BlockAt(call + 1)
				if cont == nil {
					return bytecode.Decodef(call, "jsr continuation %d is not a block", call+1)
				}
				g.AddEdge(from, cont, E{Kind: EdgeKindRet, Sub: s.ID})
			}
		}
		if len(s.Rets) == 0 {
			g.warnf(s.PC, "subroutine never returns")
		}
	}
	for _, op := range g.method.Ops {
		if op.Code == bytecode.OpRet && !owned[op.PC] {
			g.warnf(op.PC, "ret outside any subroutine")
		}
	}
	return nil
}

func (g *CFG) walkSub(s *Sub) {
	entry := g.BlockAt(s.PC)
	seen := map[BlockID]bool{entry.id: true}
	work := []*BB{entry}
	writes := make(map[int]struct{})
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		s.Body = append(s.Body, b.id)
		for _, op := range b.ops {
			switch op.Code {
			case bytecode.OpStore, bytecode.OpMove:
				writes[op.Reg] = struct{}{}
				if op.Type.IsWide() {
					writes[op.Reg+1] = struct{}{}
				}
			case bytecode.OpInc:
				writes[op.Reg] = struct{}{}
			}
		}
		last := b.LastOp()
		var next []*BB
		switch last.Code {
		case bytecode.OpRet:
			s.Rets = append(s.Rets, last.PC)
		case bytecode.OpJsr:
			// a nested subroutine returns to our continuation
			next = append(next, g.BlockAt(last.PC+1))
		default:
			for _, e := range g.OutEdges(b) {
				if e.IsSequential() || e.IsCond() || e.IsSwitch() {
					next = append(next, g.blocks[e.End])
				}
			}
		}
		for _, n := range next {
			if !seen[n.id] {
				seen[n.id] = true
				work = append(work, n)
			}
		}
	}
	sort.Slice(s.Body, func(i, j int) bool { return s.Body[i] < s.Body[j] })
	sort.Ints(s.Rets)
	for r := range writes {
		s.Writes = append(s.Writes, r)
	}
	sort.Ints(s.Writes)
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func (g *CFG) String() string {
	return fmt.Sprintf("CFG(%s, %d blocks)", g.method.ID(), g.NumBlocks())
}
