package cfg

import (
	"fmt"

	"github.com/l3aro/go-bytecode-flow/pkg/bytecode"
	"github.com/l3aro/go-bytecode-flow/pkg/diag"
)

// CFG is the control-flow graph of one method together with the inputs it
// was built from. A CFG is not safe for concurrent mutation; analyses of
// different methods run on different CFGs.
type CFG struct {
	method *bytecode.Method
	sink   diag.Sink

	blocks  []*BB
	edges   []*E
	subs    []*Sub
	pcBlock map[int]BlockID
	opBlock []BlockID
	start   BlockID

	// filled by ComputePostorder and ComputeDominators, indexed by postorder
	post []BlockID
	idom []BlockID
}

func newCFG(m *bytecode.Method, sink diag.Sink) *CFG {
	opBlock := make([]BlockID, len(m.Ops))
	for i := range opBlock {
		opBlock[i] = NoBlock
	}
	return &CFG{
		method:  m,
		sink:    sink,
		pcBlock: make(map[int]BlockID),
		opBlock: opBlock,
		start:   NoBlock,
	}
}

// Method returns the method the graph was built from.
func (g *CFG) Method() *bytecode.Method { return g.method }

// Ops returns the operation array indexed by pc.
func (g *CFG) Ops() []*bytecode.Op { return g.method.Ops }

// Op returns the operation at pc.
func (g *CFG) Op(pc int) *bytecode.Op { return g.method.Ops[pc] }

// Excs returns the exception table in declaration order.
func (g *CFG) Excs() []bytecode.Exc { return g.method.Excs }

// Registers returns the register count (max locals).
func (g *CFG) Registers() int { return g.method.Registers }

// MaxStack returns the declared operand stack bound.
func (g *CFG) MaxStack() int { return g.method.MaxStack }

// Start returns the entry block.
func (g *CFG) Start() *BB { return g.Block(g.start) }

// Block returns the block with the given id, or nil if it was removed.
func (g *CFG) Block(id BlockID) *BB {
	if id < 0 || int(id) >= len(g.blocks) {
		return nil
	}
	return g.blocks[id]
}

// Edge returns the edge with the given id, or nil if it was removed.
func (g *CFG) Edge(id EdgeID) *E {
	if id < 0 || int(id) >= len(g.edges) {
		return nil
	}
	return g.edges[id]
}

// Sub returns the subroutine with the given id.
func (g *CFG) Sub(id SubID) *Sub {
	if id < 0 || int(id) >= len(g.subs) {
		return nil
	}
	return g.subs[id]
}

// Subs returns all subroutines in order of their first call site.
func (g *CFG) Subs() []*Sub { return g.subs }

// BlockAt returns the block starting at pc, or nil.
func (g *CFG) BlockAt(pc int) *BB {
	id, ok := g.pcBlock[pc]
	if !ok {
		return nil
	}
	return g.blocks[id]
}

// BlockOf returns the block currently holding the operation at pc, or nil.
func (g *CFG) BlockOf(pc int) *BB {
	if pc < 0 || pc >= len(g.opBlock) {
		return nil
	}
	return g.Block(g.opBlock[pc])
}

// Blocks returns the live blocks in creation (pc) order.
func (g *CFG) Blocks() []*BB {
	out := make([]*BB, 0, len(g.blocks))
	for _, b := range g.blocks {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

// NumBlocks returns the number of live blocks.
func (g *CFG) NumBlocks() int {
	n := 0
	for _, b := range g.blocks {
		if b != nil {
			n++
		}
	}
	return n
}

// InEdges resolves the incoming edges of b.
func (g *CFG) InEdges(b *BB) []*E {
	return g.resolve(b.ins)
}

// OutEdges resolves the outgoing edges of b in insertion order.
func (g *CFG) OutEdges(b *BB) []*E {
	return g.resolve(b.outs)
}

func (g *CFG) resolve(ids []EdgeID) []*E {
	out := make([]*E, len(ids))
	for i, id := range ids {
		out[i] = g.edges[id]
	}
	return out
}

// Succs returns the successor blocks of b, one per outgoing edge.
func (g *CFG) Succs(b *BB) []*BB {
	out := make([]*BB, len(b.outs))
	for i, id := range b.outs {
		out[i] = g.blocks[g.edges[id].End]
	}
	return out
}

// Preds returns the predecessor blocks of b, one per incoming edge.
func (g *CFG) Preds(b *BB) []*BB {
	out := make([]*BB, len(b.ins))
	for i, id := range b.ins {
		out[i] = g.blocks[g.edges[id].Start]
	}
	return out
}

func (g *CFG) newBlock(pc int) *BB {
	b := newBB(BlockID(len(g.blocks)), pc, g.method.Registers)
	g.blocks = append(g.blocks, b)
	g.pcBlock[pc] = b.id
	return b
}

func (g *CFG) newSub(pc int) *Sub {
	s := &Sub{ID: SubID(len(g.subs)), PC: pc}
	g.subs = append(g.subs, s)
	return s
}

// AddEdge links start to end with the tag carried by proto and returns the
// stored edge. proto's ID, Start and End are ignored.
func (g *CFG) AddEdge(start, end *BB, proto E) *E {
	if proto.Kind == "" {
		panic(fmt.Sprintf("cfg: edge %s -> %s has no kind", start, end))
	}
	e := proto
	e.ID = EdgeID(len(g.edges))
	e.Start = start.id
	e.End = end.id
	if e.Kind != EdgeKindJsr && e.Kind != EdgeKindRet {
		e.Sub = NoSub
	}
	g.edges = append(g.edges, &e)
	start.outs = append(start.outs, e.ID)
	end.ins = append(end.ins, e.ID)
	return &e
}

// RemoveEdge detaches e from both endpoints and frees its slot.
func (g *CFG) RemoveEdge(e *E) {
	if g.edges[e.ID] == nil {
		return
	}
	if s := g.blocks[e.Start]; s != nil {
		s.outs = removeEdgeID(s.outs, e.ID)
	}
	if d := g.blocks[e.End]; d != nil {
		d.ins = removeEdgeID(d.ins, e.ID)
	}
	g.edges[e.ID] = nil
}

// RemoveBB detaches every incident edge, clears the block's postorder slot
// and frees the block.
func (g *CFG) RemoveBB(b *BB) {
	for _, e := range g.InEdges(b) {
		g.RemoveEdge(e)
	}
	for _, e := range g.OutEdges(b) {
		g.RemoveEdge(e)
	}
	if b.postorder >= 0 && b.postorder < len(g.post) {
		g.post[b.postorder] = NoBlock
		if b.postorder < len(g.idom) {
			g.idom[b.postorder] = NoBlock
		}
	}
	b.postorder = -1
	for _, op := range b.ops {
		if g.opBlock[op.PC] == b.id {
			g.opBlock[op.PC] = NoBlock
		}
	}
	if g.pcBlock[b.pc] == b.id {
		delete(g.pcBlock, b.pc)
	}
	g.blocks[b.id] = nil
}

// JoinPredBB merges b into its single predecessor when that predecessor
// reaches b through a sequential edge and has no other successor. The
// predecessor absorbs operations, statements and the expression stack (b's
// entries go on top of its own); b is removed. It reports whether the merge happened.
func (g *CFG) JoinPredBB(b *BB) bool {
	if len(b.ins) != 1 || b.id == g.start {
		return false
	}
	in := g.edges[b.ins[0]]
	pred := g.blocks[in.Start]
	if !in.IsSequential() || len(pred.outs) != 1 || pred == b {
		return false
	}
	g.RemoveEdge(in)

	pred.ops = append(pred.ops, b.ops...)
	for _, op := range b.ops {
		g.opBlock[op.PC] = pred.id
	}
	b.ops = nil
	pred.stmts = append(pred.stmts, b.stmts...)
	for _, x := range b.vs[:b.top] {
		pred.Push(x)
	}
	if b.regs > pred.regs {
		pred.regs = b.regs
	}

	for _, id := range b.outs {
		e := g.edges[id]
		e.Start = pred.id
		pred.outs = append(pred.outs, id)
	}
	b.outs = nil
	g.RemoveBB(b)
	return true
}

func (g *CFG) warnf(pc int, format string, args ...interface{}) {
	if g.sink == nil {
		return
	}
	g.sink.Report(diag.Diagnostic{PC: pc, Severity: diag.SeverityWarning, Message: fmt.Sprintf(format, args...)})
}
