package cfg

// IsRelevant reports whether b carries anything a structuring pass must see.
// Irrelevant blocks are pure trampolines: one predecessor, no statements, an
// empty expression stack and a bare goto (or nothing) as first operation.
func (g *CFG) IsRelevant(b *BB) bool {
	if len(b.ins) > 1 || len(b.stmts) > 0 || b.top > 0 {
		return true
	}
	first := b.FirstOp()
	return first != nil && !first.IsGoto()
}

// RelevantIn walks backwards from e through irrelevant start blocks and
// returns the nearest edge whose start block is relevant. If the chain ends
// at a block without predecessors, or loops, the last edge seen is returned.
func (g *CFG) RelevantIn(e *E) *E {
	seen := map[EdgeID]bool{e.ID: true}
	for {
		s := g.blocks[e.Start]
		if g.IsRelevant(s) || len(s.ins) != 1 {
			return e
		}
		prev := g.edges[s.ins[0]]
		if seen[prev.ID] {
			return e
		}
		seen[prev.ID] = true
		e = prev
	}
}

// RelevantOut walks forwards from e through irrelevant end blocks and returns
// the nearest edge whose end block is relevant.
func (g *CFG) RelevantOut(e *E) *E {
	seen := map[EdgeID]bool{e.ID: true}
	for {
		d := g.blocks[e.End]
		if g.IsRelevant(d) || len(d.outs) != 1 {
			return e
		}
		next := g.edges[d.outs[0]]
		if seen[next.ID] {
			return e
		}
		seen[next.ID] = true
		e = next
	}
}
