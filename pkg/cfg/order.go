package cfg

import "fmt"

type blockAndIndex struct {
	b     *BB
	index int // next successor edge to visit
}

// ComputePostorder numbers every block reachable from the start block in
// depth-first postorder (start gets N-1) and removes the unreachable ones.
// It returns the number of blocks removed.
func (g *CFG) ComputePostorder() int {
	for _, b := range g.blocks {
		if b != nil {
			b.postorder = -1
		}
	}
	seen := make([]bool, len(g.blocks))
	order := make([]BlockID, 0, len(g.blocks))

	start := g.Start()
	s := make([]blockAndIndex, 0, 32)
	s = append(s, blockAndIndex{b: start})
	seen[start.id] = true
	for len(s) > 0 {
		tos := len(s) - 1
		x := s[tos]
		b := x.b
		if i := x.index; i < len(b.outs) {
			s[tos].index++
			next := g.blocks[g.edges[b.outs[i]].End]
			if !seen[next.id] {
				seen[next.id] = true
				s = append(s, blockAndIndex{b: next})
			}
			continue
		}
		s = s[:tos]
		b.postorder = len(order)
		order = append(order, b.id)
	}
	g.post = order
	g.idom = nil

	removed := 0
	for _, b := range g.blocks {
		if b != nil && !seen[b.id] {
			g.RemoveBB(b)
			removed++
		}
	}
	if removed > 0 {
		g.pruneSubs()
	}
	return removed
}

// pruneSubs drops removed blocks from subroutine bodies.
func (g *CFG) pruneSubs() {
	for _, s := range g.subs {
		body := s.Body[:0]
		for _, id := range s.Body {
			if g.blocks[id] != nil {
				body = append(body, id)
			}
		}
		s.Body = body
	}
}

// PostorderBlocks returns the numbered blocks indexed by postorder.
func (g *CFG) PostorderBlocks() []*BB {
	out := make([]*BB, 0, len(g.post))
	for _, id := range g.post {
		if id != NoBlock {
			out = append(out, g.blocks[id])
		}
	}
	return out
}

// ReversePostorder returns the numbered blocks from start downwards.
func (g *CFG) ReversePostorder() []*BB {
	po := g.PostorderBlocks()
	for i, j := 0, len(po)-1; i < j; i, j = i+1, j-1 {
		po[i], po[j] = po[j], po[i]
	}
	return po
}

// IsBack reports whether e closes a cycle under the current numbering.
// Self-loops are back edges.
func (g *CFG) IsBack(e *E) bool {
	s, d := g.blocks[e.Start], g.blocks[e.End]
	if s == nil || d == nil || s.postorder < 0 || d.postorder < 0 {
		panic(fmt.Sprintf("cfg: edge %d tested for back-ness on an unnumbered block", e.ID))
	}
	return s.postorder <= d.postorder
}

// ComputeDominators fills the immediate dominator of every numbered block
// with the iterative algorithm of Cooper, Harvey and Kennedy. Every
// predecessor that already has an idom takes part, back edges included, so
// irreducible loops get their true dominators. ComputePostorder must run first.
func (g *CFG) ComputeDominators() {
	n := len(g.post)
	if n == 0 {
		panic("cfg: dominators requested before postorder numbering")
	}
	idom := make([]BlockID, n)
	for i := range idom {
		idom[i] = NoBlock
	}
	start := g.Start()
	idom[start.postorder] = start.id

	for changed := true; changed; {
		changed = false
		// decreasing postorder, start excluded
		for po := n - 2; po >= 0; po-- {
			id := g.post[po]
			if id == NoBlock {
				continue
			}
			b := g.blocks[id]
			d := NoBlock
			for _, e := range g.InEdges(b) {
				p := g.blocks[e.Start]
				if idom[p.postorder] == NoBlock {
					continue
				}
				if d == NoBlock {
					d = p.id
					continue
				}
				d = g.intersect(d, p.id, idom)
			}
			if d == NoBlock {
				continue
			}
			if idom[po] != d {
				idom[po] = d
				changed = true
			}
		}
	}
	g.idom = idom
}

// intersect walks the two fingers up the dominator tree until they meet.
func (g *CFG) intersect(a, b BlockID, idom []BlockID) BlockID {
	for a != b {
		if g.blocks[a].postorder < g.blocks[b].postorder {
			a = idom[g.blocks[a].postorder]
		} else {
			b = idom[g.blocks[b].postorder]
		}
	}
	return a
}

// IDom returns the immediate dominator of b. The start block is its own
// immediate dominator; a block left unnumbered has none.
func (g *CFG) IDom(b *BB) *BB {
	if b.postorder < 0 || b.postorder >= len(g.idom) {
		return nil
	}
	return g.Block(g.idom[b.postorder])
}

// Dominates reports whether a dominates b (every block dominates itself).
func (g *CFG) Dominates(a, b *BB) bool {
	for steps := 0; steps <= len(g.idom); steps++ {
		if a == b {
			return true
		}
		d := g.IDom(b)
		if d == nil || d == b {
			return false
		}
		b = d
	}
	return false
}

// DominatorTree returns, per block id, the blocks it immediately dominates
// in ascending postorder.
func (g *CFG) DominatorTree() map[BlockID][]*BB {
	tree := make(map[BlockID][]*BB)
	for _, b := range g.PostorderBlocks() {
		d := g.IDom(b)
		if d == nil || d == b {
			continue
		}
		tree[d.id] = append(tree[d.id], b)
	}
	return tree
}
