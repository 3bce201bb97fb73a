// Package dfg runs type inference over a control-flow graph. Every produced
// value is a node in a def-use graph (the value arena); frames record which
// node sits in each register and stack slot at every pc.
package dfg

import (
	"fmt"

	"github.com/l3aro/go-bytecode-flow/pkg/diag"
	"github.com/l3aro/go-bytecode-flow/pkg/types"
)

// ValueID indexes the value arena.
type ValueID int

// NoValue marks an empty slot.
const NoValue ValueID = -1

// Kind says how a value came to exist.
type Kind uint8

const (
	// KindConst is a freshly produced value.
	KindConst Kind = iota
	// KindMove copies exactly one other value, possibly re-typed.
	KindMove
	// KindMerge joins the values reaching a confluence point.
	KindMerge
)

func (k Kind) String() string {
	switch k {
	case KindConst:
		return "const"
	case KindMove:
		return "move"
	case KindMerge:
		return "merge"
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Value is one node of the def-use graph.
type Value struct {
	ID   ValueID
	Kind Kind
	Type types.Type

	// PC of the operation (or block entry, for merges) that made the value.
	PC int

	// Const is the literal payload of a constant, if any.
	Const interface{}

	// Name is the debug variable name the value was stored under.
	Name string

	ins  []ValueID
	outs []ValueID
}

// Ins returns the producers the value was derived from.
func (v *Value) Ins() []ValueID { return v.ins }

// Outs returns the values derived from this one.
func (v *Value) Outs() []ValueID { return v.outs }

func (v *Value) String() string {
	if v.Name != "" {
		return fmt.Sprintf("v%d:%s %s(%s)", v.ID, v.Kind, v.Type, v.Name)
	}
	return fmt.Sprintf("v%d:%s %s", v.ID, v.Kind, v.Type)
}

// Graph is the value arena of one method. Nodes reference each other by id,
// so the cyclic def-use structure is released with the Graph.
type Graph struct {
	values []*Value
	lat    *types.Lattice
	sink   diag.Sink
}

// NewGraph creates an empty arena joining types with lat. sink may be nil.
func NewGraph(lat *types.Lattice, sink diag.Sink) *Graph {
	return &Graph{lat: lat, sink: sink}
}

// Len returns the number of nodes allocated.
func (g *Graph) Len() int { return len(g.values) }

// Value returns the node with the given id, or nil.
func (g *Graph) Value(id ValueID) *Value {
	if id < 0 || int(id) >= len(g.values) {
		return nil
	}
	return g.values[id]
}

// Type returns the current type of id, or Bottom for NoValue.
func (g *Graph) Type(id ValueID) types.Type {
	if v := g.Value(id); v != nil {
		return v.Type
	}
	return types.Bottom
}

func (g *Graph) alloc(kind Kind, pc int, t types.Type) *Value {
	v := &Value{ID: ValueID(len(g.values)), Kind: kind, Type: t, PC: pc}
	g.values = append(g.values, v)
	return v
}

// NewConst allocates a constant-kind node.
func (g *Graph) NewConst(pc int, t types.Type, c interface{}) ValueID {
	v := g.alloc(KindConst, pc, t)
	v.Const = c
	return v.ID
}

// NewMove allocates a copy of src typed t.
func (g *Graph) NewMove(pc int, src ValueID, t types.Type) ValueID {
	v := g.alloc(KindMove, pc, t)
	g.link(src, v.ID)
	return v.ID
}

// NewMerge allocates a join node typed t over ins. The type is taken as is;
// callers widen the producers with MergeTo when they need it.
func (g *Graph) NewMerge(pc int, t types.Type, ins ...ValueID) ValueID {
	v := g.alloc(KindMerge, pc, t)
	for _, in := range ins {
		g.AddIn(v.ID, in)
	}
	return v.ID
}

// AddIn records in as a producer of id, once. It reports whether the link is new.
func (g *Graph) AddIn(id, in ValueID) bool {
	if id == in || in == NoValue {
		return false
	}
	for _, x := range g.values[id].ins {
		if x == in {
			return false
		}
	}
	g.link(in, id)
	return true
}

func (g *Graph) link(from, to ValueID) {
	g.values[to].ins = append(g.values[to].ins, from)
	g.values[from].outs = append(g.values[from].outs, to)
}

// Join returns the lattice join of a and b. An unresolvable class degrades
// the result to Unknown and is reported to the sink.
func (g *Graph) Join(pc int, a, b types.Type) types.Type {
	t, err := g.lat.Join(a, b)
	if err != nil {
		g.warnf(pc, "join %s with %s: %v", a, b, err)
		return types.Unknown
	}
	return t
}

// MergeTo widens id to the join of its type and t, then pushes the widened
// type to every consumer and back to its producers: the single producer of a
// const or move, all producers of a merge. The walk stops at nodes whose type
// does not change. It reports whether id itself changed.
func (g *Graph) MergeTo(id ValueID, t types.Type) bool {
	type item struct {
		id ValueID
		t  types.Type
	}
	changed := false
	work := []item{{id, t}}
	for len(work) > 0 {
		it := work[len(work)-1]
		work = work[:len(work)-1]

		v := g.values[it.id]
		nt := g.Join(v.PC, v.Type, it.t)
		if nt == v.Type {
			continue
		}
		v.Type = nt
		if it.id == id {
			changed = true
		}
		for _, out := range v.outs {
			work = append(work, item{out, nt})
		}
		switch v.Kind {
		case KindConst, KindMove:
			if len(v.ins) > 0 {
				work = append(work, item{v.ins[0], nt})
			}
		case KindMerge:
			for _, in := range v.ins {
				work = append(work, item{in, nt})
			}
		}
	}
	return changed
}

func (g *Graph) warnf(pc int, format string, args ...interface{}) {
	if g.sink == nil {
		return
	}
	g.sink.Report(diag.Diagnostic{PC: pc, Severity: diag.SeverityWarning, Message: fmt.Sprintf(format, args...)})
}
