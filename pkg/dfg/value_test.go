package dfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-bytecode-flow/pkg/diag"
	"github.com/l3aro/go-bytecode-flow/pkg/types"
)

func TestMergeTo_Monotonic(t *testing.T) {
	lat := types.NewLattice(nil)
	g := NewGraph(lat, nil)
	v := g.NewConst(0, types.Byte, nil)

	seq := []types.Type{types.Short, types.Int, types.Byte, types.Long, types.Int, types.Double, types.Float}
	prev := g.Type(v)
	for _, next := range seq {
		g.MergeTo(v, next)
		cur := g.Type(v)
		assert.True(t, lat.Leq(prev, cur), "%s narrowed to %s", prev, cur)
		prev = cur
	}
	assert.Equal(t, types.Double, g.Type(v))
	assert.False(t, g.MergeTo(v, types.Int), "no change once wider")
}

func TestMergeTo_Propagation(t *testing.T) {
	g := NewGraph(types.NewLattice(nil), nil)

	src := g.NewConst(0, types.Int, 1)
	mv := g.NewMove(1, src, types.Int)
	use := g.NewMove(2, mv, types.Int)

	require.True(t, g.MergeTo(mv, types.Long))
	assert.Equal(t, types.Long, g.Type(src), "move widens its single producer")
	assert.Equal(t, types.Long, g.Type(use), "consumers follow")

	a := g.NewConst(3, types.Int, nil)
	b := g.NewConst(4, types.Int, nil)
	m := g.NewMerge(5, types.Int, a, b)
	assert.Equal(t, []ValueID{a, b}, g.Value(m).Ins())
	assert.Equal(t, []ValueID{m}, g.Value(a).Outs())

	g.MergeTo(m, types.Float)
	assert.Equal(t, types.Float, g.Type(a))
	assert.Equal(t, types.Float, g.Type(b))
}

func TestMergeTo_Cycle(t *testing.T) {
	g := NewGraph(types.NewLattice(nil), nil)
	a := g.NewConst(0, types.Int, nil)
	m := g.NewMerge(1, types.Int, a)
	mv := g.NewMove(2, m, types.Int)
	g.AddIn(m, mv)

	assert.NotPanics(t, func() { g.MergeTo(mv, types.Long) })
	for _, id := range []ValueID{a, m, mv} {
		assert.Equal(t, types.Long, g.Type(id))
	}
}

func TestAddIn(t *testing.T) {
	g := NewGraph(nil, nil)
	a := g.NewConst(0, types.Int, nil)
	m := g.NewMerge(1, types.Int)

	assert.True(t, g.AddIn(m, a))
	assert.False(t, g.AddIn(m, a), "duplicate producer")
	assert.False(t, g.AddIn(m, m), "self link")
	assert.False(t, g.AddIn(m, NoValue))
	assert.Len(t, g.Value(m).Ins(), 1)
}

func TestJoin_UnresolvedWarns(t *testing.T) {
	sink := diag.NewCollector()
	g := NewGraph(types.NewLattice(types.ClassTable{"a/A": types.ObjectClass}), sink)

	got := g.Join(7, types.Ref("a/A"), types.Ref("b/Missing"))
	assert.Equal(t, types.Unknown, got)
	require.Equal(t, 1, sink.Warnings())
	assert.Equal(t, 7, sink.Items()[0].PC)
}

func TestValueString(t *testing.T) {
	g := NewGraph(nil, nil)
	v := g.Value(g.NewConst(0, types.Int, 1))
	assert.Equal(t, "v0:const int", v.String())
	v.Name = "i"
	assert.Equal(t, "v0:const int(i)", v.String())
	assert.Nil(t, g.Value(NoValue))
	assert.Equal(t, types.Bottom, g.Type(NoValue))
}
