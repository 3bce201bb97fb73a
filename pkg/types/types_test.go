package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		desc string
		want Type
		str  string
	}{
		{"I", Int, "int"},
		{"J", Long, "long"},
		{"Z", Boolean, "boolean"},
		{"Ljava/lang/String;", String, "java/lang/String"},
		{"[I", ArrayOf(Int), "int[]"},
		{"[[Ljava/lang/Object;", ArrayOf(ArrayOf(Object)), "java/lang/Object[][]"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := Parse(tt.desc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.str, got.String())
			assert.Equal(t, tt.desc, got.Descriptor())
		})
	}

	for _, bad := range []string{"", "Q", "L;", "Lfoo", "II", "[V"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseMethod(t *testing.T) {
	params, ret, err := ParseMethod("(IJ[Ljava/lang/String;)V")
	require.NoError(t, err)
	assert.Equal(t, []Type{Int, Long, ArrayOf(String)}, params)
	assert.Equal(t, Void, ret)

	params, ret, err = ParseMethod("()D")
	require.NoError(t, err)
	assert.Empty(t, params)
	assert.Equal(t, Double, ret)

	for _, bad := range []string{"I", "(I", "(I)", "(Q)V"} {
		_, _, err := ParseMethod(bad)
		assert.Error(t, err, bad)
	}
}

func TestArrays(t *testing.T) {
	a := ArrayOf(ArrayOf(Int))
	assert.Equal(t, uint8(2), a.Dims)
	assert.Equal(t, ArrayOf(Int), a.Component())
	assert.Equal(t, Int, a.Component().Component())
	assert.Equal(t, Unknown, Int.Component())
	assert.Equal(t, Unknown, ArrayOf(Null))
}

func TestPredicates(t *testing.T) {
	assert.True(t, Long.IsWide())
	assert.True(t, Double.IsWide())
	assert.False(t, Int.IsWide())
	assert.True(t, Char.IsIntLike())
	assert.False(t, Long.IsIntLike())
	assert.True(t, Float.IsNumeric())
	assert.True(t, Null.IsReference())
	assert.True(t, ArrayOf(Int).IsReference())
	assert.False(t, Bottom.IsKnown())
	assert.False(t, Unknown.IsKnown())
	assert.True(t, ReturnAddress.IsKnown())
}

func TestJoin(t *testing.T) {
	h := ClassTable{
		"a/Base":   ObjectClass,
		"a/Left":   "a/Base",
		"a/Right":  "a/Base",
		"a/Other":  ObjectClass,
		"a/Nested": "a/Left",
	}
	l := NewLattice(h)

	tests := []struct {
		name string
		a, b Type
		want Type
	}{
		{"identical", Int, Int, Int},
		{"bottom left", Bottom, Long, Long},
		{"bottom right", String, Bottom, String},
		{"unknown absorbs", Unknown, Int, Unknown},
		{"byte short", Byte, Short, Short},
		{"boolean byte", Boolean, Byte, Int},
		{"char int", Char, Int, Int},
		{"int long", Int, Long, Long},
		{"long float", Long, Float, Float},
		{"short double", Short, Double, Double},
		{"null ref", Null, String, String},
		{"ref null", Ref("a/Left"), Null, Ref("a/Left")},
		{"null array", Null, ArrayOf(Int), ArrayOf(Int)},
		{"siblings", Ref("a/Left"), Ref("a/Right"), Ref("a/Base")},
		{"nested", Ref("a/Nested"), Ref("a/Right"), Ref("a/Base")},
		{"unrelated", Ref("a/Left"), Ref("a/Other"), Object},
		{"ref arrays", ArrayOf(Ref("a/Left")), ArrayOf(Ref("a/Right")), ArrayOf(Ref("a/Base"))},
		{"primitive arrays", ArrayOf(Int), ArrayOf(Long), Object},
		{"dims differ", ArrayOf(Int), ArrayOf(ArrayOf(Int)), Object},
		{"array and class", ArrayOf(Int), String, Object},
		{"int and ref", Int, String, Unknown},
		{"retaddr and int", ReturnAddress, Int, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Join(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// join is commutative
			rev, err := l.Join(tt.b, tt.a)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rev)
		})
	}
}

func TestJoin_Unresolved(t *testing.T) {
	l := NewLattice(ClassTable{"a/Known": ObjectClass})

	got, err := l.Join(Ref("a/Known"), Ref("a/Missing"))
	require.Error(t, err)
	assert.Equal(t, Unknown, got)
	assert.True(t, errors.Is(err, ErrUnresolved))

	var ue *UnresolvedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "a/Missing", ue.Class)
}

func TestJoin_CyclicHierarchy(t *testing.T) {
	l := NewLattice(ClassTable{"a/A": "a/B", "a/B": "a/A"})
	_, err := l.Join(Ref("a/A"), String)
	assert.True(t, errors.Is(err, ErrUnresolved))
}

func TestJoin_NoHierarchy(t *testing.T) {
	var l Lattice
	got, err := l.Join(Ref("x/A"), Ref("x/B"))
	require.NoError(t, err)
	assert.Equal(t, Object, got)
}

func TestLeq(t *testing.T) {
	l := NewLattice(ClassTable{"a/Sub": ObjectClass})
	assert.True(t, l.Leq(Null, String))
	assert.True(t, l.Leq(Byte, Int))
	assert.True(t, l.Leq(Ref("a/Sub"), Object))
	assert.False(t, l.Leq(Object, Ref("a/Sub")))
	assert.False(t, l.Leq(Int, String))
}
