package dfg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-bytecode-flow/pkg/bytecode"
	"github.com/l3aro/go-bytecode-flow/pkg/cfg"
)

func TestFrame_CopyOnWrite(t *testing.T) {
	f := NewFrame(2, 4)
	f = f.Store(0, 10)
	f, err := f.Push(0, 20)
	require.NoError(t, err)
	published := f.Freeze()

	g := published.Store(1, 30)
	g, err = g.Push(1, 40)
	require.NoError(t, err)

	assert.NotSame(t, published, g)
	assert.Equal(t, NoValue, published.Load(1))
	assert.Equal(t, 1, published.StackSize())
	assert.Equal(t, ValueID(30), g.Load(1))
	assert.Equal(t, []ValueID{20, 40}, g.Stack())

	// popping then pushing must not clobber the shared stack
	h, v, err := published.Pop(2)
	require.NoError(t, err)
	assert.Equal(t, ValueID(20), v)
	h, err = h.Push(2, 99)
	require.NoError(t, err)
	assert.Equal(t, ValueID(20), published.Peek(0))
	assert.Equal(t, ValueID(99), h.Peek(0))
}

func TestFrame_UnderflowOverflow(t *testing.T) {
	f := NewFrame(0, 1)
	_, _, err := f.Pop(3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, bytecode.ErrVerify))
	pc, ok := bytecode.ErrorPC(err)
	require.True(t, ok)
	assert.Equal(t, 3, pc)

	f, err = f.Push(4, 1)
	require.NoError(t, err)
	_, err = f.Push(5, 2)
	require.Error(t, err)
	var ve *bytecode.VerifyError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 5, ve.PC)

	_, _, err = f.PopN(6, 2)
	assert.True(t, errors.Is(err, bytecode.ErrVerify))
}

func TestFrame_Subs(t *testing.T) {
	f := NewFrame(1, 1).Freeze()
	g := f.PushSub(cfg.SubID(0)).PushSub(cfg.SubID(1)).PushSub(cfg.SubID(2))
	assert.Empty(t, f.Subs())
	assert.Equal(t, []cfg.SubID{0, 1, 2}, g.Subs())

	h, ok := g.Freeze().PopSub(1)
	require.True(t, ok)
	assert.Equal(t, []cfg.SubID{0}, h.Subs())
	assert.Equal(t, []cfg.SubID{0, 1, 2}, g.Subs())

	_, ok = h.PopSub(7)
	assert.False(t, ok)
}

func TestFrame_EqualAndSlots(t *testing.T) {
	a := NewFrame(2, 2).Store(0, 1)
	a, _ = a.Push(0, 5)
	b := NewFrame(2, 2).Store(0, 1)
	b, _ = b.Push(0, 5)

	assert.True(t, a.Equal(b))
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, ValueID(5), a.Slot(2))
	assert.Equal(t, NoValue, a.Peek(3))
	assert.Equal(t, NoValue, a.Load(9))
	assert.Equal(t, "[v1 - | v5]", a.String())

	b = b.PushSub(0)
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
}
