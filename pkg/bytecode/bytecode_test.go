package bytecode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-bytecode-flow/pkg/types"
)

func TestOpcode_RoundTrip(t *testing.T) {
	for o := OpNop; o < opcodeCount; o++ {
		got, err := ParseOpcode(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, got)
	}
	_, err := ParseOpcode("jump")
	assert.Error(t, err)
	assert.Equal(t, "opcode(200)", Opcode(200).String())
}

func TestOp_StackEffect(t *testing.T) {
	tests := []struct {
		op           Op
		pops, pushes int
	}{
		{Op{Code: OpConst}, 0, 1},
		{Op{Code: OpStore}, 1, 0},
		{Op{Code: OpBinary}, 2, 1},
		{Op{Code: OpArrayStore}, 3, 0},
		{Op{Code: OpSwap}, 2, 2},
		{Op{Code: OpDup}, 1, 2},
		{Op{Code: OpDup, Count: 2, Skip: 1}, 3, 5},
		{Op{Code: OpPop, Count: 2}, 2, 0},
		{Op{Code: OpReturn}, 0, 0},
		{Op{Code: OpNewArray, Count: 3}, 3, 1},
		{Op{Code: OpGetField, Static: true}, 0, 1},
		{Op{Code: OpPutField}, 2, 0},
		{Op{Code: OpInvoke, Args: []types.Type{types.Int, types.Long}, Type: types.Void}, 3, 0},
		{Op{Code: OpInvoke, Static: true, Args: []types.Type{types.Int}, Type: types.Int}, 1, 1},
		{Op{Code: OpJsr}, 0, 1},
		{Op{Code: OpRet}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.op.Code, tt.op.Count), func(t *testing.T) {
			assert.Equal(t, tt.pops, tt.op.Pops())
			assert.Equal(t, tt.pushes, tt.op.Pushes())
		})
	}
}

func TestOp_Control(t *testing.T) {
	sw := &Op{Code: OpSwitch, Cases: []Case{{Key: 1, Target: 4}, {Key: 2, Target: 6}}, Default: 8}
	assert.Equal(t, []int{4, 6, 8}, sw.Targets())
	assert.True(t, sw.EndsBlock())
	assert.False(t, sw.FallsThrough())

	cond := &Op{Code: OpIf, Target: 3}
	assert.True(t, cond.EndsBlock())
	assert.True(t, cond.FallsThrough())
	assert.Equal(t, []int{3}, cond.Targets())

	nop := &Op{Code: OpNop}
	assert.False(t, nop.EndsBlock())
	assert.Nil(t, nop.Targets())

	assert.True(t, (&Op{Code: OpGoto}).IsGoto())
	assert.Equal(t, "5: goto -> 2", (&Op{PC: 5, Code: OpGoto, Target: 2}).String())
}

func TestMethod_ParamSlots(t *testing.T) {
	m := &Method{Descriptor: "(JI[D)V"}
	n, err := m.ParamSlots()
	require.NoError(t, err)
	assert.Equal(t, 5, n, "this + long pair + int + array")

	m.Static = true
	n, err = m.ParamSlots()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	m.Descriptor = "bogus"
	_, err = m.ParamSlots()
	assert.Error(t, err)
}

func TestMethod_VarAt(t *testing.T) {
	m := &Method{}
	m.AddVar(Var{Reg: 1, Name: "a", Type: types.Int, Start: 0, End: 4})
	m.AddVar(Var{Reg: 1, Name: "b", Type: types.String, Start: 4, End: 9})

	v, ok := m.VarAt(1, 3)
	require.True(t, ok)
	assert.Equal(t, "a", v.Name)
	v, ok = m.VarAt(1, 4)
	require.True(t, ok)
	assert.Equal(t, "b", v.Name)
	_, ok = m.VarAt(1, 9)
	assert.False(t, ok)
	_, ok = m.VarAt(0, 1)
	assert.False(t, ok)
}

func TestMethod_Validate(t *testing.T) {
	valid := func() *Method {
		return &Method{
			Owner:      "a/B",
			Name:       "f",
			Descriptor: "(I)V",
			Static:     true,
			Registers:  1,
			Ops:        []*Op{{PC: 0, Code: OpLoad, Reg: 0, Type: types.Int}, {PC: 1, Code: OpReturn}},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(m *Method)
		pc     int
	}{
		{"no code", func(m *Method) { m.Ops = nil }, 0},
		{"nil op", func(m *Method) { m.Ops[1] = nil }, 1},
		{"pc mismatch", func(m *Method) { m.Ops[1].PC = 7 }, 1},
		{"register", func(m *Method) { m.Ops[0].Reg = 1 }, 0},
		{"move source", func(m *Method) { m.Ops[0] = &Op{Code: OpMove, Reg: 0, Src: 4} }, 0},
		{"bad descriptor", func(m *Method) { m.Descriptor = "(X)V" }, 0},
		{"too many params", func(m *Method) { m.Descriptor = "(J)V" }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.mutate(m)
			err := m.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))
			pc, ok := ErrorPC(err)
			require.True(t, ok)
			assert.Equal(t, tt.pc, pc)
		})
	}
}

func TestErrors(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Verifyf(3, "stack underflow"))
	assert.True(t, errors.Is(err, ErrVerify))
	assert.False(t, errors.Is(err, ErrDecode))
	pc, ok := ErrorPC(err)
	require.True(t, ok)
	assert.Equal(t, 3, pc)
	assert.Contains(t, err.Error(), "verify error at pc 3: stack underflow")

	_, ok = ErrorPC(errors.New("plain"))
	assert.False(t, ok)
}

func TestExc(t *testing.T) {
	e := Exc{Start: 2, End: 5, Handler: 9}
	assert.True(t, e.ValidIn(2))
	assert.False(t, e.ValidIn(5))
	assert.Equal(t, types.Throwable, e.CatchType())
	e.Catch = "a/Err"
	assert.Equal(t, types.Ref("a/Err"), e.CatchType())
}

func TestParseFamily(t *testing.T) {
	for in, want := range map[string]Family{"": FamilyClass, "jvm": FamilyClass, "dex": FamilyDex, "dalvik": FamilyDex} {
		got, err := ParseFamily(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFamily("wasm")
	assert.Error(t, err)
	assert.Equal(t, "dex", FamilyDex.String())
}
