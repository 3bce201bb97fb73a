package dfg

import (
	"github.com/l3aro/go-bytecode-flow/pkg/bytecode"
	"github.com/l3aro/go-bytecode-flow/pkg/types"
)

// step applies the transfer function of op to fr.
func (f *Flow) step(op *bytecode.Op, fr *Frame) (*Frame, error) {
	pc := op.PC
	switch op.Code {
	case bytecode.OpConst:
		return fr.Push(pc, f.result(op, 0, f.resultType(op), op.Const))

	case bytecode.OpLoad:
		src := fr.Load(op.Reg)
		if src == NoValue {
			f.warnf(pc, "load of empty register r%d", op.Reg)
			return fr.Push(pc, f.result(op, 0, f.resultType(op), nil))
		}
		return fr.Push(pc, f.move(op, src, f.vals.Type(src)))

	case bytecode.OpStore:
		fr, v, err := fr.Pop(pc)
		if err != nil {
			return fr, err
		}
		return f.assign(op, fr, op.Reg, v)

	case bytecode.OpMove:
		src := fr.Load(op.Src)
		if src == NoValue {
			f.warnf(pc, "move from empty register r%d", op.Src)
			return f.storeReg(pc, fr, op.Reg, f.result(op, 0, f.resultType(op), nil))
		}
		return f.assign(op, fr, op.Reg, src)

	case bytecode.OpInc:
		return f.storeReg(pc, fr, op.Reg, f.result(op, 0, types.Int, nil))

	case bytecode.OpDup:
		return f.dup(op, fr)

	case bytecode.OpSwap:
		fr, vs, err := fr.PopN(pc, 2)
		if err != nil {
			return fr, err
		}
		return pushAll(pc, fr, vs[1], vs[0])

	case bytecode.OpArrayLoad:
		fr, vs, err := fr.PopN(pc, 2)
		if err != nil {
			return fr, err
		}
		t := f.resultType(op)
		if c := f.vals.Type(vs[0]).Component(); c.IsKnown() {
			t = c
		}
		return fr.Push(pc, f.result(op, 0, t, nil))

	case bytecode.OpJsr:
		return fr.Push(pc, f.result(op, 0, types.ReturnAddress, op.Target))

	case bytecode.OpRet:
		if t := f.vals.Type(fr.Load(op.Reg)); t.Kind != types.KindReturnAddress {
			f.warnf(pc, "ret through r%d holding %s", op.Reg, t)
		}
		return fr, nil
	}

	fr, _, err := fr.PopN(pc, op.Pops())
	if err != nil {
		return fr, err
	}
	for i := 0; i < op.Pushes(); i++ {
		if fr, err = fr.Push(pc, f.result(op, i, f.resultType(op), nil)); err != nil {
			return fr, err
		}
	}
	return fr, nil
}

// resultType is the type an operation declares for the values it produces.
func (f *Flow) resultType(op *bytecode.Op) types.Type {
	switch op.Code {
	case bytecode.OpArrayLength:
		return types.Int
	case bytecode.OpCompare, bytecode.OpInstanceOf:
		if !op.Type.IsKnown() {
			return types.Int
		}
	}
	if op.Unresolved {
		f.warnf(op.PC, "unresolved %s.%s, value type degraded", op.Owner, op.Member)
		return types.Unknown
	}
	if op.Type.Kind == types.KindBottom {
		return types.Unknown
	}
	return op.Type
}

// result returns the constant node op produces in position i, reusing and
// widening the node from an earlier visit.
func (f *Flow) result(op *bytecode.Op, i int, t types.Type, c interface{}) ValueID {
	key := resultKey{op.PC, i}
	if id, ok := f.results[key]; ok && f.vals.Value(id).Kind == KindConst {
		f.vals.MergeTo(id, t)
		return id
	}
	id := f.vals.NewConst(op.PC, t, c)
	f.results[key] = id
	return id
}

// move returns a copy of src made by op, reusing the node from an earlier
// visit when it copied the same source.
func (f *Flow) move(op *bytecode.Op, src ValueID, t types.Type) ValueID {
	key := resultKey{op.PC, 0}
	if id, ok := f.results[key]; ok {
		v := f.vals.Value(id)
		if v.Kind == KindMove && len(v.ins) > 0 && v.ins[0] == src {
			f.vals.MergeTo(id, t)
			return id
		}
	}
	id := f.vals.NewMove(op.PC, src, t)
	f.results[key] = id
	return id
}

// assign copies v into reg, adopting the debug variable declared there.
func (f *Flow) assign(op *bytecode.Op, fr *Frame, reg int, v ValueID) (*Frame, error) {
	t, name := f.declared(op.PC, reg, f.vals.Type(v))
	mv := f.move(op, v, t)
	if name != "" {
		f.vals.Value(mv).Name = name
	}
	return f.storeReg(op.PC, fr, reg, mv)
}

// declared returns the type and name of the debug variable live in reg just
// after pc. The declared type is adopted only when t fits it.
func (f *Flow) declared(pc, reg int, t types.Type) (types.Type, string) {
	dv, ok := f.m.VarAt(reg, pc+1)
	if !ok {
		dv, ok = f.m.VarAt(reg, pc)
	}
	if !ok {
		return t, ""
	}
	switch {
	case !dv.Type.IsKnown():
	case t.IsIntLike() && dv.Type.IsIntLike():
		return dv.Type, dv.Name
	case f.lat.Leq(t, dv.Type):
		return dv.Type, dv.Name
	default:
		f.warnf(pc, "value of type %s stored into %s %s", t, dv.Type, dv.Name)
	}
	return t, dv.Name
}

// storeReg writes v into reg. A wide value also claims reg+1, and writing
// either half of a wide pair invalidates the other half.
func (f *Flow) storeReg(pc int, fr *Frame, reg int, v ValueID) (*Frame, error) {
	n := fr.Registers()
	if reg < 0 || reg >= n {
		return fr, bytecode.Verifyf(pc, "store to r%d outside %d registers", reg, n)
	}
	if f.vals.Type(v).IsWide() {
		if reg+1 >= n {
			return fr, bytecode.Verifyf(pc, "wide value in r%d needs two registers", reg)
		}
		fr = fr.Store(reg+1, NoValue)
	} else if old := fr.Load(reg); old != NoValue && f.vals.Type(old).IsWide() && reg+1 < n {
		fr = fr.Store(reg+1, NoValue)
	}
	if reg > 0 {
		if prev := fr.Load(reg - 1); prev != NoValue && f.vals.Type(prev).IsWide() {
			fr = fr.Store(reg-1, NoValue)
		}
	}
	return fr.Store(reg, v), nil
}

// dup copies the top Count values and reinserts them Skip entries down.
func (f *Flow) dup(op *bytecode.Op, fr *Frame) (*Frame, error) {
	n := op.Count
	if n <= 0 {
		n = 1
	}
	fr, vs, err := fr.PopN(op.PC, n+op.Skip)
	if err != nil {
		return fr, err
	}
	top := vs[op.Skip:]
	out := make([]ValueID, 0, 2*n+op.Skip)
	out = append(out, top...)
	out = append(out, vs[:op.Skip]...)
	out = append(out, top...)
	return pushAll(op.PC, fr, out...)
}

func pushAll(pc int, fr *Frame, vs ...ValueID) (*Frame, error) {
	var err error
	for _, v := range vs {
		if fr, err = fr.Push(pc, v); err != nil {
			return fr, err
		}
	}
	return fr, nil
}
