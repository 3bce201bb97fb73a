package cfg

import (
	"fmt"

	"github.com/l3aro/go-bytecode-flow/pkg/bytecode"
)

// BB is a basic block. Its identity is the pc of its first operation, cached
// at creation because later stages may remove operations.
type BB struct {
	id        BlockID
	pc        int
	ops       []*bytecode.Op
	stmts     []interface{}
	ins       []EdgeID
	outs      []EdgeID
	postorder int

	// expression stack used by stack-to-expression conversion; slots are
	// addressed past the register window
	regs int
	top  int
	vs   []interface{}

	// Struct is owned by the structuring stage.
	Struct interface{}
}

func newBB(id BlockID, pc, regs int) *BB {
	return &BB{id: id, pc: pc, postorder: -1, regs: regs}
}

func (b *BB) ID() BlockID { return b.id }
func (b *BB) PC() int { return b.pc }
func (b *BB) Postorder() int { return b.postorder }
func (b *BB) Ins() []EdgeID { return b.ins }
func (b *BB) Outs() []EdgeID { return b.outs }
func (b *BB) Registers() int { return b.regs }
func (b *BB) NumOps() int { return len(b.ops) }
func (b *BB) NumStmts() int { return len(b.stmts) }
func (b *BB) StackSize() int { return b.top }
func (b *BB) Ops() []*bytecode.Op { return b.ops }

// Op returns the i-th operation of the block.
func (b *BB) Op(i int) *bytecode.Op { return b.ops[i] }

// FirstOp returns the first operation or nil for an emptied block.
func (b *BB) FirstOp() *bytecode.Op {
	if len(b.ops) == 0 {
		return nil
	}
	return b.ops[0]
}

// LastOp returns the last operation or nil for an emptied block.
func (b *BB) LastOp() *bytecode.Op {
	if len(b.ops) == 0 {
		return nil
	}
	return b.ops[len(b.ops)-1]
}

// RemoveOp drops the i-th operation. The block keeps its pc.
func (b *BB) RemoveOp(i int) *bytecode.Op {
	op := b.ops[i]
	b.ops = append(b.ops[:i], b.ops[i+1:]...)
	return op
}

// Stmts returns the statements synthesized so far.
func (b *BB) Stmts() []interface{} { return b.stmts }

// AddStmt appends a synthesized statement.
func (b *BB) AddStmt(s interface{}) { b.stmts = append(b.stmts, s) }

// Push pushes an expression onto the block's expression stack.
func (b *BB) Push(x interface{}) {
	if b.top == len(b.vs) {
		b.vs = append(b.vs, nil)
	}
	b.vs[b.top] = x
	b.top++
}

// Pop removes and returns the top expression.
func (b *BB) Pop() interface{} {
	if b.top == 0 {
		panic(fmt.Sprintf("cfg: expression stack underflow in block %d", b.pc))
	}
	b.top--
	x := b.vs[b.top]
	b.vs[b.top] = nil
	return x
}

// Peek returns the expression i entries below the top (0 is the top).
func (b *BB) Peek(i int) interface{} {
	if i < 0 || i >= b.top {
		panic(fmt.Sprintf("cfg: peek %d beyond stack size %d in block %d", i, b.top, b.pc))
	}
	return b.vs[b.top-1-i]
}

// Get reads frame slot i, which must address the expression stack (i >= registers).
func (b *BB) Get(i int) interface{} {
	j := i - b.regs
	if j < 0 || j >= b.top {
		panic(fmt.Sprintf("cfg: slot %d outside expression stack of block %d", i, b.pc))
	}
	return b.vs[j]
}

// Set writes frame slot i on the expression stack.
func (b *BB) Set(i int, x interface{}) {
	j := i - b.regs
	if j < 0 || j >= b.top {
		panic(fmt.Sprintf("cfg: slot %d outside expression stack of block %d", i, b.pc))
	}
	b.vs[j] = x
}

// CopyStack returns a snapshot of the expression stack, bottom first.
func (b *BB) CopyStack() []interface{} {
	out := make([]interface{}, b.top)
	copy(out, b.vs[:b.top])
	return out
}

func (b *BB) String() string {
	return fmt.Sprintf("BB%d", b.pc)
}

func removeEdgeID(ids []EdgeID, id EdgeID) []EdgeID {
	for i, x := range ids {
		if x == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
