// Package bytecode defines the decoded input of the analysis: operations
// indexed by pc, exception ranges, debug variables and method metadata.
// Format-specific decoders (class files, dex) produce these values.
package bytecode

import (
	"fmt"

	"github.com/l3aro/go-bytecode-flow/pkg/types"
)

// Opcode is the semantic operation class of an Op. Decoders fold the many
// format-specific opcodes onto these.
type Opcode uint8

const (
	OpNop Opcode = iota
	OpConst
	OpLoad
	OpStore
	OpInc
	OpMove
	OpDup
	OpPop
	OpSwap
	OpBinary
	OpUnary
	OpConvert
	OpCompare
	OpGetField
	OpPutField
	OpInvoke
	OpNew
	OpNewArray
	OpArrayLoad
	OpArrayStore
	OpArrayLength
	OpCheckCast
	OpInstanceOf
	OpMonitor
	OpGoto
	OpIf
	OpSwitch
	OpReturn
	OpThrow
	OpJsr
	OpRet
	opcodeCount
)

var opcodeNames = [...]string{
	OpNop:         "nop",
	OpConst:       "const",
	OpLoad:        "load",
	OpStore:       "store",
	OpInc:         "inc",
	OpMove:        "move",
	OpDup:         "dup",
	OpPop:         "pop",
	OpSwap:        "swap",
	OpBinary:      "binary",
	OpUnary:       "unary",
	OpConvert:     "convert",
	OpCompare:     "compare",
	OpGetField:    "getfield",
	OpPutField:    "putfield",
	OpInvoke:      "invoke",
	OpNew:         "new",
	OpNewArray:    "newarray",
	OpArrayLoad:   "arrayload",
	OpArrayStore:  "arraystore",
	OpArrayLength: "arraylength",
	OpCheckCast:   "checkcast",
	OpInstanceOf:  "instanceof",
	OpMonitor:     "monitor",
	OpGoto:        "goto",
	OpIf:          "if",
	OpSwitch:      "switch",
	OpReturn:      "return",
	OpThrow:       "throw",
	OpJsr:         "jsr",
	OpRet:         "ret",
}

func (o Opcode) String() string {
	if o < opcodeCount {
		return opcodeNames[o]
	}
	return fmt.Sprintf("opcode(%d)", o)
}

// ParseOpcode maps a mnemonic back to its Opcode.
func ParseOpcode(s string) (Opcode, error) {
	for i, name := range opcodeNames {
		if name == s {
			return Opcode(i), nil
		}
	}
	return OpNop, fmt.Errorf("unknown opcode %q", s)
}

// Case is one switch key and its branch target.
type Case struct {
	Key    int `json:"key" yaml:"key" toml:"key" msgpack:"key"`
	Target int `json:"target" yaml:"target" toml:"target" msgpack:"target"`
}

// Op is one decoded operation. Which fields matter depends on Code:
//
//	Const       Type, Const
//	Load/Store  Type, Reg
//	Inc         Reg, Const
//	Move        Type, Reg (destination), Src
//	Dup         Count values copied, inserted Skip values down
//	Pop/If/Return  Count values consumed
//	Binary/Unary/Convert/Compare  Type is the result type
//	GetField/PutField/Invoke  Owner, Member, Type, Args, Static
//	New/CheckCast/NewArray  Type is the produced type; NewArray pops Count sizes
//	Goto/If/Jsr Target; Switch Cases and Default
//	Ret         Reg holding the return address
type Op struct {
	PC         int          `json:"pc" msgpack:"pc"`
	Line       int          `json:"line,omitempty" msgpack:"line,omitempty"`
	Code       Opcode       `json:"code" msgpack:"code"`
	Type       types.Type   `json:"type" msgpack:"type"`
	Reg        int          `json:"reg,omitempty" msgpack:"reg,omitempty"`
	Src        int          `json:"src,omitempty" msgpack:"src,omitempty"`
	Count      int          `json:"count,omitempty" msgpack:"count,omitempty"`
	Skip       int          `json:"skip,omitempty" msgpack:"skip,omitempty"`
	Const      interface{}  `json:"const,omitempty" msgpack:"const,omitempty"`
	Target     int          `json:"target,omitempty" msgpack:"target,omitempty"`
	Cases      []Case       `json:"cases,omitempty" msgpack:"cases,omitempty"`
	Default    int          `json:"default,omitempty" msgpack:"default,omitempty"`
	Args       []types.Type `json:"args,omitempty" msgpack:"args,omitempty"`
	Owner      string       `json:"owner,omitempty" msgpack:"owner,omitempty"`
	Member     string       `json:"member,omitempty" msgpack:"member,omitempty"`
	Static     bool         `json:"static,omitempty" msgpack:"static,omitempty"`
	Unresolved bool         `json:"unresolved,omitempty" msgpack:"unresolved,omitempty"`
}

// Pops returns the number of stack values the operation consumes.
func (o *Op) Pops() int {
	switch o.Code {
	case OpStore, OpUnary, OpConvert, OpArrayLength, OpCheckCast, OpInstanceOf,
		OpMonitor, OpSwitch, OpThrow:
		return 1
	case OpBinary, OpCompare, OpArrayLoad, OpSwap:
		return 2
	case OpArrayStore:
		return 3
	case OpPop, OpIf, OpReturn:
		return o.Count
	case OpDup:
		return o.dupCount() + o.Skip
	case OpNewArray:
		return o.arrayDims()
	case OpGetField:
		if o.Static {
			return 0
		}
		return 1
	case OpPutField:
		if o.Static {
			return 1
		}
		return 2
	case OpInvoke:
		if o.Static {
			return len(o.Args)
		}
		return len(o.Args) + 1
	}
	return 0
}

// Pushes returns the number of stack values the operation produces.
func (o *Op) Pushes() int {
	switch o.Code {
	case OpConst, OpLoad, OpBinary, OpUnary, OpConvert, OpCompare, OpGetField,
		OpNew, OpNewArray, OpArrayLoad, OpArrayLength, OpCheckCast, OpInstanceOf, OpJsr:
		return 1
	case OpSwap:
		return 2
	case OpDup:
		return 2*o.dupCount() + o.Skip
	case OpInvoke:
		if o.Type.Kind == types.KindVoid {
			return 0
		}
		return 1
	}
	return 0
}

func (o *Op) dupCount() int {
	if o.Count <= 0 {
		return 1
	}
	return o.Count
}

func (o *Op) arrayDims() int {
	if o.Count <= 0 {
		return 1
	}
	return o.Count
}

// IsGoto reports whether o is a bare unconditional jump.
func (o *Op) IsGoto() bool {
	return o.Code == OpGoto
}

// EndsBlock reports whether a block boundary follows o.
func (o *Op) EndsBlock() bool {
	switch o.Code {
	case OpGoto, OpIf, OpSwitch, OpReturn, OpThrow, OpJsr, OpRet:
		return true
	}
	return false
}

// FallsThrough reports whether control may continue at pc+1 directly.
func (o *Op) FallsThrough() bool {
	switch o.Code {
	case OpGoto, OpSwitch, OpReturn, OpThrow, OpJsr, OpRet:
		return false
	}
	return true
}

// Targets returns the explicit branch targets of o in source order.
func (o *Op) Targets() []int {
	switch o.Code {
	case OpGoto, OpIf, OpJsr:
		return []int{o.Target}
	case OpSwitch:
		targets := make([]int, 0, len(o.Cases)+1)
		for _, c := range o.Cases {
			targets = append(targets, c.Target)
		}
		return append(targets, o.Default)
	}
	return nil
}

func (o *Op) String() string {
	switch o.Code {
	case OpConst:
		return fmt.Sprintf("%d: const %s %v", o.PC, o.Type, o.Const)
	case OpLoad, OpStore:
		return fmt.Sprintf("%d: %s %s r%d", o.PC, o.Code, o.Type, o.Reg)
	case OpMove:
		return fmt.Sprintf("%d: move %s r%d <- r%d", o.PC, o.Type, o.Reg, o.Src)
	case OpGoto, OpIf, OpJsr:
		return fmt.Sprintf("%d: %s -> %d", o.PC, o.Code, o.Target)
	case OpGetField, OpPutField, OpInvoke:
		return fmt.Sprintf("%d: %s %s.%s", o.PC, o.Code, o.Owner, o.Member)
	}
	return fmt.Sprintf("%d: %s", o.PC, o.Code)
}
