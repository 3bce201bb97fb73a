package bytecode

import (
	"fmt"

	"github.com/l3aro/go-bytecode-flow/pkg/types"
)

// Family selects how parameters are laid out in the register file.
type Family uint8

const (
	// FamilyClass seeds parameters from register 0 upwards, this first.
	FamilyClass Family = iota
	// FamilyDex seeds parameters into the last registers.
	FamilyDex
)

func (f Family) String() string {
	if f == FamilyDex {
		return "dex"
	}
	return "class"
}

// ParseFamily maps "class"/"jvm" and "dex"/"dalvik" to a Family.
func ParseFamily(s string) (Family, error) {
	switch s {
	case "", "class", "jvm":
		return FamilyClass, nil
	case "dex", "dalvik":
		return FamilyDex, nil
	}
	return FamilyClass, fmt.Errorf("unknown bytecode family %q", s)
}

// Exc is one exception-table entry. The protected range is [Start, End).
// An empty Catch means catch-all.
type Exc struct {
	Start   int    `json:"start" msgpack:"start"`
	End     int    `json:"end" msgpack:"end"`
	Handler int    `json:"handler" msgpack:"handler"`
	Catch   string `json:"catch,omitempty" msgpack:"catch,omitempty"`
}

// ValidIn reports whether pc lies in the protected range.
func (e Exc) ValidIn(pc int) bool {
	return e.Start <= pc && pc < e.End
}

// CatchType returns the type of the exception value seen by the handler.
func (e Exc) CatchType() types.Type {
	if e.Catch == "" {
		return types.Throwable
	}
	return types.Ref(e.Catch)
}

// Var is one local-variable debug entry, valid over [Start, End).
type Var struct {
	Reg   int        `json:"reg" msgpack:"reg"`
	Name  string     `json:"name" msgpack:"name"`
	Type  types.Type `json:"type" msgpack:"type"`
	Start int        `json:"start" msgpack:"start"`
	End   int        `json:"end" msgpack:"end"`
}

// ValidIn reports whether the variable is live at pc.
func (v Var) ValidIn(pc int) bool {
	return v.Start <= pc && pc < v.End
}

// Method bundles everything a decoder hands over for one method body.
type Method struct {
	Owner      string        `json:"owner" msgpack:"owner"`
	Name       string        `json:"name" msgpack:"name"`
	Descriptor string        `json:"descriptor" msgpack:"descriptor"`
	Static     bool          `json:"static" msgpack:"static"`
	Family     Family        `json:"family" msgpack:"family"`
	Registers  int           `json:"registers" msgpack:"registers"`
	MaxStack   int           `json:"max_stack" msgpack:"max_stack"`
	Ops        []*Op         `json:"ops" msgpack:"ops"`
	Excs       []Exc         `json:"excs,omitempty" msgpack:"excs,omitempty"`
	Vars       map[int][]Var `json:"vars,omitempty" msgpack:"vars,omitempty"`
}

// ID returns Owner.Name+Descriptor.
func (m *Method) ID() string {
	if m.Owner == "" {
		return m.Name + m.Descriptor
	}
	return m.Owner + "." + m.Name + m.Descriptor
}

// Signature parses the method descriptor.
func (m *Method) Signature() ([]types.Type, types.Type, error) {
	return types.ParseMethod(m.Descriptor)
}

// ParamSlots returns the register slots taken by parameters, this included.
func (m *Method) ParamSlots() (int, error) {
	params, _, err := m.Signature()
	if err != nil {
		return 0, err
	}
	n := 0
	if !m.Static {
		n++
	}
	for _, p := range params {
		n++
		if p.IsWide() {
			n++
		}
	}
	return n, nil
}

// VarAt returns the debug variable for reg live at pc, if any.
func (m *Method) VarAt(reg, pc int) (Var, bool) {
	for _, v := range m.Vars[reg] {
		if v.ValidIn(pc) {
			return v, true
		}
	}
	return Var{}, false
}

// AddVar appends a debug variable entry.
func (m *Method) AddVar(v Var) {
	if m.Vars == nil {
		m.Vars = make(map[int][]Var)
	}
	m.Vars[v.Reg] = append(m.Vars[v.Reg], v)
}

// Validate checks the structural invariants every later stage relies on:
// each op sits at its own index, and register bounds fit the parameters.
func (m *Method) Validate() error {
	if len(m.Ops) == 0 {
		return Decodef(0, "method %s has no code", m.ID())
	}
	for i, op := range m.Ops {
		if op == nil {
			return Decodef(i, "missing operation")
		}
		if op.PC != i {
			return Decodef(i, "operation reports pc %d", op.PC)
		}
		switch op.Code {
		case OpLoad, OpStore, OpInc, OpRet:
			if op.Reg < 0 || op.Reg >= m.Registers {
				return Decodef(i, "register r%d outside %d registers", op.Reg, m.Registers)
			}
		case OpMove:
			if op.Reg < 0 || op.Reg >= m.Registers || op.Src < 0 || op.Src >= m.Registers {
				return Decodef(i, "move r%d <- r%d outside %d registers", op.Reg, op.Src, m.Registers)
			}
		}
	}
	slots, err := m.ParamSlots()
	if err != nil {
		return Decodef(0, "descriptor %q: %v", m.Descriptor, err)
	}
	if slots > m.Registers {
		return Decodef(0, "%d parameter slots exceed %d registers", slots, m.Registers)
	}
	return nil
}
