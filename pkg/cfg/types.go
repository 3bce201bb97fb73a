// Package cfg builds and queries the control-flow graph of one method body.
// Blocks, edges and subroutines live in arenas owned by the CFG and refer to
// each other by stable integer ids; removal frees a slot without renumbering.
package cfg

import (
	"fmt"
	"strings"
)

// BlockID indexes the block arena.
type BlockID int

// EdgeID indexes the edge arena.
type EdgeID int

// SubID indexes the subroutine arena.
type SubID int

// NoBlock marks an absent block reference.
const NoBlock BlockID = -1

// NoSub marks an edge without a subroutine tag.
const NoSub SubID = -1

// EdgeKind classifies an edge.
type EdgeKind string

const (
	EdgeKindSequential EdgeKind = "sequential" // Fallthrough or unconditional jump
	EdgeKindCond       EdgeKind = "cond"       // One side of a two-way branch
	EdgeKindSwitch     EdgeKind = "switch"     // One or more switch keys
	EdgeKindCatch      EdgeKind = "catch"      // Transfer to an exception handler
	EdgeKindJsr        EdgeKind = "jsr"        // Call into a subroutine
	EdgeKindRet        EdgeKind = "ret"        // Return from a subroutine to a call site continuation
)

// SwitchKey is one case label on a switch edge. Default marks the default
// branch folded into the edge; Value is meaningless then.
type SwitchKey struct {
	Value   int  `json:"value"`
	Default bool `json:"default,omitempty"`
}

func (k SwitchKey) String() string {
	if k.Default {
		return "default"
	}
	return fmt.Sprintf("%d", k.Value)
}

// E is a directed edge between two blocks. Only the fields matching Kind are set:
// Cond for EdgeKindCond, Keys for EdgeKindSwitch, Catches for EdgeKindCatch
// (an empty string is catch-all) and Sub for EdgeKindJsr/EdgeKindRet.
type E struct {
	ID      EdgeID
	Start   BlockID
	End     BlockID
	Kind    EdgeKind
	Cond    bool
	Keys    []SwitchKey
	Catches []string
	Sub     SubID
}

func (e *E) IsSequential() bool { return e.Kind == EdgeKindSequential }
func (e *E) IsCond() bool { return e.Kind == EdgeKindCond }
func (e *E) IsSwitch() bool { return e.Kind == EdgeKindSwitch }
func (e *E) IsCatch() bool { return e.Kind == EdgeKindCatch }
func (e *E) IsJsr() bool { return e.Kind == EdgeKindJsr }
func (e *E) IsRet() bool { return e.Kind == EdgeKindRet }

// IsSwitchDefault reports whether the switch edge carries the default case.
func (e *E) IsSwitchDefault() bool {
	if e.Kind != EdgeKindSwitch {
		return false
	}
	for _, k := range e.Keys {
		if k.Default {
			return true
		}
	}
	return false
}

// IsCatchAll reports whether the catch edge handles any throwable.
func (e *E) IsCatchAll() bool {
	if e.Kind != EdgeKindCatch {
		return false
	}
	for _, c := range e.Catches {
		if c == "" {
			return true
		}
	}
	return false
}

// Label renders the edge tag for dumps.
func (e *E) Label() string {
	switch e.Kind {
	case EdgeKindSequential:
		return ""
	case EdgeKindCond:
		if e.Cond {
			return "true"
		}
		return "false"
	case EdgeKindSwitch:
		keys := make([]string, len(e.Keys))
		for i, k := range e.Keys {
			keys[i] = k.String()
		}
		return "case " + strings.Join(keys, ",")
	case EdgeKindCatch:
		names := make([]string, len(e.Catches))
		for i, c := range e.Catches {
			if c == "" {
				c = "*"
			}
			names[i] = c
		}
		return "catch " + strings.Join(names, ",")
	case EdgeKindJsr:
		return fmt.Sprintf("jsr s%d", e.Sub)
	case EdgeKindRet:
		return fmt.Sprintf("ret s%d", e.Sub)
	}
	panic(fmt.Sprintf("cfg: edge %d has no kind", e.ID))
}

// Sub describes one JSR subroutine.
type Sub struct {
	ID SubID

	// PC is the subroutine entry.
	PC int

	// Calls lists the pcs of the JSR operations targeting PC.
	Calls []int

	// Rets lists the pcs of the RET operations that end the subroutine.
	Rets []int

	// Body lists the blocks reachable from the entry without leaving the subroutine.
	Body []BlockID

	// Writes lists the registers stored anywhere in Body, ascending.
	Writes []int
}

// WritesReg reports whether the subroutine body stores reg.
func (s *Sub) WritesReg(reg int) bool {
	for _, r := range s.Writes {
		if r == reg {
			return true
		}
		if r > reg {
			break
		}
	}
	return false
}
