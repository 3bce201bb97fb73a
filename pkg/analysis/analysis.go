// Package analysis runs the full pipeline over a method: CFG construction,
// numbering, dominators and type inference, and summarizes the outcome.
package analysis

import (
	"fmt"

	"github.com/l3aro/go-bytecode-flow/pkg/bytecode"
	"github.com/l3aro/go-bytecode-flow/pkg/cfg"
	"github.com/l3aro/go-bytecode-flow/pkg/dfg"
	"github.com/l3aro/go-bytecode-flow/pkg/diag"
	"github.com/l3aro/go-bytecode-flow/pkg/report"
	"github.com/l3aro/go-bytecode-flow/pkg/types"
)

// Version changes whenever analysis output changes; it salts cache keys.
const Version = "1"

// Options tune a single analysis.
type Options struct {
	// Hierarchy resolves superclasses in reference joins. Shared by all
	// workers; nil treats every class as a direct subclass of Object.
	Hierarchy types.Hierarchy

	// MaxVisits bounds dataflow revisits of one block.
	MaxVisits int

	// Frames includes per-pc frames in summaries.
	Frames bool
}

// MethodError reports a failed analysis. PC is -1 when the failure is not
// tied to an operation.
type MethodError struct {
	Method string
	PC     int
	Err    error
}

func (e *MethodError) Error() string {
	if e.PC < 0 {
		return fmt.Sprintf("analyzing %s: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("analyzing %s at pc %d: %v", e.Method, e.PC, e.Err)
}

func (e *MethodError) Unwrap() error { return e.Err }

func methodError(m *bytecode.Method, err error) *MethodError {
	pc, ok := bytecode.ErrorPC(err)
	if !ok {
		pc = -1
	}
	return &MethodError{Method: m.ID(), PC: pc, Err: err}
}

// Result holds everything computed for one method.
type Result struct {
	Method      *bytecode.Method
	CFG         *cfg.CFG
	Flow        *dfg.Flow
	Diagnostics []diag.Diagnostic

	// Removed counts unreachable blocks dropped after numbering.
	Removed int
}

// Analyze builds the CFG of m, numbers it, computes dominators and runs type
// inference. Failures come back as *MethodError.
func Analyze(m *bytecode.Method, opts Options) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, methodError(m, err)
	}
	sink := diag.NewCollector()

	g, err := cfg.Build(m, sink)
	if err != nil {
		return nil, methodError(m, err)
	}
	removed := g.ComputePostorder()
	if removed > 0 {
		sink.Infof(-1, "removed %d unreachable blocks", removed)
	}
	g.ComputeDominators()

	flow, err := dfg.Run(g, dfg.Options{
		Lattice:   types.NewLattice(opts.Hierarchy),
		Sink:      sink,
		MaxVisits: opts.MaxVisits,
	})
	if err != nil {
		return nil, methodError(m, err)
	}

	return &Result{
		Method:      m,
		CFG:         g,
		Flow:        flow,
		Diagnostics: sink.Items(),
		Removed:     removed,
	}, nil
}

// Summary renders the result for reporting.
func (r *Result) Summary(withFrames bool) *report.Summary {
	return report.Build(r.Flow, r.Diagnostics, withFrames)
}
