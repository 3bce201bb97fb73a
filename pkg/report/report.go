// Package report turns an analyzed method into a plain serializable summary
// of its blocks, edges, dominators, values and frames.
package report

import (
	"github.com/l3aro/go-bytecode-flow/pkg/cfg"
	"github.com/l3aro/go-bytecode-flow/pkg/dfg"
	"github.com/l3aro/go-bytecode-flow/pkg/diag"
)

// Summary describes one analyzed method. Blocks and edges are identified by
// the pc of their first operation.
type Summary struct {
	Method      string            `json:"method" yaml:"method"`
	Registers   int               `json:"registers" yaml:"registers"`
	MaxStack    int               `json:"max_stack" yaml:"max_stack"`
	Blocks      []Block           `json:"blocks" yaml:"blocks"`
	Edges       []Edge            `json:"edges" yaml:"edges"`
	Subs        []Sub             `json:"subs,omitempty" yaml:"subs,omitempty"`
	Values      []Value           `json:"values,omitempty" yaml:"values,omitempty"`
	Frames      []Frame           `json:"frames,omitempty" yaml:"frames,omitempty"`
	Diagnostics []diag.Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// Block is one basic block covering the pcs [PC, End).
type Block struct {
	PC        int   `json:"pc" yaml:"pc"`
	End       int   `json:"end" yaml:"end"`
	Postorder int   `json:"postorder" yaml:"postorder"`
	IDom      int   `json:"idom" yaml:"idom"`
	Lines     []int `json:"lines,omitempty" yaml:"lines,omitempty"`
	Relevant  bool  `json:"relevant" yaml:"relevant"`
}

// Edge is one control transfer.
type Edge struct {
	From  int    `json:"from" yaml:"from"`
	To    int    `json:"to" yaml:"to"`
	Kind  string `json:"kind" yaml:"kind"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Back  bool   `json:"back,omitempty" yaml:"back,omitempty"`
}

// Sub is one JSR subroutine.
type Sub struct {
	PC     int   `json:"pc" yaml:"pc"`
	Calls  []int `json:"calls" yaml:"calls"`
	Rets   []int `json:"rets,omitempty" yaml:"rets,omitempty"`
	Writes []int `json:"writes,omitempty" yaml:"writes,omitempty"`
}

// Value is one node of the def-use graph.
type Value struct {
	ID   int    `json:"id" yaml:"id"`
	Kind string `json:"kind" yaml:"kind"`
	Type string `json:"type" yaml:"type"`
	PC   int    `json:"pc" yaml:"pc"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Ins  []int  `json:"ins,omitempty" yaml:"ins,omitempty"`
}

// Frame is the state before the operation at PC, one type per slot. Empty
// slots render as "-".
type Frame struct {
	PC        int      `json:"pc" yaml:"pc"`
	Registers []string `json:"registers" yaml:"registers"`
	Stack     []string `json:"stack,omitempty" yaml:"stack,omitempty"`
}

// Build summarizes a finished analysis. Dominators are reported when they
// have been computed; frames only on request since they grow with the code.
func Build(flow *dfg.Flow, diags []diag.Diagnostic, withFrames bool) *Summary {
	g := flow.CFG()
	m := g.Method()
	s := &Summary{
		Method:      m.ID(),
		Registers:   m.Registers,
		MaxStack:    m.MaxStack,
		Diagnostics: diags,
	}

	for _, b := range g.Blocks() {
		s.Blocks = append(s.Blocks, block(g, b))
		for _, e := range g.OutEdges(b) {
			s.Edges = append(s.Edges, Edge{
				From:  b.PC(),
				To:    g.Block(e.End).PC(),
				Kind:  string(e.Kind),
				Label: e.Label(),
				Back:  b.Postorder() >= 0 && g.IsBack(e),
			})
		}
	}

	for _, sub := range g.Subs() {
		s.Subs = append(s.Subs, Sub{PC: sub.PC, Calls: sub.Calls, Rets: sub.Rets, Writes: sub.Writes})
	}

	vals := flow.Values()
	for i := 0; i < vals.Len(); i++ {
		v := vals.Value(dfg.ValueID(i))
		rv := Value{ID: int(v.ID), Kind: v.Kind.String(), Type: v.Type.String(), PC: v.PC, Name: v.Name}
		for _, in := range v.Ins() {
			rv.Ins = append(rv.Ins, int(in))
		}
		s.Values = append(s.Values, rv)
	}

	if withFrames {
		for pc := range m.Ops {
			fr := flow.FrameAt(pc)
			if fr == nil {
				continue
			}
			s.Frames = append(s.Frames, frame(vals, pc, fr))
		}
	}
	return s
}

func block(g *cfg.CFG, b *cfg.BB) Block {
	out := Block{
		PC:        b.PC(),
		End:       b.PC() + b.NumOps(),
		Postorder: b.Postorder(),
		IDom:      -1,
		Relevant:  g.IsRelevant(b),
	}
	if d := g.IDom(b); d != nil {
		out.IDom = d.PC()
	}
	for _, op := range b.Ops() {
		if op.Line > 0 && (len(out.Lines) == 0 || out.Lines[len(out.Lines)-1] != op.Line) {
			out.Lines = append(out.Lines, op.Line)
		}
	}
	return out
}

func frame(vals *dfg.Graph, pc int, fr *dfg.Frame) Frame {
	out := Frame{PC: pc, Registers: make([]string, fr.Registers())}
	for i := 0; i < fr.Len(); i++ {
		t := "-"
		if v := fr.Slot(i); v != dfg.NoValue {
			t = vals.Type(v).String()
		}
		if i < fr.Registers() {
			out.Registers[i] = t
		} else {
			out.Stack = append(out.Stack, t)
		}
	}
	return out
}
