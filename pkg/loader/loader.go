// Package loader reads textual method listings (YAML, TOML or JSON) into
// bytecode methods. Listings stand in for class-file and dex decoders on the
// command line and in tests.
package loader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-bytecode-flow/pkg/bytecode"
	"github.com/l3aro/go-bytecode-flow/pkg/types"
)

// Format of a listing file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported listing extension %q", filepath.Ext(path))
}

// Listing is the decoded file: methods plus the class hierarchy they need.
type Listing struct {
	// Classes maps a class to its direct superclass.
	Classes map[string]string `yaml:"classes" toml:"classes" json:"classes"`

	Methods []MethodSpec `yaml:"methods" toml:"methods" json:"methods"`
}

// MethodSpec is one method as written in a listing. Types are descriptors.
type MethodSpec struct {
	Owner      string    `yaml:"owner" toml:"owner" json:"owner"`
	Name       string    `yaml:"name" toml:"name" json:"name"`
	Descriptor string    `yaml:"descriptor" toml:"descriptor" json:"descriptor"`
	Static     bool      `yaml:"static" toml:"static" json:"static"`
	Family     string    `yaml:"family" toml:"family" json:"family"`
	Registers  int       `yaml:"registers" toml:"registers" json:"registers"`
	MaxStack   int       `yaml:"max_stack" toml:"max_stack" json:"max_stack"`
	Code       []OpSpec  `yaml:"code" toml:"code" json:"code"`
	Exceptions []ExcSpec `yaml:"exceptions" toml:"exceptions" json:"exceptions"`
	Vars       []VarSpec `yaml:"vars" toml:"vars" json:"vars"`
}

// OpSpec is one operation; pcs are implied by position.
type OpSpec struct {
	Op         string          `yaml:"op" toml:"op" json:"op"`
	Line       int             `yaml:"line" toml:"line" json:"line"`
	Type       string          `yaml:"type" toml:"type" json:"type"`
	Reg        int             `yaml:"reg" toml:"reg" json:"reg"`
	Src        int             `yaml:"src" toml:"src" json:"src"`
	Count      int             `yaml:"count" toml:"count" json:"count"`
	Skip       int             `yaml:"skip" toml:"skip" json:"skip"`
	Const      interface{}     `yaml:"const" toml:"const" json:"const"`
	Target     int             `yaml:"target" toml:"target" json:"target"`
	Cases      []bytecode.Case `yaml:"cases" toml:"cases" json:"cases"`
	Default    int             `yaml:"default" toml:"default" json:"default"`
	Args       []string        `yaml:"args" toml:"args" json:"args"`
	Owner      string          `yaml:"owner" toml:"owner" json:"owner"`
	Member     string          `yaml:"member" toml:"member" json:"member"`
	Static     bool            `yaml:"static" toml:"static" json:"static"`
	Unresolved bool            `yaml:"unresolved" toml:"unresolved" json:"unresolved"`
}

// ExcSpec is one exception-table row. An empty Catch catches everything.
type ExcSpec struct {
	Start   int    `yaml:"start" toml:"start" json:"start"`
	End     int    `yaml:"end" toml:"end" json:"end"`
	Handler int    `yaml:"handler" toml:"handler" json:"handler"`
	Catch   string `yaml:"catch" toml:"catch" json:"catch"`
}

// VarSpec is one debug variable.
type VarSpec struct {
	Reg   int    `yaml:"reg" toml:"reg" json:"reg"`
	Name  string `yaml:"name" toml:"name" json:"name"`
	Type  string `yaml:"type" toml:"type" json:"type"`
	Start int    `yaml:"start" toml:"start" json:"start"`
	End   int    `yaml:"end" toml:"end" json:"end"`
}

// LoadFile reads a listing, choosing the decoder by extension.
func LoadFile(path string) (*Listing, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open listing: %w", err)
	}
	defer f.Close()

	l, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return l, nil
}

// Decode reads a listing in the given format.
func Decode(r io.Reader, format Format) (*Listing, error) {
	var l Listing
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&l); err != nil && err != io.EOF {
			return nil, err
		}
	case FormatTOML:
		if _, err := toml.NewDecoder(r).Decode(&l); err != nil {
			return nil, err
		}
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&l); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown listing format %q", format)
	}
	return &l, nil
}

// Hierarchy returns the class table declared by the listing.
func (l *Listing) Hierarchy() types.ClassTable {
	return types.ClassTable(l.Classes)
}

// Build converts every method, validating each one.
func (l *Listing) Build() ([]*bytecode.Method, error) {
	out := make([]*bytecode.Method, 0, len(l.Methods))
	for i := range l.Methods {
		m, err := l.Methods[i].Build()
		if err != nil {
			return nil, fmt.Errorf("method %d (%s): %w", i, l.Methods[i].Name, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Build converts the spec into a validated method.
func (s *MethodSpec) Build() (*bytecode.Method, error) {
	family, err := bytecode.ParseFamily(s.Family)
	if err != nil {
		return nil, err
	}
	m := &bytecode.Method{
		Owner:      s.Owner,
		Name:       s.Name,
		Descriptor: s.Descriptor,
		Static:     s.Static,
		Family:     family,
		Registers:  s.Registers,
		MaxStack:   s.MaxStack,
		Ops:        make([]*bytecode.Op, 0, len(s.Code)),
	}
	if m.Descriptor == "" {
		m.Descriptor = "()V"
	}

	for pc, spec := range s.Code {
		op, err := spec.build(pc)
		if err != nil {
			return nil, bytecode.Decodef(pc, "%v", err)
		}
		m.Ops = append(m.Ops, op)
	}
	for _, e := range s.Exceptions {
		m.Excs = append(m.Excs, bytecode.Exc{Start: e.Start, End: e.End, Handler: e.Handler, Catch: e.Catch})
	}
	for _, v := range s.Vars {
		t, err := types.Parse(v.Type)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.Name, err)
		}
		m.AddVar(bytecode.Var{Reg: v.Reg, Name: v.Name, Type: t, Start: v.Start, End: v.End})
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *OpSpec) build(pc int) (*bytecode.Op, error) {
	code, err := bytecode.ParseOpcode(s.Op)
	if err != nil {
		return nil, err
	}
	op := &bytecode.Op{
		PC:         pc,
		Line:       s.Line,
		Code:       code,
		Reg:        s.Reg,
		Src:        s.Src,
		Count:      s.Count,
		Skip:       s.Skip,
		Target:     s.Target,
		Cases:      s.Cases,
		Default:    s.Default,
		Owner:      s.Owner,
		Member:     s.Member,
		Static:     s.Static,
		Unresolved: s.Unresolved,
	}
	if s.Type != "" {
		if op.Type, err = parseType(s.Type); err != nil {
			return nil, err
		}
	}
	for _, a := range s.Args {
		t, err := types.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("argument: %w", err)
		}
		op.Args = append(op.Args, t)
	}
	if s.Const != nil {
		if op.Const, err = constant(op.Type, s.Const); err != nil {
			return nil, err
		}
	}
	return op, nil
}

// parseType accepts a field descriptor or "null" for the null constant type.
func parseType(s string) (types.Type, error) {
	if s == "null" {
		return types.Null, nil
	}
	return types.Parse(s)
}

// constant normalizes a literal to the Go type matching t. The decoders
// disagree on number types (int, int64, float64), so numbers go through
// int64 and float64 first.
func constant(t types.Type, v interface{}) (interface{}, error) {
	var (
		i     int64
		f     float64
		isNum = true
	)
	switch n := v.(type) {
	case int:
		i, f = int64(n), float64(n)
	case int64:
		i, f = n, float64(n)
	case uint64:
		i, f = int64(n), float64(n)
	case float64:
		i, f = int64(n), n
	default:
		isNum = false
	}

	switch {
	case t.Kind == types.KindBottom:
		if isNum {
			return int(i), nil
		}
		return v, nil
	case t.IsIntLike() && isNum:
		return int(i), nil
	case t.Kind == types.KindLong && isNum:
		return i, nil
	case t.Kind == types.KindFloat && isNum:
		return float32(f), nil
	case t.Kind == types.KindDouble && isNum:
		return f, nil
	case t.IsReference():
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("constant %v does not fit %s", v, t)
}
