package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-bytecode-flow/pkg/bytecode"
	"github.com/l3aro/go-bytecode-flow/pkg/types"
)

const yamlListing = `
classes:
  a/Sub: a/Base
  a/Base: java/lang/Object
methods:
  - owner: a/Sub
    name: pick
    descriptor: (JI)J
    static: true
    registers: 3
    max_stack: 4
    code:
      - {op: load, type: I, reg: 2, line: 7}
      - {op: if, count: 1, target: 4}
      - {op: const, type: J, const: 5}
      - {op: return, count: 1}
      - {op: load, type: J, reg: 0}
      - {op: return, count: 1}
    vars:
      - {reg: 2, name: flag, type: I, start: 0, end: 6}
`

const tomlListing = `
[classes]
"a/Sub" = "a/Base"

[[methods]]
owner = "a/Sub"
name = "sw"
descriptor = "(I)V"
static = true
registers = 1
max_stack = 1

  [[methods.code]]
  op = "load"
  type = "I"
  reg = 0

  [[methods.code]]
  op = "switch"
  count = 1
  default = 3
  cases = [{key = 1, target = 2}, {key = 2, target = 3}]

  [[methods.code]]
  op = "nop"

  [[methods.code]]
  op = "return"

  [[methods.exceptions]]
  start = 0
  end = 2
  handler = 3
`

const jsonListing = `{
  "methods": [{
    "owner": "a/Sub",
    "name": "str",
    "descriptor": "()Ljava/lang/String;",
    "static": true,
    "family": "dex",
    "registers": 1,
    "max_stack": 1,
    "code": [
      {"op": "const", "type": "Ljava/lang/String;", "const": "hi"},
      {"op": "const", "type": "D", "const": 2},
      {"op": "const", "type": "null"},
      {"op": "return", "count": 1}
    ]
  }]
}`

func TestDecode_YAML(t *testing.T) {
	l, err := Decode(strings.NewReader(yamlListing), FormatYAML)
	require.NoError(t, err)

	super, ok := l.Hierarchy().Super("a/Sub")
	require.True(t, ok)
	assert.Equal(t, "a/Base", super)

	methods, err := l.Build()
	require.NoError(t, err)
	require.Len(t, methods, 1)
	m := methods[0]

	assert.Equal(t, "a/Sub.pick(JI)J", m.ID())
	assert.Equal(t, bytecode.FamilyClass, m.Family)
	require.Len(t, m.Ops, 6)
	for i, op := range m.Ops {
		assert.Equal(t, i, op.PC)
	}
	assert.Equal(t, bytecode.OpIf, m.Ops[1].Code)
	assert.Equal(t, 4, m.Ops[1].Target)
	assert.Equal(t, 7, m.Ops[0].Line)
	assert.Equal(t, types.Long, m.Ops[2].Type)
	assert.Equal(t, int64(5), m.Ops[2].Const)

	v, ok := m.VarAt(2, 3)
	require.True(t, ok)
	assert.Equal(t, "flag", v.Name)
	assert.Equal(t, types.Int, v.Type)
}

func TestDecode_TOML(t *testing.T) {
	l, err := Decode(strings.NewReader(tomlListing), FormatTOML)
	require.NoError(t, err)

	methods, err := l.Build()
	require.NoError(t, err)
	require.Len(t, methods, 1)
	m := methods[0]

	sw := m.Ops[1]
	assert.Equal(t, bytecode.OpSwitch, sw.Code)
	assert.Equal(t, 3, sw.Default)
	assert.Equal(t, []bytecode.Case{{Key: 1, Target: 2}, {Key: 2, Target: 3}}, sw.Cases)
	assert.Equal(t, []bytecode.Exc{{Start: 0, End: 2, Handler: 3}}, m.Excs)
}

func TestDecode_JSON(t *testing.T) {
	l, err := Decode(strings.NewReader(jsonListing), FormatJSON)
	require.NoError(t, err)

	methods, err := l.Build()
	require.NoError(t, err)
	m := methods[0]

	assert.Equal(t, bytecode.FamilyDex, m.Family)
	assert.Equal(t, "hi", m.Ops[0].Const)
	assert.Equal(t, 2.0, m.Ops[1].Const)
	assert.Equal(t, types.Null, m.Ops[2].Type)
	assert.Nil(t, m.Ops[2].Const)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		spec    MethodSpec
		wantErr string
	}{
		{
			name:    "unknown opcode",
			spec:    MethodSpec{Name: "f", Registers: 1, Code: []OpSpec{{Op: "jump"}}},
			wantErr: "unknown opcode",
		},
		{
			name:    "bad type",
			spec:    MethodSpec{Name: "f", Registers: 1, Code: []OpSpec{{Op: "const", Type: "Q"}}},
			wantErr: "invalid descriptor",
		},
		{
			name:    "constant mismatch",
			spec:    MethodSpec{Name: "f", Registers: 1, Code: []OpSpec{{Op: "const", Type: "I", Const: "x"}}},
			wantErr: "does not fit",
		},
		{
			name:    "unknown family",
			spec:    MethodSpec{Name: "f", Family: "wasm", Code: []OpSpec{{Op: "return"}}},
			wantErr: "unknown bytecode family",
		},
		{
			name:    "register out of range",
			spec:    MethodSpec{Name: "f", Registers: 1, Code: []OpSpec{{Op: "load", Type: "I", Reg: 3}}},
			wantErr: "outside 1 registers",
		},
		{
			name:    "empty code",
			spec:    MethodSpec{Name: "f"},
			wantErr: "has no code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.spec.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuild_OpErrorsCarryPC(t *testing.T) {
	spec := MethodSpec{Name: "f", Registers: 1, Code: []OpSpec{{Op: "nop"}, {Op: "jump"}}}
	_, err := spec.Build()
	require.Error(t, err)
	assert.True(t, errors.Is(err, bytecode.ErrDecode))
	pc, ok := bytecode.ErrorPC(err)
	require.True(t, ok)
	assert.Equal(t, 1, pc)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"a.yaml": yamlListing,
		"b.toml": tomlListing,
		"c.json": jsonListing,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		l, err := LoadFile(path)
		require.NoError(t, err, name)
		assert.Len(t, l.Methods, 1, name)
	}

	_, err := LoadFile(filepath.Join(dir, "x.txt"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = LoadFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse error in")
}

func TestFormatOf(t *testing.T) {
	for path, want := range map[string]Format{
		"m.yml":  FormatYAML,
		"m.YAML": FormatYAML,
		"m.toml": FormatTOML,
		"m.json": FormatJSON,
	} {
		got, err := FormatOf(path)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLoadFile_Testdata(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "testdata", "listings", "*"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			l, err := LoadFile(path)
			require.NoError(t, err)
			methods, err := l.Build()
			require.NoError(t, err)
			assert.NotEmpty(t, methods)
			assert.NotEmpty(t, l.Classes)
		})
	}
}
