package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-bytecode-flow/internal/config"
	"github.com/l3aro/go-bytecode-flow/pkg/report"
)

const listing = `
classes:
  t/Sub: java/lang/Object
methods:
  - owner: t/T
    name: loop
    descriptor: ()V
    static: true
    registers: 1
    max_stack: 1
    code:
      - {op: const, type: I, const: 0, line: 3}
      - {op: store, type: I, reg: 0}
      - {op: load, type: I, reg: 0, line: 4}
      - {op: if, count: 1, target: 6}
      - {op: inc, reg: 0, const: 1}
      - {op: goto, target: 2}
      - {op: return, line: 5}
  - owner: t/T
    name: broken
    descriptor: ()V
    static: true
    max_stack: 1
    code:
      - {op: pop, count: 1}
      - {op: return}
`

const second = `
methods:
  - owner: t/U
    name: id
    descriptor: (I)I
    static: true
    registers: 1
    max_stack: 1
    code:
      - {op: load, type: I, reg: 0}
      - {op: return, count: 1}
`

// resetFlags puts every flag back to its default so runs do not leak into
// each other through the shared command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

type env struct {
	dir     string
	config  string
	listing string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	e := env{
		dir:     dir,
		config:  filepath.Join(dir, "config.yaml"),
		listing: filepath.Join(dir, "methods.yaml"),
	}
	cfg := config.DefaultConfig()
	cfg.Workers = 2
	require.NoError(t, cfg.Save(e.config))
	require.NoError(t, os.WriteFile(e.listing, []byte(listing), 0644))
	return e
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(RootCmd)
	var out, errOut bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return out.String(), err
}

func TestAnalyze_Text(t *testing.T) {
	e := newEnv(t)

	out, err := run(t, "--config", e.config, "analyze", e.listing, "--method", "loop", "--frames")
	require.NoError(t, err)
	assert.Contains(t, out, "method t/T.loop()V (registers 1, max stack 1)")
	assert.Contains(t, out, "lines [4]")
	assert.Contains(t, out, "frames")
	assert.NotContains(t, out, "broken")
}

func TestAnalyze_JSON(t *testing.T) {
	e := newEnv(t)

	out, err := run(t, "--config", e.config, "analyze", e.listing, "-m", "loop", "--format", "json")
	require.NoError(t, err)

	var s report.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "t/T.loop()V", s.Method)
	assert.Len(t, s.Blocks, 4)
	assert.Empty(t, s.Frames)
}

func TestAnalyze_Errors(t *testing.T) {
	e := newEnv(t)

	_, err := run(t, "--config", e.config, "analyze", e.listing, "--method", "nothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no method "nothing"`)

	_, err = run(t, "--config", e.config, "analyze", e.listing, "--method", "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyzing t/T.broken()V at pc 0")

	_, err = run(t, "--config", e.config, "analyze", e.listing, "--format", "xml")
	assert.Error(t, err)
}

func TestBatch(t *testing.T) {
	e := newEnv(t)
	other := filepath.Join(e.dir, "second.yaml")
	require.NoError(t, os.WriteFile(other, []byte(second), 0644))
	cacheFile := filepath.Join(e.dir, "cache", "results.msgpack")

	out, err := run(t, "--config", e.config, "batch", e.listing, other, "--cache", cacheFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 methods failed")
	assert.Contains(t, out, "ok      t/T.loop()V")
	assert.Contains(t, out, "FAIL    t/T.broken()V")
	assert.Contains(t, out, "ok      t/U.id(I)I")

	_, statErr := os.Stat(cacheFile)
	require.NoError(t, statErr)

	out, _ = run(t, "--config", e.config, "batch", e.listing, other, "--cache", cacheFile, "--workers", "1")
	assert.Contains(t, out, "cached  t/T.loop()V")
	assert.Contains(t, out, "cached  t/U.id(I)I")
	assert.Contains(t, out, "FAIL    t/T.broken()V")
}

func TestBatch_Binary(t *testing.T) {
	e := newEnv(t)
	other := filepath.Join(e.dir, "second.yaml")
	require.NoError(t, os.WriteFile(other, []byte(second), 0644))

	out, err := run(t, "--config", e.config, "batch", other, "--format", "msgpack")
	require.NoError(t, err)

	s, err := report.Unmarshal([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "t/U.id(I)I", s.Method)
}

func TestInit_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "written", "config.yaml")

	out, err := run(t, "--config", path, "init", "--defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written to "+path)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().MaxVisits, cfg.MaxVisits)
}

func TestVersion(t *testing.T) {
	e := newEnv(t)
	out, err := run(t, "--config", e.config, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "bcf version "))
}
