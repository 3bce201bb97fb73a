package analysis

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/l3aro/go-bytecode-flow/internal/log"
	"github.com/l3aro/go-bytecode-flow/pkg/bytecode"
	"github.com/l3aro/go-bytecode-flow/pkg/cache"
	"github.com/l3aro/go-bytecode-flow/pkg/diag"
	"github.com/l3aro/go-bytecode-flow/pkg/report"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Options Options

	// Workers bounds concurrent analyses; runtime.NumCPU() when zero.
	Workers int

	// Cache stores encoded summaries by method fingerprint; may be nil.
	// Entries are only valid for the Hierarchy they were computed with, so
	// give each hierarchy its own cache.
	Cache *cache.LRU

	Logger log.Logger
}

// Outcome is the result for one method of a batch.
type Outcome struct {
	Method  string
	Summary *report.Summary
	Cached  bool
	Err     error
}

// Runner analyzes many methods concurrently. A failing method never stops
// the others.
type Runner struct {
	opts    Options
	workers int
	cache   *cache.LRU
	logger  log.Logger
	salt    string
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		opts:    cfg.Options,
		workers: workers,
		cache:   cfg.Cache,
		logger:  logger,
		salt:    fmt.Sprintf("%s/frames=%t/visits=%d", Version, cfg.Options.Frames, cfg.Options.MaxVisits),
	}
}

// Run analyzes methods and returns one Outcome per method, in input order.
// Methods not started before ctx is done fail with ctx.Err().
func (r *Runner) Run(ctx context.Context, methods []*bytecode.Method) []Outcome {
	out := make([]Outcome, len(methods))

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.workers)

	for i, m := range methods {
		wg.Add(1)
		go func(i int, m *bytecode.Method) {
			sem <- struct{}{}
			defer wg.Done()
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				out[i] = Outcome{Method: m.ID(), Err: ctx.Err()}
				return
			default:
			}

			out[i] = r.one(m)
		}(i, m)
	}
	wg.Wait()

	return out
}

func (r *Runner) one(m *bytecode.Method) (o Outcome) {
	o.Method = m.ID()
	defer func() {
		if p := recover(); p != nil {
			o.Summary = nil
			o.Err = &MethodError{Method: o.Method, PC: -1, Err: fmt.Errorf("internal error: %v", p)}
			r.logger.Error("analysis panicked", "method", o.Method, "panic", p)
		}
	}()

	key := ""
	if r.cache != nil {
		var err error
		if key, err = cache.Fingerprint(m, r.salt); err != nil {
			r.logger.Warn("cannot fingerprint method", "method", o.Method, "error", err)
		} else if data, ok := r.cache.Get(key); ok {
			if s, err := report.Unmarshal(data); err == nil {
				r.logger.Debug("cache hit", "method", o.Method)
				o.Summary, o.Cached = s, true
				return o
			}
			r.cache.Delete(key)
		}
	}

	res, err := Analyze(m, r.opts)
	if err != nil {
		r.logger.Warn("analysis failed", "method", o.Method, "error", err)
		o.Err = err
		return o
	}
	r.forward(o.Method, res.Diagnostics)
	r.logger.Debug("analyzed", "method", o.Method, "blocks", res.CFG.NumBlocks(), "values", res.Flow.Values().Len())

	o.Summary = res.Summary(r.opts.Frames)
	if r.cache != nil && key != "" {
		if data, err := report.Marshal(o.Summary); err == nil {
			r.cache.Set(key, data)
		}
	}
	return o
}

func (r *Runner) forward(method string, diags []diag.Diagnostic) {
	for _, d := range diags {
		if d.Severity == diag.SeverityWarning {
			r.logger.Warn(d.Message, "method", method, "pc", d.PC)
		} else {
			r.logger.Debug(d.Message, "method", method, "pc", d.PC)
		}
	}
}

// Failed counts outcomes with an error.
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}
