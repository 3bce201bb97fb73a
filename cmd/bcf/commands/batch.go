package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-bytecode-flow/pkg/analysis"
	"github.com/l3aro/go-bytecode-flow/pkg/bytecode"
	"github.com/l3aro/go-bytecode-flow/pkg/cache"
	"github.com/l3aro/go-bytecode-flow/pkg/loader"
	"github.com/l3aro/go-bytecode-flow/pkg/report"
	"github.com/l3aro/go-bytecode-flow/pkg/types"
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <listing>...",
	Short: "Analyze many listings concurrently",
	Long: `Analyzes every method of the given listings on a bounded worker pool.
A failing method is reported and the others keep going. Results are cached
by method fingerprint and, with --cache, persisted between runs.

Examples:
  bcf batch a.yaml b.yaml
  bcf batch lib/*.toml --workers 8 --cache .bcf/results.msgpack`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, _ := cmd.Flags().GetInt("workers")
		cacheFile, _ := cmd.Flags().GetString("cache")
		frames, _ := cmd.Flags().GetBool("frames")
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		if workers <= 0 {
			workers = cfg.Workers
		}
		if cacheFile == "" {
			cacheFile = cfg.CacheFile
		}

		classes := types.ClassTable{}
		var methods []*bytecode.Method
		for _, path := range args {
			listing, err := loader.LoadFile(path)
			if err != nil {
				return err
			}
			ms, err := listing.Build()
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			for class, super := range listing.Classes {
				classes[class] = super
			}
			methods = append(methods, ms...)
		}

		var results *cache.LRU
		if cfg.CacheSize > 0 {
			results = cache.New(cache.Options{MaxSize: cfg.CacheSize})
			if cacheFile != "" {
				if err := cache.LoadFromFile(results, cacheFile); err != nil {
					logger.Warn("ignoring unreadable cache", "file", cacheFile, "error", err)
				}
			}
		}

		runner := analysis.NewRunner(analysis.RunnerConfig{
			Options: analysis.Options{
				Hierarchy: classes,
				MaxVisits: cfg.MaxVisits,
				Frames:    frames,
			},
			Workers: workers,
			Cache:   results,
			Logger:  logger,
		})
		outcomes := runner.Run(background(cmd), methods)

		if err := writeOutcomes(cmd.OutOrStdout(), outcomes, format); err != nil {
			return err
		}

		if results != nil {
			stats := results.Stats()
			logger.Info("cache", "entries", stats.Length, "hits", stats.HitCount, "misses", stats.MissCount)
			if cacheFile != "" {
				if err := cache.PersistToFile(results, cacheFile); err != nil {
					logger.Warn("cannot persist cache", "file", cacheFile, "error", err)
				}
			}
		}

		if failed := analysis.Failed(outcomes); failed > 0 {
			return fmt.Errorf("%d of %d methods failed", failed, len(outcomes))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntP("workers", "w", 0, "Concurrent analyses (default from config)")
	batchCmd.Flags().String("cache", "", "Persist the result cache to this file")
	batchCmd.Flags().StringP("format", "f", "", "Output format: text, json, yaml, msgpack or cbor")
	batchCmd.Flags().Bool("frames", false, "Include the frame before every instruction")
}

// writeOutcomes prints one line per method for text output and the
// successful summaries otherwise.
func writeOutcomes(w io.Writer, outcomes []analysis.Outcome, format report.Format) error {
	for _, o := range outcomes {
		if format != report.FormatText {
			if o.Err != nil {
				continue
			}
			if err := report.Encode(w, o.Summary, format); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			continue
		}

		switch {
		case o.Err != nil:
			fmt.Fprintf(w, "FAIL    %s: %v\n", o.Method, o.Err)
		case o.Cached:
			fmt.Fprintf(w, "cached  %s (%d blocks, %d diagnostics)\n", o.Method, len(o.Summary.Blocks), len(o.Summary.Diagnostics))
		default:
			fmt.Fprintf(w, "ok      %s (%d blocks, %d diagnostics)\n", o.Method, len(o.Summary.Blocks), len(o.Summary.Diagnostics))
		}
	}
	return nil
}

// background is used when a command runs without a context, as in tests
// calling RunE directly.
func background(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
