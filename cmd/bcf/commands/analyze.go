package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-bytecode-flow/pkg/analysis"
	"github.com/l3aro/go-bytecode-flow/pkg/bytecode"
	"github.com/l3aro/go-bytecode-flow/pkg/loader"
	"github.com/l3aro/go-bytecode-flow/pkg/report"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <listing>",
	Short: "Analyze the methods of a listing",
	Long: `Builds the control-flow graph of every method in a YAML, TOML or JSON
listing, computes dominators, infers frame types and prints a summary.

Examples:
  bcf analyze methods.yaml
  bcf analyze methods.toml --method run --frames
  bcf analyze methods.json --format cbor > out.cbor`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		methodName, _ := cmd.Flags().GetString("method")
		frames, _ := cmd.Flags().GetBool("frames")
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}

		listing, err := loader.LoadFile(args[0])
		if err != nil {
			return err
		}
		methods, err := listing.Build()
		if err != nil {
			return fmt.Errorf("loading %s: %w", args[0], err)
		}
		methods = selectMethods(methods, methodName)
		if len(methods) == 0 {
			return fmt.Errorf("no method %q in %s", methodName, args[0])
		}

		opts := analysis.Options{
			Hierarchy: listing.Hierarchy(),
			MaxVisits: cfg.MaxVisits,
			Frames:    frames,
		}
		for _, m := range methods {
			res, err := analysis.Analyze(m, opts)
			if err != nil {
				return err
			}
			logger.Debug("analyzed", "method", m.ID(), "blocks", res.CFG.NumBlocks(), "removed", res.Removed)
			if err := report.Encode(cmd.OutOrStdout(), res.Summary(frames), format); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringP("method", "m", "", "Only analyze methods with this name")
	analyzeCmd.Flags().StringP("format", "f", "", "Output format: text, json, yaml, msgpack or cbor")
	analyzeCmd.Flags().Bool("frames", false, "Include the frame before every instruction")
}

// outputFormat resolves --format against the configured default.
func outputFormat(cmd *cobra.Command) (report.Format, error) {
	name, _ := cmd.Flags().GetString("format")
	if name == "" {
		name = cfg.Format
	}
	return report.ParseFormat(name)
}

func selectMethods(methods []*bytecode.Method, name string) []*bytecode.Method {
	if name == "" {
		return methods
	}
	var out []*bytecode.Method
	for _, m := range methods {
		if m.Name == name || m.ID() == name {
			out = append(out, m)
		}
	}
	return out
}
