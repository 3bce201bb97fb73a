package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-bytecode-flow/pkg/analysis"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "bcf version %s (analysis %s)\n", Version, analysis.Version)
		return nil
	},
}
