package commands

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-bytecode-flow/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize bcf configuration interactively",
	Long: `Guides you through setting up bcf configuration step by step and writes
it to ./.bcf/config.yaml, or ~/.bcf/config.yaml with --global.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		global, _ := cmd.Flags().GetBool("global")
		defaults, _ := cmd.Flags().GetBool("defaults")

		path := config.ProjectConfigFilePath()
		if global {
			path = config.GlobalConfigFilePath()
		}
		if configPath != "" {
			path = configPath
		}

		next := config.DefaultConfig()
		if !defaults {
			if err := promptConfig(next); err != nil {
				return err
			}
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if err := next.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("global", false, "Write the global config instead of the project config")
	initCmd.Flags().Bool("defaults", false, "Write the defaults without prompting")
}

// promptConfig asks for every setting, starting from the values in c.
func promptConfig(c *config.Config) error {
	workers := strconv.Itoa(c.Workers)
	cacheSize := strconv.Itoa(c.CacheSize)
	maxVisits := strconv.Itoa(c.MaxVisits)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Workers").
				Description("Methods analyzed concurrently in batch mode").
				Validate(positive).
				Value(&workers),
			huh.NewInput().
				Title("Result cache size").
				Description("Cached method results; 0 disables the cache").
				Validate(nonNegative).
				Value(&cacheSize),
			huh.NewInput().
				Title("Cache file (optional, press Enter to skip)").
				Placeholder(".bcf/results.msgpack").
				Value(&c.CacheFile),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default output format").
				Options(huh.NewOptions(config.Formats...)...).
				Value(&c.Format),
			huh.NewInput().
				Title("Visit bound per block").
				Description("Revisits before the dataflow gives up").
				Validate(positive).
				Value(&maxVisits),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&c.LogLevel),
			huh.NewConfirm().
				Title("Write logs as JSON lines?").
				Affirmative("Yes").
				Negative("No").
				Value(&c.JSONLogs),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	c.Workers, _ = strconv.Atoi(workers)
	c.CacheSize, _ = strconv.Atoi(cacheSize)
	c.MaxVisits, _ = strconv.Atoi(maxVisits)
	return nil
}

func positive(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}

func nonNegative(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("enter a number, 0 or more")
	}
	return nil
}
