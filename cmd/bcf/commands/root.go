// Package commands provides the CLI commands for bcf.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-bytecode-flow/internal/config"
	"github.com/l3aro/go-bytecode-flow/internal/log"
)

// Version is set by main from build flags
var Version = "dev"

var (
	configPath string
	logLevel   string
	jsonLogs   bool
	verbose    bool

	// set by the persistent pre-run
	cfg    *config.Config
	logger *log.DefaultLogger
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "bcf",
	Short: "bcf - control-flow and type inference for bytecode methods",
	Long: `bcf builds the control-flow graph of bytecode methods and infers the type
of every register and stack slot at every instruction.

Commands:
  analyze     Analyze the methods of one listing
  batch       Analyze many listings concurrently with result caching
  init        Write a configuration file interactively
  version     Print version information

Use "bcf [command] --help" for more information about a command.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ~/.bcf and ./.bcf)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	RootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Write logs as JSON lines")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	RootCmd.AddCommand(analyzeCmd)
	RootCmd.AddCommand(batchCmd)
	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(versionCmd)
}

// setup loads the configuration, applies flag overrides and configures the
// logger. Commands that write the configuration skip validation errors.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		if cmd != initCmd {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = config.DefaultConfig()
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("json-logs") {
		cfg.JSONLogs = jsonLogs
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = verbose
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.Verbose && level > log.DebugLevel {
		level = log.DebugLevel
	}
	logger = log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: cfg.JSONLogs,
		Output:     cmd.ErrOrStderr(),
	})
	return nil
}
