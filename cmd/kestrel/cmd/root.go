// Package cmd provides the CLI commands for Kestrel.
package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kestrelsearch/kestrel/internal/automation"
	"github.com/kestrelsearch/kestrel/internal/config"
	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
	"github.com/kestrelsearch/kestrel/internal/logging"
	"github.com/kestrelsearch/kestrel/pkg/version"
)

// Persistent flags shared by all commands.
var (
	configPath     string
	indexOverride  string
	debugMode      bool
	loggingCleanup = func() {}
)

// NewRootCmd creates the root command for the kestrel CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kestrel",
		Short: "Code-aware search indexing for a managed search service",
		Long: `Kestrel indexes source repositories into a managed search service
and answers hybrid (semantic + keyword + vector) queries over them.

Configuration comes from a YAML file plus KESTREL_* environment
variables; at minimum KESTREL_ENDPOINT and KESTREL_API_KEY must be set.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("kestrel version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVar(&indexOverride, "index", "", "Index name (overrides config)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		logCfg := logging.DefaultConfig()
		logCfg.WriteToStderr = false
		if debugMode {
			logCfg = logging.DebugConfig()
		}
		cleanup, err := logging.SetupDefault(logCfg)
		if err != nil {
			return err
		}
		loggingCleanup = cleanup
		return nil
	}
	cmd.PersistentPostRun = func(c *cobra.Command, args []string) {
		loggingCleanup()
	}

	cmd.AddCommand(
		newConfigCmd(),
		newIndexCmd(),
		newSearchCmd(),
		newReindexCmd(),
		newSchemaCmd(),
		newPipelineCmd(),
		newHealthCmd(),
		newStatsCmd(),
		newWatchCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command under ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// loadConfig reads the effective configuration for a command run.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if indexOverride != "" {
		cfg.IndexName = indexOverride
	}
	if cfg.IndexName == "" {
		return cfg, kerrors.ConfigError("index name is required", nil).
			WithSuggestion("set index_name in the config file, KESTREL_INDEX_NAME, or --index")
	}
	if debugMode {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newCLI builds the automation stack for one command run.
func newCLI() (*automation.CLIAutomation, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return automation.NewCLIAutomation(cfg, slog.Default())
}
