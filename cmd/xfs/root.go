package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/xfs/internal/config"
	"github.com/dshills/xfs/internal/logging"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "xfs",
		Short: "A scriptable chat bot with hot-reloaded modules",
		Long: `xfs connects to a chat server, parses every protocol line into an event and
dispatches it to handlers declared by modules. Modules are Lua scripts or Go
source files in the modules directory and are reloaded when they change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (default: ./"+config.FileName+")")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(
		newRunCommand(opts),
		newModulesCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(),
	)
	return root
}

// loadConfig loads and validates the configuration selected by the flags.
func (o *globalOptions) loadConfig() (*config.Config, string, error) {
	cfg, path, err := config.Load(o.configPath)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, path, nil
}

// logger builds the process logger for cfg.
func (o *globalOptions) logger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Debug:  o.debug,
	})
}
