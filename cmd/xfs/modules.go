package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/xfs/internal/bot"
	"github.com/dshills/xfs/internal/config"
	"github.com/dshills/xfs/internal/logging"
	"github.com/dshills/xfs/internal/registry"
	"github.com/dshills/xfs/internal/registry/golang"
	"github.com/dshills/xfs/internal/registry/lua"
	"github.com/dshills/xfs/internal/store"
)

// errModulesFailed is returned by "modules check" when any module fails.
var errModulesFailed = errors.New("some modules failed to load")

func newModulesCommand(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Inspect the modules directory",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List module files without loading them",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := global.loadConfig()
				if err != nil {
					return err
				}
				return listModules(cmd.OutOrStdout(), cfg)
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Load every module and report its handlers and errors",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := global.loadConfig()
				if err != nil {
					return err
				}
				level := zapcore.WarnLevel
				if global.debug {
					level = zapcore.DebugLevel
				}
				logger := logging.NewWriter(cmd.ErrOrStderr(), level)
				return checkModules(cmd.Context(), cmd.OutOrStdout(), logger, *cfg)
			},
		},
	)
	return cmd
}

func listModules(w io.Writer, cfg *config.Config) error {
	exts := []string{lua.Ext, golang.Ext}
	paths, err := registry.Discover(cfg.Modules.Dir, exts...)
	if errors.Is(err, registry.ErrNoModules) {
		fmt.Fprintf(w, "no modules in %s\n", cfg.Modules.Dir)
		return nil
	}
	if err != nil {
		return err
	}

	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%-16s %s\n", name, paths[name])
	}
	return nil
}

// checkModules loads every module with logger and reports the result to w.
func checkModules(ctx context.Context, w io.Writer, logger *zap.Logger, cfg config.Config) error {
	cfg.Modules.Watch = false
	cfg.Store.Path = store.Memory

	b, err := bot.New(ctx, cfg, bot.WithLogger(logger))
	if err != nil {
		return err
	}
	defer b.Close()

	snap := b.Registry().Snapshot()
	for _, name := range snap.Modules() {
		source := snap.Path(name)
		if source == "" {
			source = "compiled-in"
		}
		fmt.Fprintf(w, "%s (%s)\n", name, source)
		for _, e := range snap.Handlers(name) {
			fmt.Fprintf(w, "  %-16s %s\n", e.Name, e.Spec)
		}
	}

	errs := b.Registry().Errors()
	if len(errs) == 0 {
		return nil
	}
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "FAIL %s: %s\n", name, strings.TrimSpace(errs[name].Error()))
	}
	return fmt.Errorf("%w: %d", errModulesFailed, len(errs))
}
