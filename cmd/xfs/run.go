package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/xfs/internal/bot"
	"github.com/dshills/xfs/internal/shell"
)

type runOptions struct {
	server string
	nick   string
	tls    bool
}

func newRunCommand(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the server and start dispatching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd, global, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.server, "server", "s", "", "Server address (host:port), overrides server.address")
	cmd.Flags().StringVarP(&opts.nick, "nick", "n", "", "Nick, overrides server.nick")
	cmd.Flags().BoolVar(&opts.tls, "tls", false, "Connect with TLS, overrides server.tls")
	return cmd
}

func runBot(cmd *cobra.Command, global *globalOptions, opts *runOptions) error {
	cfg, path, err := global.loadConfig()
	if err != nil {
		return err
	}
	if opts.server != "" {
		cfg.Server.Address = opts.server
	}
	if opts.nick != "" {
		cfg.Server.Nick = opts.nick
	}
	if cmd.Flags().Changed("tls") {
		cfg.Server.TLS = opts.tls
	}

	logger, err := global.logger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if path != "" {
		logger.Info("configuration loaded", zap.String("path", path))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := bot.New(ctx, *cfg, bot.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	conn, err := shell.Dial(ctx, shell.Config{
		Address:  cfg.Server.Address,
		TLS:      cfg.Server.TLS,
		Password: cfg.Server.Password,
		Nick:     cfg.Server.Nick,
		User:     cfg.Server.User,
		RealName: cfg.Server.RealName,
		Channels: cfg.Server.Channels,
	}, shell.WithLogger(logger.Named("shell")))
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Info("connected",
		zap.String("address", cfg.Server.Address),
		zap.String("nick", cfg.Server.Nick),
	)

	err = b.Run(ctx, conn)
	if ctx.Err() != nil {
		logger.Info("shutting down")
		if qerr := conn.Quit("shutting down"); qerr != nil && !errors.Is(qerr, shell.ErrClosed) {
			logger.Debug("quit", zap.Error(qerr))
		}
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
