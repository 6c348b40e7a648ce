package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zette-dev/warden/internal/bot"
	"github.com/zette-dev/warden/internal/build"
	"github.com/zette-dev/warden/internal/config"
	"github.com/zette-dev/warden/internal/process"
	"github.com/zette-dev/warden/internal/session"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var skipBuild bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build the program and start the Telegram bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Telegram.BotToken == "" {
				return errors.New("telegram.bot_token is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			builder := build.New(cfg.Build)
			if !skipBuild {
				if err := builder.Build(ctx); err != nil {
					return err
				}
			}

			tg, err := bot.New(cfg.Telegram)
			if err != nil {
				return err
			}

			reg := newRegistry(cfg, builder, tg.Listener)
			tg.SetSessions(reg)
			defer reg.Shutdown()

			slog.Info("warden serving", "command", cfg.Process.Command, "dir", cfg.Process.Dir)
			tg.Start(ctx)
			slog.Info("shutting down", "sessions", reg.Len())
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipBuild, "skip-build", false, "start without building the program first")
	return cmd
}

// newRegistry wires the configured executable into a session registry.
func newRegistry(cfg *config.Config, builder session.Builder, listeners session.ListenerFactory) *session.Registry {
	launchers := func(chatID int64) process.Launcher {
		return process.ExecLauncher{
			Command: cfg.Process.Command,
			Args:    cfg.Process.Args,
			Dir:     cfg.Process.DirFor(chatID),
			Env:     cfg.Process.Env,
		}
	}
	return session.NewRegistry(*cfg, launchers, listeners, builder)
}
