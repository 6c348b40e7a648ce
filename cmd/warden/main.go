// Package main is the entry point for the warden CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zette-dev/warden/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd().Execute(); err != nil {
		return handleError(err)
	}
	return 0
}

// handleError prints err to stderr and returns the process exit code.
func handleError(err error) int {
	msg := err.Error()
	color.New(color.FgRed).Fprintf(os.Stderr, "Error: %s\n", msg)

	if strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") {
		fmt.Fprintln(os.Stderr, "Run 'warden --help' for usage")
		return 2
	}
	return 1
}

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "warden",
		Short: "Run a line-protocol program behind a Telegram chat",
		Long: `warden supervises a child program per chat. Chat commands are written
to the program's stdin and its output is streamed back into the chat.

  warden serve      Build the program and start the Telegram bot
  warden console    Attach the terminal to a local session
  warden build      Build (and optionally update) the program`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(
				flagOrEnv(opts.logLevel, "WARDEN_LOG_LEVEL", "info"),
				flagOrEnv(opts.logFormat, "WARDEN_LOG_FORMAT", "text"),
				cmd.ErrOrStderr(),
			)
			if err != nil {
				return fmt.Errorf("invalid logging configuration: %w", err)
			}
			slog.SetDefault(logger.With("session.id", uuid.NewString(), "command.path", cmd.CommandPath()))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default warden.yaml, env WARDEN_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: error, warn, info, debug")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: text, json")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newConsoleCmd(opts),
		newBuildCmd(opts),
	)

	return rootCmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(flagOrEnv(o.configPath, "WARDEN_CONFIG", "warden.yaml"))
}

// flagOrEnv returns the flag value if set, then the environment variable,
// then the fallback.
func flagOrEnv(flagValue, envKey, fallback string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}
	return fallback
}
