package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zette-dev/warden/internal/build"
)

func newBuildCmd(opts *rootOptions) *cobra.Command {
	var update bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the program",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			runner := build.New(cfg.Build)
			run := runner.Build
			if update {
				run = runner.Rebuild
			}
			if err := run(cmd.Context()); err != nil {
				return err
			}

			green := color.New(color.FgGreen)
			_, err = green.Fprintln(cmd.OutOrStdout(), "build ok")
			if err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&update, "update", false, "fetch and check out the configured git branch first")
	return cmd
}
