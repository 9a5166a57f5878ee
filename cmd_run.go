package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script.lua>",
		Short: "Run a Lua experiment script headless",
		Long: `Run executes an experiment script against a fresh chamber.

Each primitive call is one instruction. Between instructions the runner
pauses for script.step_delay unless --rush is set. Interrupting the
process stops the script at the next instruction boundary.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rush, _ := cmd.Flags().GetBool("rush")
			tracked, _ := cmd.Flags().GetStringSlice("track")

			source, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read script: %w", err)
			}

			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.toggleTracked(tracked); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.session.StartScript(ctx, string(source), rush); err != nil {
				return fmt.Errorf("failed to start script: %w", err)
			}
			a.logger.Info("script started", "path", args[0], "rush", rush)

			runErr := a.session.WaitScript(context.Background())
			if ctx.Err() != nil {
				a.logger.Info("script interrupted")
			}
			if err := a.session.Flush(context.Background()); err != nil {
				a.logger.Warn("flushing records", "error", err)
			}
			a.printState(cmd)
			if runErr != nil {
				return fmt.Errorf("script failed: %w", runErr)
			}
			return nil
		},
	}
	cmd.Flags().Bool("rush", false, "Run without the per-instruction delay")
	cmd.Flags().StringSlice("track", nil, "Variables to toggle in the tracked selection before the run")
	return cmd
}

// toggleTracked flips each named variable in the export selection.
func (a *app) toggleTracked(names []string) error {
	for _, name := range names {
		on, err := a.session.ToggleTracked(name)
		if err != nil {
			return err
		}
		a.logger.Info("tracked variable", "name", name, "enabled", on)
	}
	return nil
}
