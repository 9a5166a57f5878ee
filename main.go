package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ecochamber",
		Short: "Closed-chamber ecosystem simulator",
		Long: `ecochamber simulates plants and snails exchanging O2 and CO2 in a sealed chamber.

Experiments are driven by Lua scripts built from a small set of primitives
(wait, setVar, getVar, incVar, reset, recordData, highlightBlock), or by the
simulate command for quick manual runs.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config.yaml (empty = use defaults)")
	rootCmd.PersistentFlags().Int64("seed", 0, "RNG seed (0 = config value)")
	rootCmd.PersistentFlags().String("db", "", "SQLite file for recorded data (empty = log records)")
	rootCmd.PersistentFlags().String("output-dir", "", "Directory for trace.csv and config snapshot")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().Bool("log-stats", false, "Log every telemetry window")

	rootCmd.AddCommand(
		newRunCmd(),
		newSimulateCmd(),
	)
	return rootCmd
}
