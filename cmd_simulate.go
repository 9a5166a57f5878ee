package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// Ticks are minutes of chamber time.
const ticksPerHour = 60

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Populate the chamber and advance it without a script",
		Long: `Simulate adds organisms, sets the light and waits, recording a data point
every --record-every ticks. It mirrors the manual buttons of the chamber:
add plant, add snail, toggle light, wait a minute, wait an hour.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plants, _ := cmd.Flags().GetInt("plants")
			snails, _ := cmd.Flags().GetInt("snails")
			hours, _ := cmd.Flags().GetInt("hours")
			minutes, _ := cmd.Flags().GetInt("minutes")
			dark, _ := cmd.Flags().GetBool("dark")
			every, _ := cmd.Flags().GetInt("record-every")
			tracked, _ := cmd.Flags().GetStringSlice("track")

			total := hours*ticksPerHour + minutes
			if total < 0 || plants < 0 || snails < 0 {
				return fmt.Errorf("counts and durations must be non-negative")
			}

			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.toggleTracked(tracked); err != nil {
				return err
			}
			for range plants {
				if err := a.session.AddOrganism("PLANT"); err != nil {
					return err
				}
			}
			for range snails {
				if err := a.session.AddOrganism("SNAIL"); err != nil {
					return err
				}
			}
			if dark && a.session.State().Light {
				a.session.ToggleLight()
			}

			if err := a.session.RecordData(); err != nil {
				return err
			}
			for done := 0; done < total; {
				step := total - done
				if every > 0 && every < step {
					step = every
				}
				if err := a.session.Wait(step); err != nil {
					return err
				}
				done += step
				if err := a.session.RecordData(); err != nil {
					return err
				}
			}

			if err := a.session.Flush(context.Background()); err != nil {
				a.logger.Warn("flushing records", "error", err)
			}
			a.printState(cmd)
			return nil
		},
	}
	cmd.Flags().Int("plants", 0, "Plants to add")
	cmd.Flags().Int("snails", 0, "Snails to add")
	cmd.Flags().Int("hours", 1, "Hours to wait")
	cmd.Flags().Int("minutes", 0, "Additional minutes to wait")
	cmd.Flags().Bool("dark", false, "Switch the light off before waiting")
	cmd.Flags().Int("record-every", ticksPerHour, "Ticks between recorded data points (0 = start and end only)")
	cmd.Flags().StringSlice("track", nil, "Variables to toggle in the tracked selection")
	return cmd
}
