package main

import (
	"os"

	"github.com/spf13/cobra"

	"carbon-factory/internal/carbon"
)

// newExecDriverCmd is the hidden entry point the measurer spawns: it runs
// one driver file in this fresh process, brackets the workload with an
// energy tracker, and prints the result as a single JSON line on stdout.
// Running it by hand is harmless but pointless.
func newExecDriverCmd() *cobra.Command {
	var intensity float64
	var referenceWatts float64
	cmd := &cobra.Command{
		Use:    "exec-driver <driver.go>",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker := carbon.NewTracker(referenceWatts)
			return carbon.RunDriver(args[0], tracker, intensity, os.Stdout)
		},
	}
	cmd.Flags().Float64Var(&intensity, "intensity", 0.475, "grid carbon intensity in kg CO2eq per kWh")
	cmd.Flags().Float64Var(&referenceWatts, "reference-watts", 65, "assumed draw when RAPL counters are unavailable")
	return cmd
}
