package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "carbonfactory",
		Short:         "Iteratively rewrites Go functions to lower their measured carbon footprint",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newExecDriverCmd())
	return root
}
