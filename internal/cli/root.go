package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "loader",
		Short: "loader - bulk record loads from CSV files",
		Long: `loader maps CSV rows onto records of a remote record store and loads them
in batches, either in-process or as a Temporal workflow. Per record results
are exported as an all view and a failures view.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(
		NewLoadCmd(),
		NewWorkerCmd(),
		NewStartCmd(),
		NewAbortCmd(),
		NewStatusCmd(),
	)

	return rootCmd
}
