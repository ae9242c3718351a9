package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled price-check service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Check every active alert once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := getApp().Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d checked, %d succeeded, %d failed, %d notified\n",
			result.RunID, result.Total, result.Succeeded, result.Failed, result.Notified)
		return nil
	},
}
