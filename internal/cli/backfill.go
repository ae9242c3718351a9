package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fare-alerts/internal/app"
)

var (
	backfillCSV    string
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Import historical fares from a CSV file",
	Long: "Import historical fares from a CSV file with the header\n" +
		"origin,destination,travel_date,price[,carrier][,recorded_at].",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillCSV == "" {
			return fmt.Errorf("--csv must be provided")
		}

		opts := app.BackfillOptions{
			CSVPath: backfillCSV,
			DryRun:  backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillCSV, "csv", "", "Path to the CSV file to import")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Validate the file without writing to storage")
}
