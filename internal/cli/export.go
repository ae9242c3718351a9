package cli

import (
	"github.com/spf13/cobra"

	"fare-alerts/internal/app"
)

var (
	exportRoute     routeFlags
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
	exportPrice     string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a route's price series as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		route, err := exportRoute.options()
		if err != nil {
			return err
		}
		price, err := parseOptionalPrice("price", exportPrice)
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			RouteOptions: route,
			PNGPath:      exportPNGPath,
			CSVPath:      exportCSVPath,
			MaxPoints:    exportMaxPoints,
			Price:        price,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportRoute.register(exportCmd)
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
	exportCmd.Flags().StringVar(&exportPrice, "price", "", "Current fare; adds a forecast segment to the chart")
}
