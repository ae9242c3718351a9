package cli

import (
	"github.com/spf13/cobra"

	"fare-alerts/internal/app"
)

var (
	predictRoute  routeFlags
	predictPrice  string
	predictTarget string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Forecast a fare and print the booking recommendation",
	RunE: func(cmd *cobra.Command, args []string) error {
		route, err := predictRoute.options()
		if err != nil {
			return err
		}
		price, err := parsePrice("price", predictPrice)
		if err != nil {
			return err
		}
		target, err := parseOptionalPrice("target", predictTarget)
		if err != nil {
			return err
		}

		return getApp().Predict(cmd.Context(), cmd.OutOrStdout(), app.PredictOptions{
			RouteOptions: route,
			Price:        price,
			Target:       target,
		})
	},
}

var statsRoute routeFlags

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the recorded price history of a route",
	RunE: func(cmd *cobra.Command, args []string) error {
		route, err := statsRoute.options()
		if err != nil {
			return err
		}
		return getApp().Stats(cmd.Context(), cmd.OutOrStdout(), route)
	},
}

var (
	addPriceRoute   routeFlags
	addPriceValue   string
	addPriceCarrier string
)

var addPriceCmd = &cobra.Command{
	Use:   "add-price",
	Short: "Record a price observation by hand",
	RunE: func(cmd *cobra.Command, args []string) error {
		route, err := addPriceRoute.options()
		if err != nil {
			return err
		}
		price, err := parsePrice("price", addPriceValue)
		if err != nil {
			return err
		}
		return getApp().AddPrice(cmd.Context(), app.AddPriceOptions{
			RouteOptions: route,
			Price:        price,
			Carrier:      addPriceCarrier,
		})
	},
}

func init() {
	predictRoute.register(predictCmd)
	predictCmd.Flags().StringVar(&predictPrice, "price", "", "Current fare")
	predictCmd.Flags().StringVar(&predictTarget, "target", "", "Optional target fare")

	statsRoute.register(statsCmd)

	addPriceRoute.register(addPriceCmd)
	addPriceCmd.Flags().StringVar(&addPriceValue, "price", "", "Observed fare")
	addPriceCmd.Flags().StringVar(&addPriceCarrier, "carrier", "", "Carrier code")
}
