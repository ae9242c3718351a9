package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fare-alerts/internal/app"
)

var (
	simulateRoute  routeFlags
	simulatePrice  string
	simulateTarget string
	simulatePhone  string
	simulateName   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Run one alert check against a fixed fare and dispatch the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		route, err := simulateRoute.options()
		if err != nil {
			return err
		}
		price, err := parsePrice("price", simulatePrice)
		if err != nil {
			return err
		}
		target, err := parseOptionalPrice("target", simulateTarget)
		if err != nil {
			return err
		}
		if simulatePhone == "" {
			return errors.New("--phone must be provided")
		}

		result, err := getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			RouteOptions: route,
			Price:        price,
			Target:       target,
			Phone:        simulatePhone,
			Name:         simulateName,
		})
		if err != nil {
			return err
		}
		if result.Notified == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no alert: the recommendation was not actionable")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "alert dispatched")
		return nil
	},
}

func init() {
	simulateRoute.register(simulateCmd)
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "", "Fare returned by the simulated quote")
	simulateCmd.Flags().StringVar(&simulateTarget, "target", "", "Optional target fare")
	simulateCmd.Flags().StringVar(&simulatePhone, "phone", "", "Recipient phone number")
	simulateCmd.Flags().StringVar(&simulateName, "name", "", "Recipient name")
}
