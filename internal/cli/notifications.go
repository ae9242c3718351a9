package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fare-alerts/internal/app"
)

var (
	notificationsLimit int
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Display recently dispatched alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if notificationsLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit: notificationsLimit,
		}

		return getApp().ShowNotifications(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	notificationsCmd.Flags().IntVar(&notificationsLimit, "limit", 20, "Number of notifications to display")
}
