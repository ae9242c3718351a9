package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"fare-alerts/internal/storage"
)

// ShowNotifications prints the most recent dispatched notifications.
func (a *App) ShowNotifications(ctx context.Context, out io.Writer, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListRecentNotifications(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "no notifications found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tAlert\tRoute\tTravel date\tPrice\tAction\tUrgency\tChannels")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.SubscriptionID,
			rec.Route,
			rec.TravelDate.Format(storage.DateLayout),
			formatDecimal(rec.Price, 2),
			rec.Action,
			rec.Urgency,
			strings.Join(rec.Channels, ","),
		)
	}

	return writer.Flush()
}
