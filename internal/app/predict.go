package app

import (
	"context"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"fare-alerts/internal/forecast"
	"fare-alerts/internal/policy"
	"fare-alerts/internal/storage"
)

// Predict forecasts a route and prints the recommendation. Without a database
// the forecast falls back to the sparse-data mode.
func (a *App) Predict(ctx context.Context, out io.Writer, opts PredictOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}
	var history storage.PriceHistoryStore
	if store != nil {
		history = store
	} else {
		a.Logger.Warn().Msg("database not configured; forecasting without history")
	}

	svc := a.newPricing(history)
	f, rec, err := svc.Recommend(ctx, opts.Origin, opts.Destination, opts.Price, opts.TravelDate, opts.Target)
	if err != nil {
		return err
	}
	return writeForecast(out, f, rec, a.Config.Quotes.Currency)
}

func writeForecast(out io.Writer, f forecast.Forecast, rec policy.Recommendation, currency string) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Current price\t%s %s\n", f.CurrentPrice.StringFixed(0), currency)
	fmt.Fprintf(w, "Predicted price\t%s %s\n", f.PredictedPrice.Round(0).StringFixed(0), currency)
	fmt.Fprintf(w, "Change\t%s (%s%%)\n", f.PriceChange.StringFixed(0), f.PriceChangePercent.StringFixed(1))
	fmt.Fprintf(w, "Confidence\t%.0f%%\n", math.Round(f.Confidence))
	fmt.Fprintf(w, "Risk\t%s\n", f.RiskLevel)
	fmt.Fprintf(w, "Days until departure\t%d\n", f.DaysUntilDeparture)
	fmt.Fprintf(w, "Factors\ttrend %.2f, seasonality %.2f, demand %.2f\n", f.TrendFactor, f.SeasonalityFactor, f.DemandFactor)
	dataNote := ""
	if f.Sparse {
		dataNote = " (insufficient history)"
	}
	fmt.Fprintf(w, "Data points\t%d%s\n", f.DataPoints, dataNote)
	fmt.Fprintf(w, "Buy window\t%s\n", f.BuyWindow)
	fmt.Fprintf(w, "Recommendation\t%s (%s)\n", rec.Action, rec.Urgency)
	if rec.Message != "" {
		fmt.Fprintf(w, "\t%s\n", rec.Message)
	}
	return w.Flush()
}

// Stats prints route statistics and the cheapest/most expensive observations.
func (a *App) Stats(ctx context.Context, out io.Writer, opts RouteOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := a.newPricing(store)
	stats, err := svc.RouteStatistics(ctx, opts.Origin, opts.Destination, opts.TravelDate)
	if err != nil {
		return err
	}
	if stats.DataPoints == 0 {
		fmt.Fprintf(out, "no data for %s on %s\n", stats.Route, opts.TravelDate.Format(storage.DateLayout))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Route\t%s\n", stats.Route)
	fmt.Fprintf(w, "Data points\t%d\n", stats.DataPoints)
	fmt.Fprintf(w, "Average\t%s\n", stats.AveragePrice.Round(0).StringFixed(0))
	fmt.Fprintf(w, "Range\t%s\n", stats.PriceRange())
	fmt.Fprintf(w, "Std deviation\t%.0f\n", stats.StandardDeviation)
	fmt.Fprintf(w, "Volatility\t%.0f%%\n", stats.Volatility)
	fmt.Fprintf(w, "Last updated\t%s\n", stats.LastUpdated.UTC().Format("2006-01-02 15:04 MST"))

	if cheap, ok, err := svc.CheapestTime(ctx, opts.Origin, opts.Destination, opts.TravelDate); err == nil && ok {
		fmt.Fprintf(w, "Cheapest\t%s on %s\n", cheap.Price.StringFixed(0), cheap.RecordedAt.UTC().Format(storage.DateLayout))
	}
	if dear, ok, err := svc.ExpensiveTime(ctx, opts.Origin, opts.Destination, opts.TravelDate); err == nil && ok {
		fmt.Fprintf(w, "Most expensive\t%s on %s\n", dear.Price.StringFixed(0), dear.RecordedAt.UTC().Format(storage.DateLayout))
	}
	return w.Flush()
}

// AddPrice records a manual observation.
func (a *App) AddPrice(ctx context.Context, opts AddPriceOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if !a.newPricing(store).AddPrice(ctx, opts.Origin, opts.Destination, opts.Price, opts.TravelDate, opts.Carrier) {
		return fmt.Errorf("price for %s-%s was not saved; check the logs", opts.Origin, opts.Destination)
	}
	a.Logger.Info().
		Str("origin", opts.Origin).
		Str("destination", opts.Destination).
		Str("price", opts.Price.String()).
		Msg("price recorded")
	return nil
}
