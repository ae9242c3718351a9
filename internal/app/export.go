package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"fare-alerts/internal/forecast"
	"fare-alerts/internal/series"
	"fare-alerts/internal/storage"
)

// Export renders a route series as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if err := opts.validate(); err != nil {
		return err
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	// hydrate enough history to fill the export
	cache := series.NewCache(store, opts.MaxPoints, a.Logger)
	route := series.RouteID(opts.Origin, opts.Destination)
	cache.Hydrate(ctx, route, opts.TravelDate)
	points := cache.Series(route)
	if len(points) == 0 {
		a.Logger.Info().Str("route", route).Msg("no observations found for export")
		return nil
	}

	var predicted *forecast.Forecast
	if opts.Price.Valid {
		f, err := forecast.NewEngine().Predict(
			series.Prices(lastN(points, a.Config.Forecast.HistoryLimit)), opts.Price.Decimal, opts.TravelDate)
		if err != nil {
			return err
		}
		predicted = &f
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting series")

	if opts.CSVPath != "" {
		if err := writeSeriesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSeriesPNG(opts.PNGPath, route, downsampled, predicted); err != nil {
			return err
		}
	}

	return nil
}

func lastN(points []series.PricePoint, n int) []series.PricePoint {
	if n <= 0 || len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}

func downsamplePoints(points []series.PricePoint, max int) []series.PricePoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]series.PricePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeSeriesCSV(path string, points []series.PricePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"recorded_at", "travel_date", "price"}); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			p.Timestamp.UTC().Format(time.RFC3339),
			p.Date.Format(storage.DateLayout),
			p.Price.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSeriesPNG(path, route string, points []series.PricePoint, predicted *forecast.Forecast) error {
	if len(points) < 2 && predicted == nil {
		return errors.New("need at least two observations to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Timestamp
		y[i] = p.Price.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  route,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Observed",
				XValues: x,
				YValues: y,
			},
		},
	}

	if predicted != nil {
		last := points[len(points)-1]
		next := last.Timestamp.Add(nextStep(points))
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    "Forecast",
			XValues: []time.Time{last.Timestamp, next},
			YValues: []float64{last.Price.InexactFloat64(), predicted.PredictedPrice.InexactFloat64()},
			Style: chart.Style{
				StrokeDashArray: []float64{5, 5},
			},
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// nextStep is the mean spacing between observations, or a day for a single point.
func nextStep(points []series.PricePoint) time.Duration {
	if len(points) < 2 {
		return 24 * time.Hour
	}
	span := points[len(points)-1].Timestamp.Sub(points[0].Timestamp)
	step := span / time.Duration(len(points)-1)
	if step <= 0 {
		return 24 * time.Hour
	}
	return step
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
