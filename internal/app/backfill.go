package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fare-alerts/internal/series"
	"fare-alerts/internal/storage"
)

// Backfill imports historical observations from a CSV file with the header
// origin,destination,travel_date,price[,carrier][,recorded_at].
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	file, err := os.Open(opts.CSVPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", opts.CSVPath, err)
	}
	defer file.Close()

	observations, err := readObservations(file, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		a.Logger.Info().Msg("no rows to backfill")
		return nil
	}

	if opts.DryRun {
		a.Logger.Warn().Int("rows", len(observations)).Msg("backfill dry-run: nothing written")
		return nil
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	saved, failed := 0, 0
	for _, obs := range observations {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := store.SavePrice(ctx, obs); err != nil {
			failed++
			a.Logger.Error().Err(err).Str("route", obs.Route).Msg("backfill row failed")
			continue
		}
		saved++
	}

	a.Logger.Info().Int("saved", saved).Int("failed", failed).Msg("backfill finished")
	if failed > 0 {
		return errors.New("some rows failed to backfill; check the logs")
	}
	return nil
}

func readObservations(r io.Reader, now time.Time) ([]storage.PriceObservation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"origin", "destination", "travel_date", "price"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv header missing %q", required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var out []storage.PriceObservation
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		origin, destination := field(row, "origin"), field(row, "destination")
		if origin == "" || destination == "" {
			return nil, fmt.Errorf("line %d: origin and destination required", line)
		}
		travelDate, err := parseDate(field(row, "travel_date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		price, err := decimal.NewFromString(field(row, "price"))
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("line %d: invalid price %q", line, field(row, "price"))
		}

		recordedAt := now
		if raw := field(row, "recorded_at"); raw != "" {
			recordedAt, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid recorded_at: %w", line, err)
			}
		}

		out = append(out, storage.PriceObservation{
			Route:      series.RouteID(origin, destination),
			TravelDate: travelDate,
			Price:      price,
			Carrier:    field(row, "carrier"),
			RecordedAt: recordedAt.UTC(),
		})
	}
	return out, nil
}
