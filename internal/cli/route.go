package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"fare-alerts/internal/app"
	"fare-alerts/internal/storage"
)

// routeFlags are shared by every command that addresses a single route.
type routeFlags struct {
	origin      string
	destination string
	date        string
}

func (f *routeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.origin, "origin", "", "Origin airport code, e.g. RUH")
	cmd.Flags().StringVar(&f.destination, "destination", "", "Destination airport code, e.g. JED")
	cmd.Flags().StringVar(&f.date, "date", "", "Travel date (YYYY-MM-DD)")
}

func (f *routeFlags) options() (app.RouteOptions, error) {
	if strings.TrimSpace(f.origin) == "" || strings.TrimSpace(f.destination) == "" {
		return app.RouteOptions{}, fmt.Errorf("--origin and --destination must be provided")
	}
	if f.date == "" {
		return app.RouteOptions{}, fmt.Errorf("--date must be provided")
	}
	date, err := time.Parse(storage.DateLayout, f.date)
	if err != nil {
		return app.RouteOptions{}, fmt.Errorf("invalid --date value: %w", err)
	}
	return app.RouteOptions{
		Origin:      strings.ToUpper(strings.TrimSpace(f.origin)),
		Destination: strings.ToUpper(strings.TrimSpace(f.destination)),
		TravelDate:  date,
	}, nil
}

func parsePrice(flag, v string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid --%s value: %w", flag, err)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("--%s must be greater than zero", flag)
	}
	return price, nil
}

func parseOptionalPrice(flag, v string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(v) == "" {
		return decimal.NullDecimal{}, nil
	}
	price, err := parsePrice(flag, v)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(price), nil
}
