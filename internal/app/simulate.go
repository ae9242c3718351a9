package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"fare-alerts/internal/quote"
	"fare-alerts/internal/service"
	"fare-alerts/internal/storage"
)

// SimulateOptions describe a synthetic subscription checked against a fixed price.
type SimulateOptions struct {
	RouteOptions
	Price  decimal.Decimal
	Target decimal.NullDecimal
	Phone  string
	Name   string
}

// SimulateAlert runs the sweep pipeline for one synthetic subscription with a
// fixed quote, dispatching through the configured channels. Nothing is
// persisted; history is read from the database when one is configured.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) (service.SweepResult, error) {
	if !a.Config.Alerting.Enabled {
		return service.SweepResult{}, errors.New("alerting is disabled")
	}
	if err := opts.validate(); err != nil {
		return service.SweepResult{}, err
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return service.SweepResult{}, errors.New("no alert channel configured")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return service.SweepResult{}, err
	}
	if closeStore != nil {
		defer closeStore()
	}
	var history storage.PriceHistoryStore
	if store != nil {
		history = readOnlyHistory{store}
	}

	sub := storage.Subscription{
		ID:          0,
		UserName:    opts.Name,
		Phone:       opts.Phone,
		Origin:      opts.Origin,
		Destination: opts.Destination,
		TravelDate:  opts.TravelDate,
		TargetPrice: opts.Target,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}

	svc := service.New(service.Deps{
		Subscriptions: staticSubscriptions{sub},
		Quotes:        staticQuote{price: opts.Price, currency: a.Config.Quotes.Currency},
		Pricing:       a.newPricing(history),
		Notifier:      notifier,
	}, service.Options{
		AlertsEnabled: true,
		Channels:      a.Config.Alerting.Channels,
		Currency:      a.Config.Quotes.Currency,
	}, a.Logger)

	return svc.Sweep(ctx, time.Now())
}

type staticSubscriptions []storage.Subscription

func (s staticSubscriptions) ListActiveSubscriptions(context.Context, time.Time) ([]storage.Subscription, error) {
	return s, nil
}

type staticQuote struct {
	price    decimal.Decimal
	currency string
}

func (s staticQuote) FetchQuote(context.Context, quote.Request) (quote.Quote, error) {
	return quote.Quote{Price: s.price, Currency: s.currency, Carrier: "simulated"}, nil
}

// readOnlyHistory lets the simulated price reach the in-memory series without
// being written to the database.
type readOnlyHistory struct {
	storage.PriceHistoryStore
}

func (r readOnlyHistory) SavePrice(_ context.Context, obs storage.PriceObservation) (storage.PriceRecord, error) {
	return storage.PriceRecord{
		Route:      obs.Route,
		TravelDate: obs.TravelDate,
		Price:      obs.Price,
		RecordedAt: obs.RecordedAt,
	}, nil
}

var (
	_ storage.SubscriptionStore = staticSubscriptions(nil)
	_ quote.Fetcher             = staticQuote{}
)
