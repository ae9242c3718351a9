package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fare-alerts/internal/alerting"
	"fare-alerts/internal/config"
	"fare-alerts/internal/forecast"
	"fare-alerts/internal/logging"
	"fare-alerts/internal/policy"
	"fare-alerts/internal/pricing"
	"fare-alerts/internal/quote"
	"fare-alerts/internal/scheduler"
	"fare-alerts/internal/series"
	"fare-alerts/internal/service"
	"fare-alerts/internal/storage"
	"fare-alerts/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

func (a *App) openStore(ctx context.Context) (storage.Backend, func(), error) {
	db := a.Config.Database
	if strings.EqualFold(db.Driver, config.DriverPostgres) && db.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, db)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close store")
		}
	}
	return store, closer, nil
}

func (a *App) requireStore(ctx context.Context) (storage.Backend, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database.dsn not configured; set it or use database.driver=sqlite")
	}
	return store, closeStore, nil
}

func (a *App) newQuoteFetcher() quote.Fetcher {
	q := a.Config.Quotes
	return quote.NewAmadeus(quote.AmadeusOptions{
		BaseURL:      q.BaseURL,
		ClientID:     q.ClientID,
		ClientSecret: q.ClientSecret,
		Currency:     q.Currency,
		Adults:       q.Adults,
		MaxOffers:    q.MaxOffers,
		Timeout:      q.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	var notifiers alerting.MultiNotifier
	for _, channel := range a.Config.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(channel)) {
		case "whatsapp":
			cfg := a.Config.Alerting.WhatsApp
			if !cfg.Enabled {
				a.Logger.Warn().Msg("whatsapp channel listed but alerting.whatsapp.enabled is false; skipping")
				continue
			}
			notifiers = append(notifiers, alerting.NewWhatsAppNotifier(cfg.InstanceID, cfg.Token, cfg.APIBase, 10*time.Second, a.Logger))
		case "log":
			notifiers = append(notifiers, alerting.NewLogNotifier(a.Logger))
		case "":
		default:
			a.Logger.Warn().Str("channel", channel).Msg("unknown alert channel ignored")
		}
	}
	switch len(notifiers) {
	case 0:
		return nil
	case 1:
		return notifiers[0]
	default:
		return notifiers
	}
}

func (a *App) newCooldown(ctx context.Context) (alerting.Cooldown, func()) {
	if a.Config.Redis.Addr == "" {
		return alerting.NewMemoryCooldown(nil), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.Logger.Warn().Err(err).Str("addr", a.Config.Redis.Addr).Msg("redis unavailable; using in-process cooldown")
		_ = client.Close()
		return alerting.NewMemoryCooldown(nil), func() {}
	}
	return alerting.NewRedisCooldown(client), func() { _ = client.Close() }
}

// newPricing wires the series cache, forecast engine and policy over store.
func (a *App) newPricing(store storage.PriceHistoryStore) *pricing.Service {
	var source series.Source
	if store != nil {
		source = store
	}
	cache := series.NewCache(source, a.Config.Forecast.HistoryLimit, a.Logger)
	return pricing.New(store, cache, forecast.NewEngine(), policy.New(policy.WithCurrency(a.Config.Quotes.Currency)),
		pricing.Options{
			HistoryLimit:   a.Config.Forecast.HistoryLimit,
			AnalysisWindow: a.Config.Forecast.AnalysisWindow,
		}, a.Logger)
}

func (a *App) sweepOptions() service.Options {
	return service.Options{
		RequestDelay:    a.Config.Scheduler.RequestDelay,
		AlertsEnabled:   a.Config.Alerting.Enabled,
		Cooldown:        a.Config.Alerting.Cooldown,
		Channels:        a.Config.Alerting.Channels,
		Currency:        a.Config.Quotes.Currency,
		AdvisoryLockKey: a.Config.Scheduler.AdvisoryLockKey,
	}
}

func (a *App) newSweep(ctx context.Context, store storage.Backend, sched *scheduler.Scheduler) (*service.Service, func()) {
	cooldown, closeCooldown := a.newCooldown(ctx)
	svc := service.New(service.Deps{
		Scheduler:     sched,
		Subscriptions: store,
		Notifications: store,
		Quotes:        a.newQuoteFetcher(),
		Pricing:       a.newPricing(store),
		Notifier:      a.newNotifier(),
		Cooldown:      cooldown,
	}, a.sweepOptions(), a.Logger)
	return svc, closeCooldown
}

// Run executes the long-running cron-driven sweep service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	loc, err := a.Config.Scheduler.Location()
	if err != nil {
		return err
	}
	sched, err := scheduler.New(scheduler.Options{
		Spec:       a.Config.Scheduler.Cron,
		Location:   loc,
		RunOnStart: a.Config.Scheduler.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	svc, closeCooldown := a.newSweep(ctx, store, sched)
	defer closeCooldown()

	a.Logger.Info().Str("version", version.String()).Msg("starting fare watch service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("fare watch service stopped")
	return nil
}

// Sweep runs a single pass over the active subscriptions.
func (a *App) Sweep(ctx context.Context) (service.SweepResult, error) {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return service.SweepResult{}, err
	}
	defer closeStore()

	svc, closeCooldown := a.newSweep(ctx, store, nil)
	defer closeCooldown()
	return svc.Sweep(ctx, time.Now())
}

// RouteOptions identify a route and travel date.
type RouteOptions struct {
	Origin      string
	Destination string
	TravelDate  time.Time
}

func (o RouteOptions) validate() error {
	if strings.TrimSpace(o.Origin) == "" || strings.TrimSpace(o.Destination) == "" {
		return errors.New("--origin and --destination are required")
	}
	if o.TravelDate.IsZero() {
		return errors.New("--date is required")
	}
	return nil
}

// PredictOptions configure the predict command.
type PredictOptions struct {
	RouteOptions
	Price  decimal.Decimal
	Target decimal.NullDecimal
}

// AddPriceOptions configure the add-price command.
type AddPriceOptions struct {
	RouteOptions
	Price   decimal.Decimal
	Carrier string
}

// ExportOptions hold parameters for exporting a route series.
type ExportOptions struct {
	RouteOptions
	PNGPath   string
	CSVPath   string
	MaxPoints int
	// Price, when set, adds a forecast point to the chart.
	Price decimal.NullDecimal
}

// ShowOptions configure the notifications command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure a CSV price-history import.
type BackfillOptions struct {
	CSVPath string
	DryRun  bool
}

func parseDate(v string) (time.Time, error) {
	t, err := time.Parse(storage.DateLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", v, err)
	}
	return t, nil
}
