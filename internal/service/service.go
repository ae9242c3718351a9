package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fare-alerts/internal/alerting"
	"fare-alerts/internal/forecast"
	"fare-alerts/internal/logging"
	"fare-alerts/internal/policy"
	"fare-alerts/internal/quote"
	"fare-alerts/internal/scheduler"
	"fare-alerts/internal/storage"
)

// Pricing is the slice of the pricing service a sweep needs.
type Pricing interface {
	AddPrice(ctx context.Context, origin, destination string, price decimal.Decimal, travelDate time.Time, carrier string) bool
	Recommend(ctx context.Context, origin, destination string, currentPrice decimal.Decimal, travelDate time.Time, targetPrice decimal.NullDecimal) (forecast.Forecast, policy.Recommendation, error)
}

// Options tune sweep behaviour.
type Options struct {
	RequestDelay    time.Duration
	AlertsEnabled   bool
	Cooldown        time.Duration
	Channels        []string
	Currency        string
	AdvisoryLockKey int64
}

// SweepResult summarises one pass over the active subscriptions.
type SweepResult struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Notified  int
}

// Service orchestrates quoting, persistence, forecasting, and alerting.
type Service struct {
	scheduler     *scheduler.Scheduler
	subscriptions storage.SubscriptionStore
	notifications storage.NotificationStore
	quotes        quote.Fetcher
	pricing       Pricing
	notifier      alerting.Notifier
	cooldown      alerting.Cooldown
	locker        storage.AdvisoryLocker
	logger        zerolog.Logger

	opts Options
	now  func() time.Time
}

// Deps bundles collaborators. Notifications, Notifier, Cooldown and Scheduler are optional.
type Deps struct {
	Scheduler     *scheduler.Scheduler
	Subscriptions storage.SubscriptionStore
	Notifications storage.NotificationStore
	Quotes        quote.Fetcher
	Pricing       Pricing
	Notifier      alerting.Notifier
	Cooldown      alerting.Cooldown
}

// New constructs the sweep service.
func New(deps Deps, opts Options, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := deps.Subscriptions.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:     deps.Scheduler,
		subscriptions: deps.Subscriptions,
		notifications: deps.Notifications,
		quotes:        deps.Quotes,
		pricing:       deps.Pricing,
		notifier:      deps.Notifier,
		cooldown:      deps.Cooldown,
		locker:        locker,
		logger:        logging.Component(logger, "sweep"),
		opts:          opts,
		now:           time.Now,
	}
}

// Run begins the scheduled sweep loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, at time.Time) error {
		_, err := s.Sweep(ctx, at)
		return err
	})
}

// Sweep processes every active subscription sequentially. Per-subscription
// failures are logged and counted; only setup failures are returned.
func (s *Service) Sweep(ctx context.Context, at time.Time) (SweepResult, error) {
	result := SweepResult{RunID: uuid.NewString()}
	logger := s.logger.With().Str("run_id", result.RunID).Logger()

	if s.subscriptions == nil {
		return result, storage.ErrNotConfigured
	}
	if s.quotes == nil || s.pricing == nil {
		return result, fmt.Errorf("sweep requires a quote fetcher and pricing service")
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return result, err
	}
	if !proceed {
		logger.Info().Msg("skip sweep because advisory lock held elsewhere")
		return result, nil
	}
	if unlock != nil {
		defer unlock()
	}

	subs, err := s.subscriptions.ListActiveSubscriptions(ctx, storage.TruncateDate(at))
	if err != nil {
		return result, fmt.Errorf("list subscriptions: %w", err)
	}
	result.Total = len(subs)
	logger.Info().Int("subscriptions", len(subs)).Time("at", at).Msg("sweep started")

	for i, sub := range subs {
		if i > 0 && s.opts.RequestDelay > 0 {
			if err := sleep(ctx, s.opts.RequestDelay); err != nil {
				return result, err
			}
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		notified, err := s.processSubscription(ctx, logger, sub)
		if err != nil {
			result.Failed++
			level := zerolog.ErrorLevel
			if errors.Is(err, quote.ErrNoOffers) {
				level = zerolog.WarnLevel
			}
			logger.WithLevel(level).Err(err).
				Int64("subscription_id", sub.ID).
				Str("route", sub.Origin+"-"+sub.Destination).
				Msg("subscription check failed")
			continue
		}
		result.Succeeded++
		if notified {
			result.Notified++
		}
	}

	logger.Info().
		Int("total", result.Total).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("notified", result.Notified).
		Msg("sweep finished")
	return result, nil
}

func (s *Service) processSubscription(ctx context.Context, logger zerolog.Logger, sub storage.Subscription) (bool, error) {
	q, err := s.quotes.FetchQuote(ctx, quote.Request{
		Origin:        sub.Origin,
		Destination:   sub.Destination,
		DepartureDate: sub.TravelDate,
	})
	if err != nil {
		return false, fmt.Errorf("fetch quote: %w", err)
	}

	if !s.pricing.AddPrice(ctx, sub.Origin, sub.Destination, q.Price, sub.TravelDate, q.Carrier) {
		logger.Warn().Int64("subscription_id", sub.ID).Msg("price not persisted; forecasting from resident history")
	}

	f, rec, err := s.pricing.Recommend(ctx, sub.Origin, sub.Destination, q.Price, sub.TravelDate, sub.TargetPrice)
	if err != nil {
		return false, fmt.Errorf("recommend: %w", err)
	}

	logger.Info().
		Int64("subscription_id", sub.ID).
		Str("price", q.Price.String()).
		Str("predicted", f.PredictedPrice.StringFixed(2)).
		Float64("confidence", math.Round(f.Confidence*100)/100).
		Str("risk", string(f.RiskLevel)).
		Str("action", string(rec.Action)).
		Str("rule", rec.Rule).
		Msg("subscription evaluated")

	if !s.opts.AlertsEnabled || s.notifier == nil || !rec.Actionable() {
		return false, nil
	}

	if s.cooldown != nil {
		ok, err := s.cooldown.Acquire(ctx, alerting.CooldownKey(sub.ID, string(rec.Action)), s.opts.Cooldown)
		if err != nil {
			logger.Warn().Err(err).Int64("subscription_id", sub.ID).Msg("cooldown check failed; notifying anyway")
		} else if !ok {
			logger.Debug().Int64("subscription_id", sub.ID).Str("action", string(rec.Action)).Msg("notification suppressed by cooldown")
			return false, nil
		}
	}

	currency := q.Currency
	if currency == "" {
		currency = s.opts.Currency
	}
	note := alerting.Notification{
		SubscriptionID: sub.ID,
		UserName:       sub.UserName,
		Phone:          sub.Phone,
		Origin:         sub.Origin,
		Destination:    sub.Destination,
		TravelDate:     sub.TravelDate,
		Price:          q.Price,
		Currency:       currency,
		Carrier:        q.Carrier,
		Action:         string(rec.Action),
		Urgency:        string(rec.Urgency),
		Message:        rec.Message,
		Channels:       s.opts.Channels,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		return false, fmt.Errorf("dispatch notification: %w", err)
	}

	if s.notifications != nil {
		record := storage.NotificationRecord{
			SubscriptionID: sub.ID,
			Route:          sub.Origin + "-" + sub.Destination,
			TravelDate:     storage.TruncateDate(sub.TravelDate),
			Price:          q.Price,
			Action:         string(rec.Action),
			Urgency:        string(rec.Urgency),
			Channels:       s.opts.Channels,
			CreatedAt:      s.now().UTC(),
		}
		if _, err := s.notifications.InsertNotification(ctx, record); err != nil {
			logger.Error().Err(err).Int64("subscription_id", sub.ID).Msg("failed to persist notification record")
		}
	}
	return true, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.AdvisoryLockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
