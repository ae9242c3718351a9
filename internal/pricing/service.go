package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fare-alerts/internal/forecast"
	"fare-alerts/internal/logging"
	"fare-alerts/internal/policy"
	"fare-alerts/internal/series"
	"fare-alerts/internal/storage"
)

// ErrInvalidRoute reports a missing origin or destination code.
var ErrInvalidRoute = errors.New("pricing: origin and destination are required")

// Options tune how much history feeds each computation. HistoryLimit caps the
// points handed to the forecast engine, AnalysisWindow the points summarised for
// the policy.
type Options struct {
	HistoryLimit   int
	AnalysisWindow int
	Now            func() time.Time
}

// Service is the price-history facade used by the sweep and the CLI.
type Service struct {
	store  storage.PriceHistoryStore
	cache  *series.Cache
	engine *forecast.Engine
	policy *policy.Policy
	logger zerolog.Logger

	historyLimit   int
	analysisWindow int
	now            func() time.Time
}

// New wires the service. store may be nil, in which case AddPrice always fails.
func New(store storage.PriceHistoryStore, cache *series.Cache, engine *forecast.Engine, pol *policy.Policy, opts Options, logger zerolog.Logger) *Service {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = series.DefaultHydrationLimit
	}
	if opts.AnalysisWindow <= 0 {
		opts.AnalysisWindow = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if engine == nil {
		engine = forecast.NewEngine(forecast.WithClock(opts.Now))
	}
	if pol == nil {
		pol = policy.New()
	}
	return &Service{
		store:          store,
		cache:          cache,
		engine:         engine,
		policy:         pol,
		logger:         logging.Component(logger, "pricing"),
		historyLimit:   opts.HistoryLimit,
		analysisWindow: opts.AnalysisWindow,
		now:            opts.Now,
	}
}

func routeFor(origin, destination string) (string, error) {
	if strings.TrimSpace(origin) == "" || strings.TrimSpace(destination) == "" {
		return "", ErrInvalidRoute
	}
	return series.RouteID(origin, destination), nil
}

// AddPrice persists an observation and appends it to the in-memory series.
// It never returns an error: failures are logged and reported as false, and the
// in-memory state is left untouched. Hydration runs only after a successful
// save, so the stored row may arrive through it; Merge keeps it single.
func (s *Service) AddPrice(ctx context.Context, origin, destination string, price decimal.Decimal, travelDate time.Time, carrier string) bool {
	route, err := routeFor(origin, destination)
	if err != nil {
		s.logger.Warn().Err(err).Msg("rejecting price observation")
		return false
	}
	if !price.IsPositive() || travelDate.IsZero() {
		s.logger.Warn().Str("route", route).Str("price", price.String()).Msg("rejecting malformed price observation")
		return false
	}
	if s.store == nil {
		s.logger.Error().Err(storage.ErrNotConfigured).Str("route", route).Msg("price not saved")
		return false
	}

	rec, err := s.store.SavePrice(ctx, storage.PriceObservation{
		Route:      route,
		TravelDate: storage.TruncateDate(travelDate),
		Price:      price,
		Carrier:    strings.TrimSpace(carrier),
		RecordedAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("route", route).
			Str("travel_date", travelDate.Format(storage.DateLayout)).
			Msg("failed to persist price")
		return false
	}

	s.cache.Hydrate(ctx, route, travelDate)
	s.cache.Merge(route, series.PricePoint{
		Timestamp: rec.RecordedAt,
		Price:     rec.Price,
		Date:      storage.TruncateDate(rec.TravelDate),
	})
	return true
}

// PredictPrice hydrates the route and forecasts from its most recent points.
// Errors only surface for invalid input.
func (s *Service) PredictPrice(ctx context.Context, origin, destination string, currentPrice decimal.Decimal, travelDate time.Time) (forecast.Forecast, error) {
	route, err := routeFor(origin, destination)
	if err != nil {
		return forecast.Forecast{}, err
	}
	s.cache.Hydrate(ctx, route, travelDate)
	points := s.cache.Recent(route, s.historyLimit)
	return s.engine.Predict(series.Prices(points), currentPrice, travelDate)
}

// Decide applies the policy using forecast signals only.
func (s *Service) Decide(f forecast.Forecast, currentPrice decimal.Decimal, targetPrice decimal.NullDecimal) policy.Recommendation {
	return s.policy.Decide(policy.Input{
		Forecast:     f,
		CurrentPrice: currentPrice,
		TargetPrice:  targetPrice,
	})
}

// Recommend forecasts and decides in one step, feeding the policy a summary of
// the route's recent history.
func (s *Service) Recommend(ctx context.Context, origin, destination string, currentPrice decimal.Decimal, travelDate time.Time, targetPrice decimal.NullDecimal) (forecast.Forecast, policy.Recommendation, error) {
	f, err := s.PredictPrice(ctx, origin, destination, currentPrice, travelDate)
	if err != nil {
		return forecast.Forecast{}, policy.Recommendation{}, err
	}
	route := series.RouteID(origin, destination)
	window := series.Prices(s.cache.Recent(route, s.analysisWindow))
	rec := s.policy.Decide(policy.Input{
		Forecast:     f,
		CurrentPrice: currentPrice,
		TargetPrice:  targetPrice,
		History:      policy.Summarize(window),
	})
	return f, rec, nil
}

// RouteStatistics summarises a route series. DataPoints is zero when nothing is known.
type RouteStatistics struct {
	Route             string
	DataPoints        int
	AveragePrice      decimal.Decimal
	MinPrice          decimal.Decimal
	MaxPrice          decimal.Decimal
	StandardDeviation float64
	Volatility        float64
	LastUpdated       time.Time
}

// PriceRange renders the min-max span.
func (r RouteStatistics) PriceRange() string {
	if r.DataPoints == 0 {
		return ""
	}
	return fmt.Sprintf("%s - %s", r.MinPrice.StringFixed(0), r.MaxPrice.StringFixed(0))
}

// PriceAt is a single notable observation.
type PriceAt struct {
	Date       time.Time
	Price      decimal.Decimal
	RecordedAt time.Time
}

func (s *Service) hydratedSeries(ctx context.Context, origin, destination string, travelDate time.Time) (string, []series.PricePoint, error) {
	route, err := routeFor(origin, destination)
	if err != nil {
		return "", nil, err
	}
	if !travelDate.IsZero() {
		s.cache.Hydrate(ctx, route, travelDate)
	}
	return route, s.cache.Series(route), nil
}

// RouteStatistics describes the resident series after hydrating (route, travelDate).
func (s *Service) RouteStatistics(ctx context.Context, origin, destination string, travelDate time.Time) (RouteStatistics, error) {
	route, points, err := s.hydratedSeries(ctx, origin, destination, travelDate)
	if err != nil {
		return RouteStatistics{}, err
	}
	stats := RouteStatistics{Route: route, DataPoints: len(points)}
	if len(points) == 0 {
		return stats, nil
	}
	prices := series.Prices(points)
	minIdx, maxIdx := forecast.MinMax(prices)
	stats.AveragePrice = forecast.Mean(prices)
	stats.MinPrice = prices[minIdx]
	stats.MaxPrice = prices[maxIdx]
	stats.StandardDeviation = forecast.StdDev(prices)
	stats.Volatility = forecast.Volatility(prices) * 100
	stats.LastUpdated = points[len(points)-1].Timestamp
	return stats, nil
}

// CheapestTime returns the lowest observation; ties resolve to the latest.
func (s *Service) CheapestTime(ctx context.Context, origin, destination string, travelDate time.Time) (PriceAt, bool, error) {
	return s.extreme(ctx, origin, destination, travelDate, true)
}

// ExpensiveTime returns the highest observation; ties resolve to the latest.
func (s *Service) ExpensiveTime(ctx context.Context, origin, destination string, travelDate time.Time) (PriceAt, bool, error) {
	return s.extreme(ctx, origin, destination, travelDate, false)
}

func (s *Service) extreme(ctx context.Context, origin, destination string, travelDate time.Time, cheapest bool) (PriceAt, bool, error) {
	_, points, err := s.hydratedSeries(ctx, origin, destination, travelDate)
	if err != nil || len(points) == 0 {
		return PriceAt{}, false, err
	}
	minIdx, maxIdx := forecast.MinMax(series.Prices(points))
	idx := maxIdx
	if cheapest {
		idx = minIdx
	}
	p := points[idx]
	return PriceAt{Date: p.Date, Price: p.Price, RecordedAt: p.Timestamp}, true, nil
}

// Series exposes the resident points of a route after hydration, oldest first.
func (s *Service) Series(ctx context.Context, origin, destination string, travelDate time.Time) ([]series.PricePoint, error) {
	_, points, err := s.hydratedSeries(ctx, origin, destination, travelDate)
	return points, err
}
