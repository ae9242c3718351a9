package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MinDataPoints is the smallest history the regression path accepts.
const MinDataPoints = 3

const (
	sparseConfidence = 40
	trendThreshold   = 0.3
	trendWeight      = 0.1
)

var (
	// ErrInvalidInput reports a malformed forecast request.
	ErrInvalidInput = errors.New("forecast: invalid input")

	floorRatio = decimal.NewFromFloat(0.8)
	hundred    = decimal.NewFromInt(100)
)

// RiskLevel grades how exposed a buyer is to the predicted move.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Forecast is the engine output for a single (series, price, travel date) input.
// Sparse marks the fallback used when history is shorter than MinDataPoints.
type Forecast struct {
	CurrentPrice       decimal.Decimal
	PredictedPrice     decimal.Decimal
	PriceChange        decimal.Decimal
	PriceChangePercent decimal.Decimal
	TrendFactor        float64
	SeasonalityFactor  float64
	DemandFactor       float64
	Confidence         float64
	RiskLevel          RiskLevel
	DaysUntilDeparture int
	DataPoints         int
	Sparse             bool
	BuyWindow          BuyWindow
}

// ChangePercent returns PriceChangePercent as a float for threshold checks.
func (f Forecast) ChangePercent() float64 {
	return f.PriceChangePercent.InexactFloat64()
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to count days until departure.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine computes forecasts. It holds no per-route state.
type Engine struct {
	now func() time.Time
}

// NewEngine constructs an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Predict forecasts the next price for a series ordered oldest to newest.
// It only fails for a non-positive current price or a zero travel date.
func (e *Engine) Predict(prices []decimal.Decimal, currentPrice decimal.Decimal, travelDate time.Time) (Forecast, error) {
	if !currentPrice.IsPositive() {
		return Forecast{}, fmt.Errorf("%w: current price must be positive, got %s", ErrInvalidInput, currentPrice)
	}
	if travelDate.IsZero() {
		return Forecast{}, fmt.Errorf("%w: travel date is required", ErrInvalidInput)
	}

	days := DaysUntil(travelDate, e.now())
	seasonality := SeasonalityFactor(travelDate)
	demand := DemandFactor(days)
	factors := decimal.NewFromFloat(seasonality).Mul(decimal.NewFromFloat(demand))

	f := Forecast{
		CurrentPrice:       currentPrice,
		SeasonalityFactor:  seasonality,
		DemandFactor:       demand,
		DaysUntilDeparture: days,
		DataPoints:         len(prices),
	}

	if len(prices) < MinDataPoints {
		f.Sparse = true
		f.PredictedPrice = currentPrice.Mul(factors)
		f.Confidence = sparseConfidence
		f.RiskLevel = RiskMedium
		f.fillChange()
		f.BuyWindow = BuyWindow{Hint: HintUncertain}
		return f, nil
	}

	f.TrendFactor = Trend(prices)

	last := prices[len(prices)-1]
	base := NextValue(prices, floorRatio)
	predicted := base.Mul(factors)
	if math.Abs(f.TrendFactor) > trendThreshold {
		predicted = predicted.Mul(decimal.NewFromFloat(1 + f.TrendFactor*trendWeight))
	}
	// momentum scaling may not push below the floored base
	predicted = decimal.Max(predicted, last.Mul(floorRatio).Mul(factors))
	f.PredictedPrice = predicted

	f.Confidence = ConfidenceFromVolatility(Volatility(prices))
	f.fillChange()
	f.RiskLevel = ClassifyRisk(f.ChangePercent(), days)
	f.BuyWindow = SuggestBuyWindow(f.ChangePercent(), days)
	return f, nil
}

func (f *Forecast) fillChange() {
	f.PriceChange = f.PredictedPrice.Sub(f.CurrentPrice)
	f.PriceChangePercent = f.PriceChange.Mul(hundred).Div(f.CurrentPrice)
}

// DaysUntil counts whole days to departure, rounding partial days up.
// Past dates yield zero or negative values.
func DaysUntil(travelDate, now time.Time) int {
	return int(math.Ceil(travelDate.Sub(now).Hours() / 24))
}

// SeasonalityFactor is a calendar heuristic: weekend departures cost more,
// mid-month less, and the first days of the month more.
func SeasonalityFactor(date time.Time) float64 {
	switch date.Weekday() {
	case time.Friday, time.Saturday:
		return 1.15
	}
	day := date.Day()
	switch {
	case day >= 15 && day <= 20:
		return 0.95
	case day >= 1 && day <= 5:
		return 1.08
	default:
		return 1.0
	}
}

// DemandFactor rises as departure approaches.
func DemandFactor(daysUntilDeparture int) float64 {
	switch {
	case daysUntilDeparture <= 3:
		return 1.25
	case daysUntilDeparture <= 7:
		return 1.15
	case daysUntilDeparture <= 14:
		return 1.08
	case daysUntilDeparture <= 30:
		return 1.0
	case daysUntilDeparture <= 60:
		return 0.95
	default:
		return 0.90
	}
}

// ConfidenceFromVolatility maps a coefficient of variation to a 0-100 score.
// The score is left unrounded; thresholds compare against the exact value.
func ConfidenceFromVolatility(volatility float64) float64 {
	confidence := 100 - volatility*100
	return math.Max(0, math.Min(100, confidence))
}

// ClassifyRisk grades risk; the first matching tier wins.
func ClassifyRisk(changePercent float64, daysUntilDeparture int) RiskLevel {
	abs := math.Abs(changePercent)
	switch {
	case abs > 15 && daysUntilDeparture < 7:
		return RiskHigh
	case abs > 10 || daysUntilDeparture < 3:
		return RiskMedium
	default:
		return RiskLow
	}
}
