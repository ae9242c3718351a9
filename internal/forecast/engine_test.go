package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func prices(values ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPredictSparseFridayDeparture(t *testing.T) {
	engine := NewEngine(WithClock(fixedClock(time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))))
	travel := date(2026, 10, 16) // Friday

	f, err := engine.Predict(nil, decimal.NewFromInt(1000), travel)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if f.DaysUntilDeparture != 2 {
		t.Fatalf("days until departure: got %d, want 2", f.DaysUntilDeparture)
	}
	if f.SeasonalityFactor != 1.15 || f.DemandFactor != 1.25 {
		t.Fatalf("factors: got %.2f/%.2f, want 1.15/1.25", f.SeasonalityFactor, f.DemandFactor)
	}
	if got := f.PredictedPrice.Round(0); !got.Equal(decimal.NewFromInt(1438)) {
		t.Fatalf("predicted price: got %s, want 1438", got)
	}
	if f.Confidence != 40 || f.RiskLevel != RiskMedium || f.TrendFactor != 0 || !f.Sparse {
		t.Fatalf("sparse forecast fields unexpected: %+v", f)
	}
	if f.BuyWindow.Hint != HintUncertain {
		t.Errorf("buy window: got %s, want uncertain", f.BuyWindow.Hint)
	}
}

func TestPredictSparseMatchesFactorProduct(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	engine := NewEngine(WithClock(fixedClock(now)))
	current := decimal.NewFromInt(750)

	for _, series := range [][]decimal.Decimal{nil, prices(700), prices(700, 720)} {
		for _, travel := range []time.Time{date(2026, 10, 3), date(2026, 10, 18), date(2026, 12, 2)} {
			f, err := engine.Predict(series, current, travel)
			if err != nil {
				t.Fatalf("predict: %v", err)
			}
			days := DaysUntil(travel, now)
			want := current.
				Mul(decimal.NewFromFloat(SeasonalityFactor(travel))).
				Mul(decimal.NewFromFloat(DemandFactor(days)))
			if !f.PredictedPrice.Equal(want) {
				t.Errorf("len=%d travel=%s: got %s, want %s", len(series), travel.Format("2006-01-02"), f.PredictedPrice, want)
			}
			if f.Confidence != 40 || f.RiskLevel != RiskMedium || f.TrendFactor != 0 {
				t.Errorf("len=%d: sparse invariants broken: %+v", len(series), f)
			}
		}
	}
}

func TestPredictMildDownwardSeries(t *testing.T) {
	engine := NewEngine(WithClock(fixedClock(time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC))))
	travel := date(2026, 11, 10) // Tuesday, day-of-month 10

	f, err := engine.Predict(prices(500, 520, 510, 505, 490), decimal.NewFromInt(480), travel)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if f.DaysUntilDeparture != 10 {
		t.Fatalf("days: got %d, want 10", f.DaysUntilDeparture)
	}
	if f.SeasonalityFactor != 1.0 || f.DemandFactor != 1.08 {
		t.Fatalf("factors: got %.2f/%.2f", f.SeasonalityFactor, f.DemandFactor)
	}
	if f.TrendFactor != -0.5 {
		t.Errorf("trend: got %.2f, want -0.5", f.TrendFactor)
	}
	// base 494.5 * 1.08 * (1 - 0.05)
	want := decimal.RequireFromString("507.357")
	if !f.PredictedPrice.Equal(want) {
		t.Errorf("predicted: got %s, want %s", f.PredictedPrice, want)
	}
	// stddev 10 over mean 505
	if math.Abs(f.Confidence-98.0198) > 0.001 {
		t.Errorf("confidence: got %.4f, want 98.02", f.Confidence)
	}
	if f.RiskLevel != RiskLow {
		t.Errorf("risk: got %s, want LOW", f.RiskLevel)
	}
	if f.Sparse {
		t.Error("five points should not use the sparse fallback")
	}
}

func TestPredictFloorHoldsAfterScaling(t *testing.T) {
	engine := NewEngine(WithClock(fixedClock(time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC))))
	travel := date(2026, 11, 10)

	f, err := engine.Predict(prices(1000, 600, 300), decimal.NewFromInt(300), travel)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	floor := decimal.NewFromInt(240).Mul(decimal.NewFromFloat(1.08))
	if f.PredictedPrice.LessThan(floor) {
		t.Fatalf("predicted %s fell below floor %s", f.PredictedPrice, floor)
	}
	if !f.PredictedPrice.Equal(floor) {
		t.Errorf("steep decline should land on the floor: got %s, want %s", f.PredictedPrice, floor)
	}
	if f.TrendFactor != -1 {
		t.Errorf("trend: got %.2f, want -1", f.TrendFactor)
	}
}

func TestPredictFlatSeries(t *testing.T) {
	engine := NewEngine(WithClock(fixedClock(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))))
	travel := date(2026, 12, 22) // Tuesday, 82 days out

	f, err := engine.Predict(prices(500, 500, 500, 500), decimal.NewFromInt(500), travel)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if f.TrendFactor != 0 {
		t.Errorf("trend: got %.2f, want 0", f.TrendFactor)
	}
	if f.Confidence != 100 {
		t.Errorf("confidence: got %.0f, want 100", f.Confidence)
	}
	if want := decimal.NewFromInt(450); !f.PredictedPrice.Equal(want) {
		t.Errorf("predicted: got %s, want %s", f.PredictedPrice, want)
	}
	if f.BuyWindow.Hint != HintWithinDays || f.BuyWindow.WithinDays != 41 {
		t.Errorf("buy window: got %+v", f.BuyWindow)
	}
}

func TestPredictRejectsInvalidInput(t *testing.T) {
	engine := NewEngine()
	for _, price := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		if _, err := engine.Predict(prices(1, 2, 3), price, date(2026, 11, 1)); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("price %s: expected ErrInvalidInput, got %v", price, err)
		}
	}
	if _, err := engine.Predict(nil, decimal.NewFromInt(10), time.Time{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero travel date: expected ErrInvalidInput, got %v", err)
	}
}

func TestConfidenceNonIncreasingWithVolatility(t *testing.T) {
	series := [][]decimal.Decimal{
		prices(500, 500, 500),
		prices(495, 500, 505),
		prices(450, 500, 550),
		prices(300, 500, 700),
		prices(1, 1000, 1),
	}
	previous := 101.0
	previousCV := -1.0
	for _, s := range series {
		cv := Volatility(s)
		if cv < previousCV {
			t.Fatalf("fixture not ordered by volatility")
		}
		c := ConfidenceFromVolatility(cv)
		if c < 0 || c > 100 {
			t.Fatalf("confidence %.2f out of bounds", c)
		}
		if c > previous {
			t.Fatalf("confidence rose from %.2f to %.2f as volatility grew", previous, c)
		}
		previous, previousCV = c, cv
	}
	if previous != 0 {
		t.Errorf("extreme volatility should clamp to 0, got %.2f", previous)
	}
}

func TestConfidenceIsNotRounded(t *testing.T) {
	engine := NewEngine(WithClock(fixedClock(time.Date(2026, 10, 31, 0, 0, 0, 0, time.UTC))))
	series := prices(1000, 1000, 211)

	f, err := engine.Predict(series, decimal.NewFromInt(500), date(2026, 11, 10))
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	want := 100 - Volatility(series)*100
	if f.Confidence != want {
		t.Fatalf("confidence: got %v, want %v", f.Confidence, want)
	}
	if f.Confidence >= 50 || f.Confidence < 49.5 {
		t.Fatalf("fixture should sit just under 50, got %.3f", f.Confidence)
	}
}

func TestClassifyRiskOrder(t *testing.T) {
	cases := []struct {
		pct  float64
		days int
		want RiskLevel
	}{
		{20, 5, RiskHigh},
		{-16, 6, RiskHigh},
		{20, 10, RiskMedium},
		{12, 30, RiskMedium},
		{2, 2, RiskMedium},
		{5, 10, RiskLow},
		{-10, 7, RiskLow},
	}
	for _, tc := range cases {
		if got := ClassifyRisk(tc.pct, tc.days); got != tc.want {
			t.Errorf("ClassifyRisk(%.0f, %d): got %s, want %s", tc.pct, tc.days, got, tc.want)
		}
	}
}

func TestSeasonalityFactor(t *testing.T) {
	cases := []struct {
		day  time.Time
		want float64
	}{
		{date(2026, 10, 16), 1.15}, // Friday
		{date(2026, 10, 17), 1.15}, // Saturday, also mid-month
		{date(2026, 10, 19), 0.95},
		{date(2026, 11, 2), 1.08},
		{date(2026, 11, 10), 1.0},
	}
	for _, tc := range cases {
		if got := SeasonalityFactor(tc.day); got != tc.want {
			t.Errorf("%s: got %.2f, want %.2f", tc.day.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestDemandFactor(t *testing.T) {
	cases := map[int]float64{-2: 1.25, 3: 1.25, 4: 1.15, 7: 1.15, 14: 1.08, 30: 1.0, 60: 0.95, 61: 0.90}
	for days, want := range cases {
		if got := DemandFactor(days); got != want {
			t.Errorf("DemandFactor(%d): got %.2f, want %.2f", days, got, want)
		}
	}
}

func TestDaysUntilRoundsUpAndAllowsPast(t *testing.T) {
	now := time.Date(2026, 10, 17, 18, 0, 0, 0, time.UTC)
	if got := DaysUntil(date(2026, 10, 18), now); got != 1 {
		t.Errorf("partial day: got %d, want 1", got)
	}
	if got := DaysUntil(date(2026, 10, 10), now); got != -7 {
		t.Errorf("past date: got %d, want -7", got)
	}
}
