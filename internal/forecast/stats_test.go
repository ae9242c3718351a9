package forecast

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func decimals(values ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}

func TestMeanAndStdDev(t *testing.T) {
	prices := decimals(2, 4, 4, 4, 5, 5, 7, 9)
	if got := Mean(prices); !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("mean = %s", got)
	}
	if got := StdDev(prices); got != 2 {
		t.Fatalf("stddev = %v", got)
	}
	if got := Volatility(prices); got != 0.4 {
		t.Fatalf("volatility = %v", got)
	}
	if !Mean(nil).IsZero() || StdDev(nil) != 0 || Volatility(nil) != 0 {
		t.Fatal("empty input should yield zeros")
	}
}

func TestTrend(t *testing.T) {
	cases := []struct {
		name   string
		prices []decimal.Decimal
		want   float64
	}{
		{"rising", decimals(1, 2, 3, 4), 1},
		{"falling", decimals(4, 3, 2, 1), -1},
		{"flat", decimals(5, 5, 5), 0},
		{"mixed", decimals(1, 2, 1, 2, 3), 0.5},
		{"single", decimals(7), 0},
	}
	for _, tc := range cases {
		if got := Trend(tc.prices); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: trend = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRegressionAndNextValue(t *testing.T) {
	slope, intercept := Regression(decimals(10, 12, 14, 16))
	if !slope.Equal(decimal.NewFromInt(2)) || !intercept.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("regression = %s, %s", slope, intercept)
	}
	if got := NextValue(decimals(10, 12, 14, 16), decimal.NewFromFloat(0.8)); !got.Equal(decimal.NewFromInt(18)) {
		t.Fatalf("next value = %s", got)
	}
	// a steep fall is floored at 80% of the last price
	if got := NextValue(decimals(1000, 500, 100), decimal.NewFromFloat(0.8)); !got.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("floored next value = %s", got)
	}
	if got := NextValue(decimals(42), decimal.NewFromFloat(0.8)); !got.Equal(decimal.NewFromInt(42)) {
		t.Fatalf("single point next value = %s", got)
	}
}

func TestMinMaxTiesResolveToLatest(t *testing.T) {
	minIdx, maxIdx := MinMax(decimals(5, 3, 9, 3, 9, 4))
	if minIdx != 3 || maxIdx != 4 {
		t.Fatalf("min=%d max=%d", minIdx, maxIdx)
	}
	if minIdx, maxIdx := MinMax(nil); minIdx != -1 || maxIdx != -1 {
		t.Fatalf("empty = %d, %d", minIdx, maxIdx)
	}
}
