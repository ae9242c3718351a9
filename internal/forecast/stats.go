package forecast

import (
	"math"

	"github.com/shopspring/decimal"
)

// Mean returns the arithmetic mean, zero for an empty slice.
func Mean(prices []decimal.Decimal) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, prices...).Div(decimal.NewFromInt(int64(len(prices))))
}

// StdDev returns the population standard deviation.
func StdDev(prices []decimal.Decimal) float64 {
	if len(prices) == 0 {
		return 0
	}
	mean := Mean(prices)
	variance := decimal.Zero
	for _, p := range prices {
		diff := p.Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(decimal.NewFromInt(int64(len(prices))))
	return math.Sqrt(variance.InexactFloat64())
}

// Volatility is the coefficient of variation: stddev divided by mean.
func Volatility(prices []decimal.Decimal) float64 {
	mean := Mean(prices).InexactFloat64()
	if mean == 0 {
		return 0
	}
	return StdDev(prices) / mean
}

// Trend is (up - down) / (up + down) over consecutive deltas, in [-1, 1].
func Trend(prices []decimal.Decimal) float64 {
	if len(prices) < 2 {
		return 0
	}
	var up, down int
	for i := 1; i < len(prices); i++ {
		switch prices[i].Cmp(prices[i-1]) {
		case 1:
			up++
		case -1:
			down++
		}
	}
	total := up + down
	if total == 0 {
		return 0
	}
	return float64(up-down) / float64(total)
}

// Regression fits price against sequence index with ordinary least squares.
func Regression(prices []decimal.Decimal) (slope, intercept decimal.Decimal) {
	n := len(prices)
	if n == 0 {
		return decimal.Zero, decimal.Zero
	}
	xMean := decimal.NewFromInt(int64(n - 1)).Div(decimal.NewFromInt(2))
	yMean := Mean(prices)

	numerator := decimal.Zero
	denominator := decimal.Zero
	for i, p := range prices {
		dx := decimal.NewFromInt(int64(i)).Sub(xMean)
		numerator = numerator.Add(dx.Mul(p.Sub(yMean)))
		denominator = denominator.Add(dx.Mul(dx))
	}

	slope = decimal.Zero
	if !denominator.IsZero() {
		slope = numerator.Div(denominator)
	}
	intercept = yMean.Sub(slope.Mul(xMean))
	return slope, intercept
}

// NextValue extrapolates the regression one step past the last index, floored at
// floorRatio of the last observed price.
func NextValue(prices []decimal.Decimal, floorRatio decimal.Decimal) decimal.Decimal {
	n := len(prices)
	if n == 0 {
		return decimal.Zero
	}
	last := prices[n-1]
	if n < 2 {
		return last
	}
	slope, intercept := Regression(prices)
	next := slope.Mul(decimal.NewFromInt(int64(n))).Add(intercept)
	return decimal.Max(next, last.Mul(floorRatio))
}

// MinMax returns the indices of the smallest and largest price. Ties resolve to
// the latest occurrence.
func MinMax(prices []decimal.Decimal) (minIdx, maxIdx int) {
	if len(prices) == 0 {
		return -1, -1
	}
	for i, p := range prices {
		if p.LessThanOrEqual(prices[minIdx]) {
			minIdx = i
		}
		if p.GreaterThanOrEqual(prices[maxIdx]) {
			maxIdx = i
		}
	}
	return minIdx, maxIdx
}
