package forecast

import (
	"fmt"
	"math"
)

// BuyHint classifies when buying looks best.
type BuyHint string

const (
	HintToday      BuyHint = "today"
	HintWithinDays BuyHint = "within_days"
	HintFewWeeks   BuyHint = "few_weeks"
	HintSoon       BuyHint = "soon"
	HintUncertain  BuyHint = "uncertain"
)

// BuyWindow is a coarse suggestion of when to buy.
type BuyWindow struct {
	Hint       BuyHint
	WithinDays int
}

func (w BuyWindow) String() string {
	switch w.Hint {
	case HintToday:
		return "today, the current price is good"
	case HintWithinDays:
		return fmt.Sprintf("within %d days", w.WithinDays)
	case HintFewWeeks:
		return "within 2-3 weeks"
	case HintSoon:
		return "as soon as possible"
	default:
		return "uncertain, limited data"
	}
}

// SuggestBuyWindow derives a buy window from the predicted change and lead time.
func SuggestBuyWindow(changePercent float64, daysUntilDeparture int) BuyWindow {
	switch {
	case changePercent > 10:
		return BuyWindow{Hint: HintToday}
	case changePercent < -5 && daysUntilDeparture > 7:
		return BuyWindow{Hint: HintWithinDays, WithinDays: int(math.Ceil(float64(daysUntilDeparture) / 2))}
	case daysUntilDeparture > 30:
		return BuyWindow{Hint: HintFewWeeks}
	default:
		return BuyWindow{Hint: HintSoon}
	}
}
