package policy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"fare-alerts/internal/forecast"
)

// Action is the recommended buyer behaviour.
type Action string

const (
	ActionBookNow       Action = "book_now"
	ActionBookSoon      Action = "book_soon"
	ActionGoodPrice     Action = "good_price"
	ActionWait          Action = "wait"
	ActionPriceDrop     Action = "price_drop"
	ActionTargetReached Action = "target_reached"
	ActionRisky         Action = "risky"
	ActionNone          Action = "none"
)

// Urgency tiers a recommendation.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Recommendation is the outcome of a decision. Rule names the rule that produced it.
type Recommendation struct {
	Action  Action
	Urgency Urgency
	Message string
	Rule    string
}

// Actionable reports whether the recommendation warrants a notification.
// Risky and none are informational only.
func (r Recommendation) Actionable() bool {
	return r.Action != ActionNone && r.Action != ActionRisky
}

// History summarises recent observations for the history-based rules.
type History struct {
	Count   int
	Average decimal.Decimal
	Min     decimal.Decimal
}

// Summarize builds a History from prices.
func Summarize(prices []decimal.Decimal) History {
	if len(prices) == 0 {
		return History{}
	}
	minIdx, _ := forecast.MinMax(prices)
	return History{
		Count:   len(prices),
		Average: forecast.Mean(prices),
		Min:     prices[minIdx],
	}
}

func (h History) sufficient() bool {
	return h.Count >= forecast.MinDataPoints && h.Average.IsPositive()
}

// Input is everything a decision looks at.
type Input struct {
	Forecast     forecast.Forecast
	CurrentPrice decimal.Decimal
	TargetPrice  decimal.NullDecimal
	History      History
}

// Rule maps an input to a recommendation when it matches.
type Rule struct {
	Name  string
	Match func(in Input, p *Policy) (Recommendation, bool)
}

// Option customises a Policy.
type Option func(*Policy)

// WithCurrency sets the currency label used in messages.
func WithCurrency(currency string) Option {
	return func(p *Policy) {
		p.currency = currency
	}
}

// Policy evaluates an ordered rule list; the first match wins.
type Policy struct {
	rules    []Rule
	currency string
}

// New constructs a Policy with the default rule order.
func New(opts ...Option) *Policy {
	p := &Policy{rules: DefaultRules(), currency: "SAR"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Rules returns the rule names in evaluation order.
func (p *Policy) Rules() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.Name
	}
	return names
}

// Decide evaluates the rules top to bottom.
func (p *Policy) Decide(in Input) Recommendation {
	for _, rule := range p.rules {
		if rec, ok := rule.Match(in, p); ok {
			rec.Rule = rule.Name
			return rec
		}
	}
	return Recommendation{Action: ActionNone, Urgency: UrgencyLow, Rule: "default"}
}

func (p *Policy) money(d decimal.Decimal) string {
	if p.currency == "" {
		return d.StringFixed(0)
	}
	return d.StringFixed(0) + " " + p.currency
}

var (
	ratioDeepDrop    = decimal.NewFromFloat(0.85)
	ratioDrop        = decimal.NewFromFloat(0.90)
	ratioNearMinimum = decimal.NewFromFloat(1.05)
	ratioReasonable  = decimal.NewFromFloat(1.10)
	ratioExpensive   = decimal.NewFromFloat(1.25)
	hundred          = decimal.NewFromInt(100)
)

// DefaultRules returns the decision list in priority order.
//
// Subscriber intent comes first, then strong forecast signals and imminent
// departure, then history-based price levels from the strongest deviation to
// the weakest. Of the overlapping history rules, the 15%-below-average rule is
// checked before the near-minimum rule.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "target_reached", Match: matchTarget},
		{Name: "strong_upside", Match: matchStrongUpside},
		{Name: "imminent_departure", Match: matchImminentDeparture},
		{Name: "steep_drop_expected", Match: matchSteepDrop},
		{Name: "below_average", Match: matchBelowAverage},
		{Name: "near_minimum", Match: matchNearMinimum},
		{Name: "departure_soon", Match: matchDepartureSoon},
		{Name: "above_average", Match: matchAboveAverage},
		{Name: "low_confidence", Match: matchLowConfidence},
	}
}

func matchTarget(in Input, p *Policy) (Recommendation, bool) {
	if !in.TargetPrice.Valid || in.CurrentPrice.GreaterThan(in.TargetPrice.Decimal) {
		return Recommendation{}, false
	}
	return Recommendation{
		Action:  ActionTargetReached,
		Urgency: UrgencyHigh,
		Message: fmt.Sprintf("Target price reached! The fare is now %s (your target was %s).",
			p.money(in.CurrentPrice), p.money(in.TargetPrice.Decimal)),
	}, true
}

func matchStrongUpside(in Input, p *Policy) (Recommendation, bool) {
	f := in.Forecast
	if f.ChangePercent() <= 10 || f.Confidence <= 60 {
		return Recommendation{}, false
	}
	urgency := UrgencyMedium
	if f.Confidence > 70 {
		urgency = UrgencyHigh
	}
	return Recommendation{
		Action:  ActionBookNow,
		Urgency: urgency,
		Message: fmt.Sprintf("The fare is expected to rise about %s%% to %s. Book now at %s.",
			f.PriceChangePercent.StringFixed(0), p.money(f.PredictedPrice), p.money(in.CurrentPrice)),
	}, true
}

func matchImminentDeparture(in Input, p *Policy) (Recommendation, bool) {
	if in.Forecast.DaysUntilDeparture > 2 {
		return Recommendation{}, false
	}
	return Recommendation{
		Action:  ActionBookNow,
		Urgency: UrgencyHigh,
		Message: fmt.Sprintf("Departure is in %d day(s). Book now at %s before seats run out.",
			in.Forecast.DaysUntilDeparture, p.money(in.CurrentPrice)),
	}, true
}

func matchSteepDrop(in Input, p *Policy) (Recommendation, bool) {
	f := in.Forecast
	if f.ChangePercent() >= -15 {
		return Recommendation{}, false
	}
	return Recommendation{
		Action:  ActionPriceDrop,
		Urgency: UrgencyMedium,
		Message: fmt.Sprintf("The fare of %s is already attractive and may fall about %s%% further to %s. Keep watching.",
			p.money(in.CurrentPrice), f.PriceChangePercent.Abs().StringFixed(0), p.money(f.PredictedPrice)),
	}, true
}

func matchBelowAverage(in Input, p *Policy) (Recommendation, bool) {
	h := in.History
	if !h.sufficient() {
		return Recommendation{}, false
	}
	drop := h.Average.Sub(in.CurrentPrice).Mul(hundred).Div(h.Average)
	switch {
	case in.CurrentPrice.LessThanOrEqual(h.Average.Mul(ratioDeepDrop)):
		return Recommendation{
			Action:  ActionBookNow,
			Urgency: UrgencyHigh,
			Message: fmt.Sprintf("The fare dropped to %s, %s%% below the average. Book now!",
				p.money(in.CurrentPrice), drop.StringFixed(0)),
		}, true
	case in.CurrentPrice.LessThanOrEqual(h.Average.Mul(ratioDrop)):
		return Recommendation{
			Action:  ActionGoodPrice,
			Urgency: UrgencyMedium,
			Message: fmt.Sprintf("The fare dropped to %s, %s%% below the average. A good price to book.",
				p.money(in.CurrentPrice), drop.StringFixed(0)),
		}, true
	}
	return Recommendation{}, false
}

func matchNearMinimum(in Input, p *Policy) (Recommendation, bool) {
	h := in.History
	if !h.sufficient() || in.CurrentPrice.GreaterThan(h.Min.Mul(ratioNearMinimum)) {
		return Recommendation{}, false
	}
	return Recommendation{
		Action:  ActionBookNow,
		Urgency: UrgencyHigh,
		Message: fmt.Sprintf("The fare is %s, close to the best price we have seen (%s). Excellent time to book!",
			p.money(in.CurrentPrice), p.money(h.Min)),
	}, true
}

func matchDepartureSoon(in Input, p *Policy) (Recommendation, bool) {
	h := in.History
	if !h.sufficient() || in.Forecast.DaysUntilDeparture > 7 ||
		in.CurrentPrice.GreaterThan(h.Average.Mul(ratioReasonable)) {
		return Recommendation{}, false
	}
	return Recommendation{
		Action:  ActionBookSoon,
		Urgency: UrgencyMedium,
		Message: fmt.Sprintf("Departure is in %d days and %s is reasonable. Book soon before the fare climbs.",
			in.Forecast.DaysUntilDeparture, p.money(in.CurrentPrice)),
	}, true
}

func matchAboveAverage(in Input, p *Policy) (Recommendation, bool) {
	h := in.History
	if !h.sufficient() || in.CurrentPrice.LessThan(h.Average.Mul(ratioExpensive)) {
		return Recommendation{}, false
	}
	above := in.CurrentPrice.Sub(h.Average).Mul(hundred).Div(h.Average)
	return Recommendation{
		Action:  ActionWait,
		Urgency: UrgencyLow,
		Message: fmt.Sprintf("The fare is %s, %s%% above the average. We suggest waiting.",
			p.money(in.CurrentPrice), above.StringFixed(0)),
	}, true
}

func matchLowConfidence(in Input, p *Policy) (Recommendation, bool) {
	if in.Forecast.Confidence >= 50 {
		return Recommendation{}, false
	}
	return Recommendation{
		Action:  ActionRisky,
		Urgency: UrgencyLow,
		Message: fmt.Sprintf("Forecast confidence is low (%.0f%%); the fare of %s may move either way.",
			math.Floor(in.Forecast.Confidence), p.money(in.CurrentPrice)),
	}, true
}
