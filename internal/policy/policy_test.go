package policy

import (
	"reflect"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"fare-alerts/internal/forecast"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func prices(values ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = dec(v)
	}
	return out
}

// neutral is a forecast that matches none of the forecast-driven rules.
func neutral(current int64) forecast.Forecast {
	predicted := dec(current)
	return forecast.Forecast{
		CurrentPrice:       dec(current),
		PredictedPrice:     predicted,
		PriceChange:        decimal.Zero,
		PriceChangePercent: decimal.Zero,
		Confidence:         80,
		RiskLevel:          forecast.RiskLow,
		DaysUntilDeparture: 30,
	}
}

func withChange(f forecast.Forecast, pct int64) forecast.Forecast {
	f.PriceChangePercent = dec(pct)
	f.PredictedPrice = f.CurrentPrice.Mul(dec(100 + pct)).Div(dec(100))
	f.PriceChange = f.PredictedPrice.Sub(f.CurrentPrice)
	return f
}

func TestDecideScenarioNearMinimum(t *testing.T) {
	f := neutral(480)
	f = withChange(f, 6)
	f.Confidence = 98
	f.DaysUntilDeparture = 10

	rec := New().Decide(Input{
		Forecast:     f,
		CurrentPrice: dec(480),
		History:      Summarize(prices(500, 520, 510, 505, 490)),
	})
	if rec.Action != ActionBookNow {
		t.Fatalf("action: got %s, want book_now (rule %s)", rec.Action, rec.Rule)
	}
	if rec.Urgency != UrgencyHigh && rec.Urgency != UrgencyMedium {
		t.Fatalf("urgency: got %s", rec.Urgency)
	}
	if rec.Rule != "near_minimum" {
		t.Errorf("rule: got %s, want near_minimum", rec.Rule)
	}
}

func TestDecideTargetReachedTakesPrecedence(t *testing.T) {
	p := New()
	wait := withChange(neutral(295), -20)

	rec := p.Decide(Input{
		Forecast:     wait,
		CurrentPrice: dec(295),
		TargetPrice:  decimal.NewNullDecimal(dec(300)),
	})
	if rec.Action != ActionTargetReached || rec.Urgency != UrgencyHigh {
		t.Fatalf("got %s/%s, want target_reached/high", rec.Action, rec.Urgency)
	}
	if !strings.Contains(rec.Message, "295") || !strings.Contains(rec.Message, "300") {
		t.Errorf("message should mention both prices: %q", rec.Message)
	}

	equal := p.Decide(Input{Forecast: neutral(300), CurrentPrice: dec(300), TargetPrice: decimal.NewNullDecimal(dec(300))})
	if equal.Action != ActionTargetReached {
		t.Errorf("current == target: got %s", equal.Action)
	}

	above := p.Decide(Input{Forecast: neutral(301), CurrentPrice: dec(301), TargetPrice: decimal.NewNullDecimal(dec(300))})
	if above.Action == ActionTargetReached {
		t.Error("price above target must not report target_reached")
	}
}

func TestDecideRules(t *testing.T) {
	history := Summarize(prices(1000, 1000, 1000, 1000))

	cases := []struct {
		name    string
		in      Input
		action  Action
		urgency Urgency
		rule    string
	}{
		{
			name:    "strong upside, high confidence",
			in:      Input{Forecast: withChange(neutral(1000), 12), CurrentPrice: dec(1000)},
			action:  ActionBookNow,
			urgency: UrgencyHigh,
			rule:    "strong_upside",
		},
		{
			name: "strong upside, moderate confidence",
			in: func() Input {
				f := withChange(neutral(1000), 12)
				f.Confidence = 65
				return Input{Forecast: f, CurrentPrice: dec(1000)}
			}(),
			action:  ActionBookNow,
			urgency: UrgencyMedium,
			rule:    "strong_upside",
		},
		{
			name: "upside without confidence falls through",
			in: func() Input {
				f := withChange(neutral(1000), 12)
				f.Confidence = 60
				return Input{Forecast: f, CurrentPrice: dec(1000)}
			}(),
			action:  ActionNone,
			urgency: UrgencyLow,
			rule:    "default",
		},
		{
			name: "imminent departure",
			in: func() Input {
				f := neutral(1000)
				f.DaysUntilDeparture = 2
				return Input{Forecast: f, CurrentPrice: dec(1000)}
			}(),
			action:  ActionBookNow,
			urgency: UrgencyHigh,
			rule:    "imminent_departure",
		},
		{
			name:    "steep drop expected",
			in:      Input{Forecast: withChange(neutral(1000), -16), CurrentPrice: dec(1000)},
			action:  ActionPriceDrop,
			urgency: UrgencyMedium,
			rule:    "steep_drop_expected",
		},
		{
			name:    "deep drop below average",
			in:      Input{Forecast: neutral(850), CurrentPrice: dec(850), History: history},
			action:  ActionBookNow,
			urgency: UrgencyHigh,
			rule:    "below_average",
		},
		{
			name:    "good price below average",
			in:      Input{Forecast: neutral(900), CurrentPrice: dec(900), History: history},
			action:  ActionGoodPrice,
			urgency: UrgencyMedium,
			rule:    "below_average",
		},
		{
			name:    "near minimum",
			in:      Input{Forecast: neutral(1040), CurrentPrice: dec(1040), History: history},
			action:  ActionBookNow,
			urgency: UrgencyHigh,
			rule:    "near_minimum",
		},
		{
			name: "departure soon at a reasonable price",
			in: func() Input {
				f := neutral(1080)
				f.DaysUntilDeparture = 6
				return Input{Forecast: f, CurrentPrice: dec(1080), History: history}
			}(),
			action:  ActionBookSoon,
			urgency: UrgencyMedium,
			rule:    "departure_soon",
		},
		{
			name:    "well above average",
			in:      Input{Forecast: neutral(1250), CurrentPrice: dec(1250), History: history},
			action:  ActionWait,
			urgency: UrgencyLow,
			rule:    "above_average",
		},
		{
			name: "low confidence",
			in: func() Input {
				f := neutral(1100)
				f.Confidence = 45
				return Input{Forecast: f, CurrentPrice: dec(1100), History: history}
			}(),
			action:  ActionRisky,
			urgency: UrgencyLow,
			rule:    "low_confidence",
		},
		{
			name: "confidence just under the low threshold",
			in: func() Input {
				f := neutral(1100)
				f.Confidence = 49.6
				return Input{Forecast: f, CurrentPrice: dec(1100), History: history}
			}(),
			action:  ActionRisky,
			urgency: UrgencyLow,
			rule:    "low_confidence",
		},
		{
			name: "upside just over the confidence threshold",
			in: func() Input {
				f := withChange(neutral(1000), 12)
				f.Confidence = 60.4
				return Input{Forecast: f, CurrentPrice: dec(1000)}
			}(),
			action:  ActionBookNow,
			urgency: UrgencyMedium,
			rule:    "strong_upside",
		},
		{
			name:    "nothing matches",
			in:      Input{Forecast: neutral(1100), CurrentPrice: dec(1100), History: history},
			action:  ActionNone,
			urgency: UrgencyLow,
			rule:    "default",
		},
	}

	p := New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := p.Decide(tc.in)
			if rec.Action != tc.action || rec.Urgency != tc.urgency || rec.Rule != tc.rule {
				t.Fatalf("got %s/%s via %s, want %s/%s via %s",
					rec.Action, rec.Urgency, rec.Rule, tc.action, tc.urgency, tc.rule)
			}
		})
	}
}

func TestHistoryRulesNeedEnoughPoints(t *testing.T) {
	rec := New().Decide(Input{
		Forecast:     neutral(500),
		CurrentPrice: dec(500),
		History:      Summarize(prices(1000, 1000)),
	})
	if rec.Action != ActionNone {
		t.Fatalf("two points should not drive history rules, got %s via %s", rec.Action, rec.Rule)
	}
}

func TestRulesOrder(t *testing.T) {
	want := []string{
		"target_reached",
		"strong_upside",
		"imminent_departure",
		"steep_drop_expected",
		"below_average",
		"near_minimum",
		"departure_soon",
		"above_average",
		"low_confidence",
	}
	if got := New().Rules(); !reflect.DeepEqual(got, want) {
		t.Fatalf("rules: got %v", got)
	}
}

func TestActionable(t *testing.T) {
	for action, want := range map[Action]bool{
		ActionBookNow:       true,
		ActionTargetReached: true,
		ActionWait:          true,
		ActionPriceDrop:     true,
		ActionRisky:         false,
		ActionNone:          false,
	} {
		if got := (Recommendation{Action: action}).Actionable(); got != want {
			t.Errorf("%s: got %v, want %v", action, got, want)
		}
	}
}

func TestMessageCurrency(t *testing.T) {
	rec := New(WithCurrency("USD")).Decide(Input{
		Forecast:     neutral(100),
		CurrentPrice: dec(100),
		TargetPrice:  decimal.NewNullDecimal(dec(120)),
	})
	if !strings.Contains(rec.Message, "100 USD") {
		t.Fatalf("message: %q", rec.Message)
	}
}
