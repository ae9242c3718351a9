package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fare-alerts/internal/logging"
)

// Notification is a rendered-on-send fare alert for one subscriber.
type Notification struct {
	SubscriptionID int64
	UserName       string
	Phone          string
	Origin         string
	Destination    string
	TravelDate     time.Time
	Price          decimal.Decimal
	Currency       string
	Carrier        string
	Action         string
	Urgency        string
	Message        string
	Channels       []string
}

// Notifier delivers notifications to subscribers.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

var cityNames = map[string]string{
	"RUH": "Riyadh",
	"JED": "Jeddah",
	"DMM": "Dammam",
	"AHB": "Abha",
	"TIF": "Taif",
	"MED": "Madinah",
	"DXB": "Dubai",
	"CAI": "Cairo",
}

// CityName maps an IATA code to a display name, falling back to the code.
func CityName(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if name, ok := cityNames[code]; ok {
		return name
	}
	return code
}

// RenderMessage formats the chat body sent to subscribers.
func RenderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("*Fare alert*\n\n")
	if note.UserName != "" {
		builder.WriteString(fmt.Sprintf("Hello %s,\n\n", note.UserName))
	}
	builder.WriteString(fmt.Sprintf("*%s -> %s*\n", CityName(note.Origin), CityName(note.Destination)))
	if !note.TravelDate.IsZero() {
		builder.WriteString(fmt.Sprintf("Date: %s\n", note.TravelDate.Format("Mon, 02 Jan 2006")))
	}
	price := note.Price.StringFixed(0)
	if note.Currency != "" {
		price += " " + note.Currency
	}
	builder.WriteString(fmt.Sprintf("*Current price: %s*\n", price))
	carrier := note.Carrier
	if carrier == "" {
		carrier = "unspecified"
	}
	builder.WriteString(fmt.Sprintf("Carrier: %s\n", carrier))
	if note.Message != "" {
		builder.WriteString("\n")
		builder.WriteString(note.Message)
		builder.WriteString("\n")
	}
	builder.WriteString("\nFares change quickly.")
	return builder.String()
}

// LogNotifier writes rendered notifications to the log instead of sending them.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logging.Component(logger, "alert_log")}
}

// Notify logs the message.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info().
		Int64("subscription_id", note.SubscriptionID).
		Str("to", note.Phone).
		Str("action", note.Action).
		Str("urgency", note.Urgency).
		Str("body", RenderMessage(note)).
		Msg("notification (log only)")
	return nil
}

// MultiNotifier fans a notification out to every configured notifier and
// returns the first error.
type MultiNotifier []Notifier

// Notify implements Notifier.
func (m MultiNotifier) Notify(ctx context.Context, note Notification) error {
	var firstErr error
	for _, n := range m {
		if err := n.Notify(ctx, note); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = MultiNotifier(nil)
)
