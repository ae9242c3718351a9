package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceObservation is a quote about to be appended to the price history.
type PriceObservation struct {
	Route      string
	TravelDate time.Time
	Price      decimal.Decimal
	Carrier    string
	RecordedAt time.Time
}

// PriceRecord represents a persisted price_history row.
type PriceRecord struct {
	ID         int64
	Route      string
	TravelDate time.Time
	Price      decimal.Decimal
	Carrier    *string
	RecordedAt time.Time
}

// Subscription is an active fare alert joined with its subscriber.
type Subscription struct {
	ID          int64
	UserID      int64
	UserName    string
	Phone       string
	Origin      string
	Destination string
	TravelDate  time.Time
	TargetPrice decimal.NullDecimal
	Active      bool
	CreatedAt   time.Time
}

// NotificationRecord captures a dispatched notification for de-duplication/auditing.
type NotificationRecord struct {
	ID             int64
	SubscriptionID int64
	Route          string
	TravelDate     time.Time
	Price          decimal.Decimal
	Action         string
	Urgency        string
	Channels       []string
	CreatedAt      time.Time
}

// DateLayout is the calendar-date format used for travel dates.
const DateLayout = "2006-01-02"

// TruncateDate normalises a timestamp to its UTC calendar date.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
