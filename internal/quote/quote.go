package quote

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoOffers is returned when the provider has nothing for the requested itinerary.
var ErrNoOffers = errors.New("quote: no offers for itinerary")

// Request identifies a one-way itinerary.
type Request struct {
	Origin        string
	Destination   string
	DepartureDate time.Time
}

// Quote is the cheapest offer found for a Request.
type Quote struct {
	Price    decimal.Decimal
	Currency string
	Carrier  string
}

// Fetcher retrieves the current fare for an itinerary.
type Fetcher interface {
	FetchQuote(ctx context.Context, req Request) (Quote, error)
}
