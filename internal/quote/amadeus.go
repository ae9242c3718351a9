package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fare-alerts/internal/logging"
)

const (
	tokenPath  = "/v1/security/oauth2/token"
	offersPath = "/v2/shopping/flight-offers"

	// refresh a little before the provider expires the token
	tokenLeeway = 30 * time.Second
)

// AmadeusOptions parameterise the flight-offers client.
type AmadeusOptions struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Currency     string
	Adults       int
	MaxOffers    int
	Timeout      time.Duration
}

// Amadeus fetches flight offers using the client-credentials flow.
type Amadeus struct {
	opts    AmadeusOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	now     func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewAmadeus constructs a quote client.
func NewAmadeus(opts AmadeusOptions, logger zerolog.Logger) *Amadeus {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if opts.Adults <= 0 {
		opts.Adults = 1
	}
	if opts.MaxOffers <= 0 {
		opts.MaxOffers = 5
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://test.api.amadeus.com"
	}

	return &Amadeus{
		opts:    opts,
		logger:  logging.Component(logger, "quote_amadeus"),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		now:     time.Now,
	}
}

// FetchQuote returns the cheapest offer for req.
func (a *Amadeus) FetchQuote(ctx context.Context, req Request) (Quote, error) {
	if strings.TrimSpace(req.Origin) == "" || strings.TrimSpace(req.Destination) == "" {
		return Quote{}, errors.New("origin and destination required")
	}
	if req.DepartureDate.IsZero() {
		return Quote{}, errors.New("departure date required")
	}

	token, err := a.token(ctx)
	if err != nil {
		return Quote{}, err
	}

	params := url.Values{}
	params.Set("originLocationCode", strings.ToUpper(strings.TrimSpace(req.Origin)))
	params.Set("destinationLocationCode", strings.ToUpper(strings.TrimSpace(req.Destination)))
	params.Set("departureDate", req.DepartureDate.Format("2006-01-02"))
	params.Set("adults", strconv.Itoa(a.opts.Adults))
	params.Set("max", strconv.Itoa(a.opts.MaxOffers))
	if a.opts.Currency != "" {
		params.Set("currencyCode", a.opts.Currency)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+offersPath+"?"+params.Encode(), nil)
	if err != nil {
		return Quote{}, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		a.clearToken()
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, parseHTTPError(resp.StatusCode, payload)
	}

	var offers offersResponse
	if err := json.Unmarshal(payload, &offers); err != nil {
		return Quote{}, fmt.Errorf("decode offers: %w", err)
	}

	best, ok, err := cheapest(offers.Data)
	if err != nil {
		return Quote{}, err
	}
	if !ok {
		return Quote{}, ErrNoOffers
	}
	if best.Currency == "" {
		best.Currency = a.opts.Currency
	}

	a.logger.Debug().
		Str("origin", req.Origin).
		Str("destination", req.Destination).
		Int("offers", len(offers.Data)).
		Str("price", best.Price.String()).
		Msg("quote fetched")
	return best, nil
}

func cheapest(offers []flightOffer) (Quote, bool, error) {
	var (
		best  Quote
		found bool
	)
	for _, offer := range offers {
		raw := offer.Price.GrandTotal
		if raw == "" {
			raw = offer.Price.Total
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return Quote{}, false, fmt.Errorf("parse offer price %q: %w", raw, err)
		}
		if !price.IsPositive() {
			continue
		}
		if found && !price.LessThan(best.Price) {
			continue
		}
		best = Quote{Price: price, Currency: offer.Price.Currency}
		if len(offer.ValidatingAirlineCodes) > 0 {
			best.Carrier = offer.ValidatingAirlineCodes[0]
		}
		found = true
	}
	return best, found, nil
}

func (a *Amadeus) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && a.now().Before(a.expiresAt) {
		return a.accessToken, nil
	}
	if a.opts.ClientID == "" || a.opts.ClientSecret == "" {
		return "", errors.New("quotes.client_id and quotes.client_secret required")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.opts.ClientID)
	form.Set("client_secret", a.opts.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", parseHTTPError(resp.StatusCode, payload)
	}

	var tok tokenResponse
	if err := json.Unmarshal(payload, &tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	a.accessToken = tok.AccessToken
	a.expiresAt = a.now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenLeeway)
	return a.accessToken, nil
}

func (a *Amadeus) clearToken() {
	a.mu.Lock()
	a.accessToken = ""
	a.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type offersResponse struct {
	Data []flightOffer `json:"data"`
}

type flightOffer struct {
	ID    string `json:"id"`
	Price struct {
		Currency   string `json:"currency"`
		Total      string `json:"total"`
		GrandTotal string `json:"grandTotal"`
	} `json:"price"`
	ValidatingAirlineCodes []string `json:"validatingAirlineCodes"`
}

type errorResponse struct {
	Errors []struct {
		Status int    `json:"status"`
		Code   int    `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
	ErrorDescription string `json:"error_description"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if len(apiErr.Errors) > 0 {
			first := apiErr.Errors[0]
			if first.Detail != "" {
				return fmt.Errorf("amadeus api error (%d): %s: %s", status, first.Title, first.Detail)
			}
			if first.Title != "" {
				return fmt.Errorf("amadeus api error (%d): %s", status, first.Title)
			}
		}
		if apiErr.ErrorDescription != "" {
			return fmt.Errorf("amadeus api error (%d): %s", status, apiErr.ErrorDescription)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("amadeus api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("amadeus api error (%d)", status)
}

var _ Fetcher = (*Amadeus)(nil)
