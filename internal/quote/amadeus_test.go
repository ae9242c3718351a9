package quote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var departure = time.Date(2026, 11, 10, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, tokenCalls *int32, offers http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Form.Get("grant_type") != "client_credentials" || r.Form.Get("client_id") != "id" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error_description": "bad client"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok",
			"token_type":   "Bearer",
			"expires_in":   1799,
		})
	})
	mux.HandleFunc(offersPath, offers)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func offer(total, currency string, carriers ...string) map[string]any {
	return map[string]any{
		"price":                  map[string]string{"total": total, "grandTotal": total, "currency": currency},
		"validatingAirlineCodes": carriers,
	}
}

func TestFetchQuoteReturnsCheapest(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		if q.Get("originLocationCode") != "RUH" || q.Get("destinationLocationCode") != "JED" ||
			q.Get("departureDate") != "2026-11-10" || q.Get("currencyCode") != "SAR" || q.Get("adults") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{
			offer("612.40", "SAR", "SV"),
			offer("489.00", "SAR", "XY"),
			offer("520.10", "SAR", "F3"),
		}})
	})

	client := NewAmadeus(AmadeusOptions{
		BaseURL:      srv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		Currency:     "SAR",
		Timeout:      time.Second,
	}, zerolog.Nop())

	for i := 0; i < 2; i++ {
		q, err := client.FetchQuote(context.Background(), Request{Origin: "ruh", Destination: "jed", DepartureDate: departure})
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if !q.Price.Equal(decimal.RequireFromString("489")) || q.Carrier != "XY" || q.Currency != "SAR" {
			t.Fatalf("unexpected quote: %+v", q)
		}
	}
	if got := atomic.LoadInt32(&tokenCalls); got != 1 {
		t.Fatalf("token should be cached, fetched %d times", got)
	}
}

func TestFetchQuoteNoOffers(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})
	client := NewAmadeus(AmadeusOptions{BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret"}, zerolog.Nop())

	_, err := client.FetchQuote(context.Background(), Request{Origin: "RUH", Destination: "JED", DepartureDate: departure})
	if !errors.Is(err, ErrNoOffers) {
		t.Fatalf("expected ErrNoOffers, got %v", err)
	}
}

func TestFetchQuoteHTTPError(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"errors": []map[string]any{
			{"status": 400, "code": 477, "title": "INVALID FORMAT", "detail": "departureDate"},
		}})
	})
	client := NewAmadeus(AmadeusOptions{BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret"}, zerolog.Nop())

	_, err := client.FetchQuote(context.Background(), Request{Origin: "RUH", Destination: "JED", DepartureDate: departure})
	if err == nil || errors.Is(err, ErrNoOffers) {
		t.Fatalf("expected an API error, got %v", err)
	}
}

func TestFetchQuoteRejectsBadCredentials(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		t.Error("offers endpoint must not be called without a token")
	})
	client := NewAmadeus(AmadeusOptions{BaseURL: srv.URL, ClientID: "other", ClientSecret: "secret"}, zerolog.Nop())

	if _, err := client.FetchQuote(context.Background(), Request{Origin: "RUH", Destination: "JED", DepartureDate: departure}); err == nil {
		t.Fatal("expected token error")
	}

	missing := NewAmadeus(AmadeusOptions{BaseURL: srv.URL}, zerolog.Nop())
	if _, err := missing.FetchQuote(context.Background(), Request{Origin: "RUH", Destination: "JED", DepartureDate: departure}); err == nil {
		t.Fatal("expected missing credentials error")
	}
}

func TestFetchQuoteValidatesRequest(t *testing.T) {
	client := NewAmadeus(AmadeusOptions{ClientID: "id", ClientSecret: "secret"}, zerolog.Nop())
	if _, err := client.FetchQuote(context.Background(), Request{Origin: "RUH", DepartureDate: departure}); err == nil {
		t.Fatal("missing destination should fail")
	}
	if _, err := client.FetchQuote(context.Background(), Request{Origin: "RUH", Destination: "JED"}); err == nil {
		t.Fatal("missing date should fail")
	}
}
