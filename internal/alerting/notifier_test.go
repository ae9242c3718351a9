package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func sampleNotification() Notification {
	return Notification{
		SubscriptionID: 7,
		UserName:       "Sara",
		Phone:          "+966500000000",
		Origin:         "RUH",
		Destination:    "JED",
		TravelDate:     time.Date(2026, 11, 10, 0, 0, 0, 0, time.UTC),
		Price:          decimal.RequireFromString("480.40"),
		Currency:       "SAR",
		Carrier:        "SV",
		Action:         "book_now",
		Urgency:        "high",
		Message:        "Excellent time to book!",
		Channels:       []string{"whatsapp"},
	}
}

func TestWhatsAppNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instance1/messages/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sent": "true", "message": "ok"})
	}))
	defer srv.Close()

	notifier := NewWhatsAppNotifier("instance1", "secret", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if received["token"] != "secret" || received["to"] != "+966500000000" {
		t.Fatalf("unexpected payload: %#v", received)
	}
	if !strings.Contains(received["body"], "Riyadh -> Jeddah") {
		t.Fatalf("body missing city names: %q", received["body"])
	}
}

func TestWhatsAppNotifierGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "Wrong token"})
	}))
	defer srv.Close()

	notifier := NewWhatsAppNotifier("instance1", "bad", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), sampleNotification()); err == nil {
		t.Fatal("gateway error should be reported")
	}
}

func TestWhatsAppNotifierHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewWhatsAppNotifier("instance1", "secret", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), sampleNotification()); err == nil {
		t.Fatal("non-2xx should fail")
	}

	note := sampleNotification()
	note.Phone = ""
	if err := notifier.Notify(context.Background(), note); err == nil {
		t.Fatal("missing phone should fail")
	}
}

func TestRenderMessage(t *testing.T) {
	msg := RenderMessage(sampleNotification())
	for _, want := range []string{"Hello Sara", "Riyadh -> Jeddah", "Tue, 10 Nov 2026", "480 SAR", "Carrier: SV", "Excellent time to book!"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}

	note := sampleNotification()
	note.Origin, note.Destination, note.Carrier = "xyz", "JED", ""
	msg = RenderMessage(note)
	if !strings.Contains(msg, "XYZ -> Jeddah") || !strings.Contains(msg, "unspecified") {
		t.Errorf("fallbacks not applied:\n%s", msg)
	}
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(context.Context, Notification) error {
	f.calls++
	return errors.New("down")
}

func TestMultiNotifierReachesEveryNotifier(t *testing.T) {
	first, second := &failingNotifier{}, &failingNotifier{}
	multi := MultiNotifier{first, NewLogNotifier(zerolog.Nop()), second}
	if err := multi.Notify(context.Background(), sampleNotification()); err == nil {
		t.Fatal("expected first error")
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("calls: %d/%d", first.calls, second.calls)
	}
}

func TestMemoryCooldown(t *testing.T) {
	now := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	cd := NewMemoryCooldown(func() time.Time { return now })
	ctx := context.Background()
	key := CooldownKey(7, "book_now")

	if ok, _ := cd.Acquire(ctx, key, 12*time.Hour); !ok {
		t.Fatal("first acquire should pass")
	}
	if ok, _ := cd.Acquire(ctx, key, 12*time.Hour); ok {
		t.Fatal("second acquire within cooldown should be blocked")
	}
	if ok, _ := cd.Acquire(ctx, CooldownKey(7, "wait"), 12*time.Hour); !ok {
		t.Fatal("different action should not share the cooldown")
	}
	now = now.Add(12 * time.Hour)
	if ok, _ := cd.Acquire(ctx, key, 12*time.Hour); !ok {
		t.Fatal("acquire after expiry should pass")
	}
	if ok, _ := cd.Acquire(ctx, key, 0); !ok {
		t.Fatal("zero ttl disables the cooldown")
	}
}

func TestCooldownKey(t *testing.T) {
	if got := CooldownKey(42, "target_reached"); got != "farewatch:cooldown:42:target_reached" {
		t.Fatalf("got %q", got)
	}
}
