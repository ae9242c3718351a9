package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fare-alerts/internal/logging"
)

// WhatsAppNotifier sends chat messages through the UltraMsg gateway.
type WhatsAppNotifier struct {
	instanceID string
	token      string
	baseURL    string
	client     *http.Client
	logger     zerolog.Logger
}

// NewWhatsAppNotifier constructs a WhatsApp notifier.
func NewWhatsAppNotifier(instanceID, token, baseURL string, timeout time.Duration, logger zerolog.Logger) *WhatsAppNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.ultramsg.com"
	}

	return &WhatsAppNotifier{
		instanceID: instanceID,
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		logger:     logging.Component(logger, "alert_whatsapp"),
	}
}

// Notify posts the rendered message to messages/chat.
func (n *WhatsAppNotifier) Notify(ctx context.Context, note Notification) error {
	if strings.TrimSpace(note.Phone) == "" {
		return fmt.Errorf("subscription %d has no phone number", note.SubscriptionID)
	}

	payload := map[string]string{
		"token": n.token,
		"to":    note.Phone,
		"body":  RenderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages/chat", n.baseURL, n.instanceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp gateway returned status %d", resp.StatusCode)
	}

	var result struct {
		Sent  string `json:"sent"`
		Error any    `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if result.Error != nil {
			return fmt.Errorf("whatsapp gateway error: %v", result.Error)
		}
		if result.Sent != "" && result.Sent != "true" {
			return fmt.Errorf("whatsapp gateway returned sent=%s", result.Sent)
		}
	}

	n.logger.Info().
		Int64("subscription_id", note.SubscriptionID).
		Str("action", note.Action).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("notification sent (WhatsApp)")
	return nil
}

var _ Notifier = (*WhatsAppNotifier)(nil)
