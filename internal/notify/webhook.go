package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookPlugin POSTs alarm state to contact addresses that are URLs. It
// claims any medium whose name ends in "url" ("pagerUrl", "hookUrl", ...).
type WebhookPlugin struct {
	client *http.Client
}

// NewWebhookPlugin builds the plugin with the given request timeout.
func NewWebhookPlugin(timeout time.Duration) *WebhookPlugin {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookPlugin{client: &http.Client{Timeout: timeout}}
}

func (p *WebhookPlugin) AcceptsMedium(medium string) bool {
	return strings.HasSuffix(strings.ToLower(medium), "url")
}

// webhookPayload is the wire shape delivered to the hook.
type webhookPayload struct {
	AlarmID   int64  `json:"alarmId"`
	User      string `json:"user"`
	Closed    bool   `json:"closed"`
	NumEvents int    `json:"numEvents"`
	Clear     bool   `json:"clear,omitempty"`
	EventTime string `json:"eventTime,omitempty"`
}

func (p *WebhookPlugin) Notify(ctx context.Context, n Notification) error {
	payload := webhookPayload{
		AlarmID:   n.Alarm.ID,
		User:      n.Alarm.User,
		Closed:    n.Alarm.Closed,
		NumEvents: n.Alarm.NumEvents,
	}
	if n.Event != nil {
		payload.Clear = n.Event.Clear
		payload.EventTime = n.Event.Time.UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Contact.Address,
		bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %q returned status %d", n.Contact.Address, resp.StatusCode)
	}
	return nil
}
