package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// webhookTimeout bounds one notification delivery; a host that cannot
// be reached in time is treated as unavailable so the dispatcher falls
// back to the durable queue.
const webhookTimeout = 10 * time.Second

// Webhook delivers outbound channel notifications to a host
// application that attached over HTTP rather than in process. Its
// Notify method is a NotificationFunc.
type Webhook struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewWebhook creates a webhook notifier posting to url.
func NewWebhook(url string, log zerolog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
		log:    log,
	}
}

type webhookEnvelope struct {
	Method  string `json:"method"`
	Payload any    `json:"payload"`
}

// Notify posts one named notification to the host's callback URL. Any
// non-2xx response is an error.
func (w *Webhook) Notify(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(webhookEnvelope{Method: method, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s notification: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s notification: %w", method, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("deliver %s notification: host returned %s", method, resp.Status)
	}
	w.log.Debug().Str("method", method).Msg("Notification delivered to host callback")
	return nil
}
