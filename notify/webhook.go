package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// SubjectHeader carries the event subject on webhook deliveries.
const SubjectHeader = "X-Automaton-Subject"

// Webhook implements automaton.Publisher by POSTing each event to a URL.
type Webhook struct {
	url        string
	httpClient *http.Client
}

// NewWebhook creates a publisher that delivers events to url.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Publish sends payload as a JSON POST. Any non-2xx response is an error.
func (w *Webhook) Publish(ctx context.Context, subject string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SubjectHeader, subject)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s: %s", w.url, resp.Status)
	}
	return nil
}
