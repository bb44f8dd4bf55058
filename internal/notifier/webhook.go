package notifier

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier posts JSON events to an HTTP endpoint.
type WebhookNotifier struct {
	URL     string
	Project string
	HTTP    *http.Client
}

type WebhookPayload struct {
	Project string `json:"project"`
	Event   string `json:"event"`
	Message string `json:"message"`
}

func NewWebhookNotifier(url, project string) *WebhookNotifier {
	return &WebhookNotifier{URL: url, Project: project, HTTP: &http.Client{Timeout: 5 * time.Second}}
}

func (w *WebhookNotifier) Notify(ctx context.Context, text string) error {
	return w.Send(ctx, WebhookPayload{Project: w.Project, Event: "message", Message: text})
}

func (w *WebhookNotifier) Send(ctx context.Context, payload WebhookPayload) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	client := w.HTTP
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
