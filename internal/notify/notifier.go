// Package notify is the boundary to the notification collaborator. Delivery
// is fire-and-forget: failures are logged by callers and never block a
// lifecycle transition.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Notifier sends a templated message to a phone number or email address.
type Notifier interface {
	SendTemplated(ctx context.Context, recipient, template string, data map[string]string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, recipient, template string, data map[string]string) error

func (f NotifierFunc) SendTemplated(ctx context.Context, recipient, template string, data map[string]string) error {
	return f(ctx, recipient, template, data)
}

// HTTPNotifier posts the message to the notification gateway.
type HTTPNotifier struct {
	address string
	client  *http.Client
}

func NewHTTPNotifier(address string, client *http.Client) *HTTPNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPNotifier{address: address, client: client}
}

func (n *HTTPNotifier) SendTemplated(ctx context.Context, recipient, template string, data map[string]string) error {
	body, err := json.Marshal(map[string]any{
		"recipient": recipient,
		"template":  template,
		"data":      data,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.address+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification gateway returned %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier writes notifications to the log. Used in dev and tests.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) SendTemplated(_ context.Context, recipient, template string, data map[string]string) error {
	n.Logger.Info("notification sent",
		"recipient", recipient,
		"template", template,
		"data", data,
	)
	return nil
}
