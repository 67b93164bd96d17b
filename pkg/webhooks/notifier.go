// Package webhooks delivers upload events to a configured sink. Delivery is
// fire-and-forget from the uploader's point of view: the coordinator logs
// failures and never surfaces them.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cratehub/crate/pkg/registry"
)

// envelope is the wire form of one delivery. The delivery ID lets the sink
// deduplicate if we ever retry.
type envelope struct {
	ID string `json:"id"`
	registry.UploadEvent
}

// Notifier POSTs upload events to a single webhook URL.
type Notifier struct {
	url    string
	client *http.Client
}

// NewNotifier creates a notifier for the given sink URL.
func NewNotifier(url string) *Notifier {
	return &Notifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify implements registry.Notifier.
func (n *Notifier) Notify(ctx context.Context, event registry.UploadEvent) error {
	body, err := json.Marshal(envelope{
		ID:          uuid.NewString(),
		UploadEvent: event,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
