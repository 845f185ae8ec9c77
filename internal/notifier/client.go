// Package notifier delivers human-readable outcome messages over an
// outbound webhook. Delivery is best-effort: callers log failures and
// move on, because the membership decision that triggered the message is
// already committed.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/frekv/gatekeeper/internal/config"
	"github.com/frekv/gatekeeper/pkg/logger"
)

// Event types carried in notifications.
const (
	EventApplicationApproved = "application_approved"
	EventApplicationRejected = "application_rejected"
	EventApplicationExpired  = "application_expired"
	EventApplicationBanned   = "application_banned"
	EventMemberExcluded      = "member_excluded"
	EventAmnestyApplied      = "amnesty_applied"
)

// Event is an outcome message addressed to a user (by platform identity).
type Event struct {
	Type   string  `json:"type"`
	Text   string  `json:"text"`
	Fields []Field `json:"fields,omitempty"`
}

// Field is a short labeled value rendered with the message.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Notifier is the capability the decision engines consume.
type Notifier interface {
	Notify(ctx context.Context, platformID string, event Event) error
}

// Client posts events to a webhook endpoint.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new notifier client.
func NewClient(cfg *config.NotifierConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// payload is the webhook wire format.
type payload struct {
	Channel string  `json:"channel,omitempty"`
	UserID  string  `json:"user_id"`
	Type    string  `json:"type"`
	Text    string  `json:"text"`
	Fields  []Field `json:"fields,omitempty"`
}

// Notify delivers one event to one user.
func (c *Client) Notify(ctx context.Context, platformID string, event Event) error {
	if !c.enabled {
		c.log.Debug().Str("type", event.Type).Msg("Notifier is disabled, skipping message")
		return nil
	}

	body, err := json.Marshal(payload{
		Channel: c.channel,
		UserID:  platformID,
		Type:    event.Type,
		Text:    event.Text,
		Fields:  event.Fields,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("user", platformID).
		Str("type", event.Type).
		Msg("Notification sent")
	return nil
}
