package types

import (
	"time"

	"github.com/rs/xid"

	"github.com/meshboardio/meshboard/util"
)

// Webhook event names deliveries can subscribe to
const (
	WebhookEventPostCreated    = "post.created"
	WebhookEventPostUpdated    = "post.updated"
	WebhookEventCommentCreated = "comment.created"
)

// Webhook is an outbound delivery target registered on a project
type Webhook struct {
	ID        string `gorm:"primaryKey"`
	ProjectID string `gorm:"index"`
	URL       string
	Events    []string `gorm:"serializer:json"`
	// Secret, when set, signs the delivery body with HMAC-SHA256
	Secret         string `json:"-"`
	Active         bool
	CreatedBy      string
	CreatedAt      time.Time
	LastStatus     string
	LastDeliveryAt *time.Time
}

// TableName returns the table name for GORM
func (Webhook) TableName() string {
	return "webhooks"
}

// Subscribed is true if the webhook is active and listens for the given event
func (w *Webhook) Subscribed(event string) bool {
	return w.Active && util.Contains(w.Events, event)
}

// Copy creates a deep copy of the Webhook
func (w *Webhook) Copy() *Webhook {
	events := make([]string, len(w.Events))
	copy(events, w.Events)
	var lastDelivery *time.Time
	if w.LastDeliveryAt != nil {
		t := *w.LastDeliveryAt
		lastDelivery = &t
	}
	return &Webhook{
		ID:             w.ID,
		ProjectID:      w.ProjectID,
		URL:            w.URL,
		Events:         events,
		Secret:         w.Secret,
		Active:         w.Active,
		CreatedBy:      w.CreatedBy,
		CreatedAt:      w.CreatedAt,
		LastStatus:     w.LastStatus,
		LastDeliveryAt: lastDelivery,
	}
}

// EventMeta returns activity event meta related to the webhook
func (w *Webhook) EventMeta() map[string]any {
	return map[string]any{"url": w.URL, "events": w.Events, "project_id": w.ProjectID}
}

// WebhookEvents returns the deliverable event names
func WebhookEvents() []string {
	return []string{WebhookEventPostCreated, WebhookEventPostUpdated, WebhookEventCommentCreated}
}

// NewWebhookID generates a new webhook ID using xid
func NewWebhookID() string {
	return xid.New().String()
}
