package webhook

import "context"

// Store defines the persistence contract for webhook subscriptions.
type Store interface {
	// CreateWebhook persists a new webhook.
	CreateWebhook(ctx context.Context, wh *Webhook) error

	// GetWebhook returns a webhook by ID, including its secret.
	// Returns ErrWebhookNotFound when absent.
	GetWebhook(ctx context.Context, webhookID string) (*Webhook, error)

	// UpdateWebhook replaces an existing webhook.
	UpdateWebhook(ctx context.Context, wh *Webhook) error

	// DeleteWebhook removes a webhook. Deleting a missing webhook is not an
	// error.
	DeleteWebhook(ctx context.Context, webhookID string) error

	// ListWebhooks returns webhooks owned by a principal, newest first.
	ListWebhooks(ctx context.Context, owner string, opts ListOpts) ([]*Webhook, error)
}
