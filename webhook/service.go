package webhook

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/triggerbox/triggerbox/id"
	"github.com/triggerbox/triggerbox/signature"
)

// Service provides webhook management operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a webhook service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Create registers a new webhook for the given owner. The webhook starts
// active. When no secret is supplied one is generated; either way the secret
// is returned exactly once, on the created webhook, and never serialized
// afterwards.
func (svc *Service) Create(ctx context.Context, owner string, in Input) (*Webhook, error) {
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}
	if len(in.EventTypes) == 0 {
		return nil, &ValidationError{Field: "events", Message: "at least one event type required (or \"*\")"}
	}
	for _, t := range in.EventTypes {
		if t == "" {
			return nil, &ValidationError{Field: "events", Message: "event types must be non-empty"}
		}
	}

	secret := in.Secret
	if secret == "" {
		secret = signature.GenerateSecret()
	} else if len(secret) < MinSecretLen {
		return nil, &ValidationError{Field: "secret", Message: "must be at least 16 characters"}
	}

	wh := &Webhook{
		ID:         id.NewWebhookID(),
		URL:        in.URL,
		EventTypes: in.EventTypes,
		Secret:     secret,
		Owner:      owner,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}

	if err := svc.store.CreateWebhook(ctx, wh); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "webhook created",
		"webhook_id", wh.ID, "url", wh.URL, "events", wh.EventTypes)
	return wh, nil
}

// Get returns a webhook by ID.
func (svc *Service) Get(ctx context.Context, webhookID string) (*Webhook, error) {
	if _, err := id.Parse(webhookID); err != nil {
		return nil, &ValidationError{Field: "webhook_id", Message: "must be a UUID"}
	}
	return svc.store.GetWebhook(ctx, webhookID)
}

// Update modifies a webhook's URL, subscriptions or active flag. The secret
// cannot be changed after creation.
func (svc *Service) Update(ctx context.Context, webhookID string, in Input) (*Webhook, error) {
	wh, err := svc.Get(ctx, webhookID)
	if err != nil {
		return nil, err
	}

	if in.URL != "" {
		if err := validateURL(in.URL); err != nil {
			return nil, err
		}
		wh.URL = in.URL
	}
	if len(in.EventTypes) > 0 {
		wh.EventTypes = in.EventTypes
	}
	if in.IsActive != nil {
		wh.IsActive = *in.IsActive
	}

	if err := svc.store.UpdateWebhook(ctx, wh); err != nil {
		return nil, err
	}
	return wh, nil
}

// Delete removes a webhook. Idempotent.
func (svc *Service) Delete(ctx context.Context, webhookID string) error {
	if _, err := id.Parse(webhookID); err != nil {
		return &ValidationError{Field: "webhook_id", Message: "must be a UUID"}
	}
	return svc.store.DeleteWebhook(ctx, webhookID)
}

// List returns webhooks owned by a principal.
func (svc *Service) List(ctx context.Context, owner string, opts ListOpts) ([]*Webhook, error) {
	return svc.store.ListWebhooks(ctx, owner, opts)
}

// FindMatching returns the active webhooks owned by the ingesting principal
// that subscribe to the given event type. This is the fan-out selection run
// on every successful event creation.
func (svc *Service) FindMatching(ctx context.Context, owner, eventType string) ([]*Webhook, error) {
	active := true
	hooks, err := svc.store.ListWebhooks(ctx, owner, ListOpts{IsActive: &active})
	if err != nil {
		return nil, err
	}

	matched := hooks[:0]
	for _, wh := range hooks {
		if wh.Subscribes(eventType) {
			matched = append(matched, wh)
		}
	}
	return matched, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return &ValidationError{Field: "url", Message: "required"}
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "url", Message: "must be an absolute http(s) URL"}
	}
	return nil
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "webhook validation: " + e.Field + ": " + e.Message
}
