package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/triggerbox/triggerbox"
	"github.com/triggerbox/triggerbox/webhook"
)

// webhookModel is the JSON representation stored in Redis. The domain type
// hides the secret and owner from its own JSON form, so the storage model
// carries them explicitly.
type webhookModel struct {
	ID         string    `json:"webhook_id"`
	URL        string    `json:"url"`
	EventTypes []string  `json:"events"`
	Secret     string    `json:"secret"`
	Owner      string    `json:"owner"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

func toWebhookModel(wh *webhook.Webhook) *webhookModel {
	return &webhookModel{
		ID:         wh.ID,
		URL:        wh.URL,
		EventTypes: wh.EventTypes,
		Secret:     wh.Secret,
		Owner:      wh.Owner,
		IsActive:   wh.IsActive,
		CreatedAt:  wh.CreatedAt,
	}
}

func fromWebhookModel(m *webhookModel) *webhook.Webhook {
	return &webhook.Webhook{
		ID:         m.ID,
		URL:        m.URL,
		EventTypes: m.EventTypes,
		Secret:     m.Secret,
		Owner:      m.Owner,
		IsActive:   m.IsActive,
		CreatedAt:  m.CreatedAt,
	}
}

// CreateWebhook persists a new webhook and indexes it by owner.
func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	raw, err := marshalEntity(toWebhookModel(wh))
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, entityKey(prefixWebhook, wh.ID), raw, 0)
	pipe.ZAdd(ctx, zWebhookOwner+wh.Owner, goredis.Z{
		Score:  scoreFromTime(wh.CreatedAt),
		Member: wh.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("triggerbox/redis: create webhook: %w", err)
	}
	return nil
}

// GetWebhook returns a webhook by ID, including its secret.
func (s *Store) GetWebhook(ctx context.Context, webhookID string) (*webhook.Webhook, error) {
	var m webhookModel
	if err := s.getEntity(ctx, entityKey(prefixWebhook, webhookID), &m); err != nil {
		if isRedisNil(err) {
			return nil, triggerbox.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("triggerbox/redis: get webhook: %w", err)
	}
	return fromWebhookModel(&m), nil
}

// UpdateWebhook replaces an existing webhook.
func (s *Store) UpdateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	exists, err := s.rdb.Exists(ctx, entityKey(prefixWebhook, wh.ID)).Result()
	if err != nil {
		return fmt.Errorf("triggerbox/redis: update webhook: %w", err)
	}
	if exists == 0 {
		return triggerbox.ErrWebhookNotFound
	}

	raw, err := marshalEntity(toWebhookModel(wh))
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, entityKey(prefixWebhook, wh.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("triggerbox/redis: update webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes a webhook and its index entry. Missing webhooks are
// a no-op. The owner index entry is looked up from the stored entity first.
func (s *Store) DeleteWebhook(ctx context.Context, webhookID string) error {
	var m webhookModel
	if err := s.getEntity(ctx, entityKey(prefixWebhook, webhookID), &m); err != nil {
		if isRedisNil(err) {
			return nil
		}
		return fmt.Errorf("triggerbox/redis: delete webhook: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, entityKey(prefixWebhook, webhookID))
	pipe.ZRem(ctx, zWebhookOwner+m.Owner, webhookID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("triggerbox/redis: delete webhook: %w", err)
	}
	return nil
}

// ListWebhooks returns webhooks owned by a principal, newest first.
func (s *Store) ListWebhooks(ctx context.Context, owner string, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	ids, err := s.rdb.ZRevRange(ctx, zWebhookOwner+owner, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("triggerbox/redis: list webhooks: %w", err)
	}

	result := make([]*webhook.Webhook, 0, len(ids))
	for _, webhookID := range ids {
		var m webhookModel
		if err := s.getEntity(ctx, entityKey(prefixWebhook, webhookID), &m); err != nil {
			if isRedisNil(err) {
				// Entity deleted out of band; prune the index entry.
				s.rdb.ZRem(ctx, zWebhookOwner+owner, webhookID)
				continue
			}
			return nil, fmt.Errorf("triggerbox/redis: list webhooks get: %w", err)
		}
		if opts.IsActive != nil && m.IsActive != *opts.IsActive {
			continue
		}
		result = append(result, fromWebhookModel(&m))
		if opts.Limit > 0 && len(result) >= opts.Limit {
			break
		}
	}
	return result, nil
}
