// Package cache provides the read-through entity cache that sits in front
// of subscriber and template lookups.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/notifyhub/step-engine/internal/domain"
)

// Entity names used in cache keys and metric labels.
const (
	EntitySubscriber = "subscriber"
	EntityTemplate   = "notification_template"
)

// SubscriberLookup is the backing store for subscribers.
type SubscriberLookup interface {
	FindBySubscriberID(ctx context.Context, environmentID, subscriberID string) (*domain.Subscriber, error)
}

// TemplateLookup is the backing store for notification templates.
type TemplateLookup interface {
	FindByID(ctx context.Context, templateID, environmentID string) (*domain.Template, error)
}

// Hooks carries metric callbacks injected by main. Nil fields are no-ops.
type Hooks struct {
	OnHit  func(entity string)
	OnMiss func(entity string)
}

// SubscriberKey builds the cache key of a subscriber. The environment is
// always part of the key so tenants never share entries.
func SubscriberKey(environmentID, subscriberID string) string {
	return fmt.Sprintf("entity:%s:e=%s:s=%s", EntitySubscriber, environmentID, subscriberID)
}

// TemplateKey builds the cache key of a notification template.
func TemplateKey(environmentID, templateID string) string {
	return fmt.Sprintf("entity:%s:e=%s:i=%s", EntityTemplate, environmentID, templateID)
}

// EntityCache is a read-through cache over subscriber and template lookups.
//
// Misses delegate to the backing lookup. Not-found results are never cached
// so a newly created entity is visible immediately. Values are invalidated
// externally when entities change; stale reads in between are tolerated.
type EntityCache struct {
	store       Store
	subscribers SubscriberLookup
	templates   TemplateLookup
	logger      *zap.Logger
	hooks       Hooks
}

func NewEntityCache(
	store Store,
	subscribers SubscriberLookup,
	templates TemplateLookup,
	logger *zap.Logger,
	hooks Hooks,
) *EntityCache {
	if hooks.OnHit == nil {
		hooks.OnHit = func(string) {}
	}
	if hooks.OnMiss == nil {
		hooks.OnMiss = func(string) {}
	}
	return &EntityCache{
		store:       store,
		subscribers: subscribers,
		templates:   templates,
		logger:      logger,
		hooks:       hooks,
	}
}

// GetSubscriber returns the subscriber with the given public id.
func (c *EntityCache) GetSubscriber(ctx context.Context, environmentID, subscriberID string) (*domain.Subscriber, error) {
	key := SubscriberKey(environmentID, subscriberID)
	return readThrough(ctx, c, EntitySubscriber, key, func() (*domain.Subscriber, error) {
		return c.subscribers.FindBySubscriberID(ctx, environmentID, subscriberID)
	})
}

// GetTemplate returns the notification template with the given id.
func (c *EntityCache) GetTemplate(ctx context.Context, environmentID, templateID string) (*domain.Template, error) {
	key := TemplateKey(environmentID, templateID)
	return readThrough(ctx, c, EntityTemplate, key, func() (*domain.Template, error) {
		return c.templates.FindByID(ctx, templateID, environmentID)
	})
}

func (c *EntityCache) InvalidateSubscriber(ctx context.Context, environmentID, subscriberID string) error {
	return c.store.Delete(ctx, SubscriberKey(environmentID, subscriberID))
}

func (c *EntityCache) InvalidateTemplate(ctx context.Context, environmentID, templateID string) error {
	return c.store.Delete(ctx, TemplateKey(environmentID, templateID))
}

// readThrough serves key from the store or populates it from load.
// Store faults degrade to a miss: the backing lookup stays authoritative.
func readThrough[T any](ctx context.Context, c *EntityCache, entity, key string, load func() (*T, error)) (*T, error) {
	log := c.logger.With(zap.String("cache_key", key))

	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		log.Warn("cache read failed, falling back to lookup", zap.Error(err))
	}
	if found {
		var v T
		decodeErr := json.Unmarshal(raw, &v)
		if decodeErr == nil {
			c.hooks.OnHit(entity)
			return &v, nil
		}
		log.Warn("discarding undecodable cache entry", zap.Error(decodeErr))
	}
	c.hooks.OnMiss(entity)

	v, err := load()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, domain.NotFound("%s %s", entity, key)
	}

	b, err := json.Marshal(v)
	if err != nil {
		log.Warn("cache encode failed", zap.Error(err))
		return v, nil
	}
	if err := c.store.Put(ctx, key, b); err != nil {
		log.Warn("cache write failed", zap.Error(err))
	}
	return v, nil
}
