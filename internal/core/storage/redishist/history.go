// Package redishist caches each user's recent events in a bounded Redis
// list so the history read path does not hit the relational store on
// every request. The cache is best effort: any Redis failure falls back
// to the durable event store.
package redishist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	v1 "github.com/matheusfrade/alfa-loyalty-api-sub000/internal/api/v1"
	"github.com/matheusfrade/alfa-loyalty-api-sub000/internal/core/storage"
)

const (
	keyPrefix      = "loyalty:history:"
	defaultMaxLen  = 100
	defaultKeyTTL  = 24 * time.Hour
	defaultTimeout = 3 * time.Second
)

// Cache wraps an EventStore with a Redis-backed recent-history read path.
type Cache struct {
	client *redis.Client
	store  storage.EventStore
	maxLen int64
	ttl    time.Duration
}

// New creates the cache over an existing Redis client and the durable
// store it shadows.
func New(client *redis.Client, store storage.EventStore) *Cache {
	if store == nil {
		panic("redishist: event store must not be nil")
	}
	return &Cache{
		client: client,
		store:  store,
		maxLen: defaultMaxLen,
		ttl:    defaultKeyTTL,
	}
}

// SaveEvent writes through to the durable store, then pushes the event
// onto the user's bounded history list. Cache failures are logged, never
// returned: history freshness is not worth failing ingestion over.
func (c *Cache) SaveEvent(ctx context.Context, event *v1.Event) error {
	if err := c.store.SaveEvent(ctx, event); err != nil {
		return err
	}
	if c.client == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("[RedisHistory] Failed to encode event", "event_id", event.ID, "error", err)
		return nil
	}

	key := keyPrefix + event.UserID
	cacheCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	pipe := c.client.TxPipeline()
	pipe.LPush(cacheCtx, key, payload)
	pipe.LTrim(cacheCtx, key, 0, c.maxLen-1)
	pipe.Expire(cacheCtx, key, c.ttl)
	if _, err := pipe.Exec(cacheCtx); err != nil {
		slog.Warn("[RedisHistory] Failed to cache event", "user_id", event.UserID, "error", err)
	}
	return nil
}

// RetrieveUserEvents serves history from the cache when possible, newest
// first, falling back to the durable store on a miss or error.
func (c *Cache) RetrieveUserEvents(ctx context.Context, userID string, limit int) ([]*v1.Event, error) {
	if c.client == nil {
		return c.store.RetrieveUserEvents(ctx, userID, limit)
	}
	if limit <= 0 || int64(limit) > c.maxLen {
		limit = int(c.maxLen)
	}

	cacheCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	raw, err := c.client.LRange(cacheCtx, keyPrefix+userID, 0, int64(limit)-1).Result()
	if err != nil || len(raw) == 0 {
		if err != nil && err != redis.Nil {
			slog.Warn("[RedisHistory] Cache read failed, falling back", "user_id", userID, "error", err)
		}
		return c.store.RetrieveUserEvents(ctx, userID, limit)
	}

	events := make([]*v1.Event, 0, len(raw))
	for _, item := range raw {
		var evt v1.Event
		if err := json.Unmarshal([]byte(item), &evt); err != nil {
			return nil, fmt.Errorf("corrupt cached event for user %s: %w", userID, err)
		}
		events = append(events, &evt)
	}
	return events, nil
}

// Ping verifies Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}
