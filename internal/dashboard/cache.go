package dashboard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ViewCache stores rendered views. Implementations may drop entries at any
// time.
type ViewCache interface {
	Get(ctx context.Context, key string) (*View, bool, error)
	Set(ctx context.Context, key string, view *View) error
}

type noCache struct{}

func (noCache) Get(context.Context, string) (*View, bool, error) { return nil, false, nil }
func (noCache) Set(context.Context, string, *View) error         { return nil }

// cacheKey scopes a query to one published snapshot. Replicas sharing a Redis
// never read each other's views, and a new snapshot makes every older key
// unreachable; TTL reclaims them.
func cacheKey(snapshotID string, q Query) (string, error) {
	raw, err := json.Marshal(q)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return snapshotID + ":" + hex.EncodeToString(sum[:]), nil
}

// RedisViewCache keeps views as JSON in Redis.
type RedisViewCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisViewCache(client *redis.Client, ttl time.Duration) *RedisViewCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisViewCache{client: client, prefix: "dashboard:view:", ttl: ttl}
}

func (c *RedisViewCache) Get(ctx context.Context, key string) (*View, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var view View
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, false, fmt.Errorf("dashboard: decode cached view: %w", err)
	}
	return &view, true, nil
}

func (c *RedisViewCache) Set(ctx context.Context, key string, view *View) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("dashboard: encode view: %w", err)
	}
	return c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err()
}
