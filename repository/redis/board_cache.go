package redis

import (
	"context"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fieldops/backend/usecase/jobs"
)

type boardCache struct {
	client *redislib.Client
	ttl    time.Duration
}

// NewBoardCache returns a Redis-backed cache for dispatch-board pages.
// Entries are short-lived and dropped wholesale per tenant on any mutation.
func NewBoardCache(client *redislib.Client, ttl time.Duration) jobs.BoardCache {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &boardCache{client: client, ttl: ttl}
}

func (c *boardCache) GetPage(ctx context.Context, key string) ([]byte, bool) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return payload, true
}

func (c *boardCache) SetPage(ctx context.Context, tenant, key string, payload []byte) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, payload, c.ttl)
	// Track keys per tenant so invalidation does not need SCAN.
	pipe.SAdd(ctx, indexKey(tenant), key)
	pipe.Expire(ctx, indexKey(tenant), c.ttl*4)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *boardCache) Invalidate(ctx context.Context, tenant string) error {
	keys, err := c.client.SMembers(ctx, indexKey(tenant)).Result()
	if err != nil {
		if err == redislib.Nil {
			return nil
		}
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	keys = append(keys, indexKey(tenant))
	return c.client.Del(ctx, keys...).Err()
}

func indexKey(tenant string) string {
	return "board-index:" + tenant
}
