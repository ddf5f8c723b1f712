package redis

import (
	"context"
	"fmt"
	"time"

	"restaurant-api/internal/client"
	"restaurant-api/internal/ratelimit"
	"restaurant-api/internal/util"
)

const rateLimitPrefix = "rate_limit:"

// RateLimitCache is a ratelimit.Limiter shared by every instance behind the
// load balancer.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

func (c *RateLimitCache) Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count, ttl, err := c.client.IncrWithExpire(ctx, rateLimitPrefix+key, window)
	if err != nil {
		util.Error("Failed to increment rate limit counter",
			util.String("key", key),
			util.ErrorField(err))
		return ratelimit.Decision{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if ttl < 0 {
		ttl = window
	}
	return ratelimit.Decide(count, limit, ttl), nil
}
