package redis

import (
	"context"
	"fmt"
	"time"

	"restaurant-api/internal/client"
)

const registeredPhonesKey = "registered_phones"

// RegistryCache is an otp.Registry backed by a Redis set.
type RegistryCache struct {
	client *client.RedisClient
}

func NewRegistryCache(client *client.RedisClient) *RegistryCache {
	return &RegistryCache{client: client}
}

// Seed adds phones without reporting which were new.
func (c *RegistryCache) Seed(ctx context.Context, phones ...string) error {
	if len(phones) == 0 {
		return nil
	}
	members := make([]interface{}, len(phones))
	for i, p := range phones {
		members[i] = p
	}
	if _, err := c.client.SAdd(ctx, registeredPhonesKey, members...); err != nil {
		return fmt.Errorf("failed to seed registered phones: %w", err)
	}
	return nil
}

func (c *RegistryCache) IsRegistered(ctx context.Context, phone string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ok, err := c.client.SIsMember(ctx, registeredPhonesKey, phone)
	if err != nil {
		return false, fmt.Errorf("failed to check registration: %w", err)
	}
	return ok, nil
}

// MarkRegistered relies on SADD reporting 1 only for a new member.
func (c *RegistryCache) MarkRegistered(ctx context.Context, phone string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	added, err := c.client.SAdd(ctx, registeredPhonesKey, phone)
	if err != nil {
		return false, fmt.Errorf("failed to register phone: %w", err)
	}
	return added == 1, nil
}
