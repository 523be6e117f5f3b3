// Package cache holds the redis-backed public profile cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "profile:"
	DefaultTTL = 5 * time.Minute
)

// Profile is the cached part of a public profile. Photo URLs are presigned
// per read, so only the object key is stored.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	PhotoKey    string `json:"photo_key"`
}

// ProfileCache caches profiles by user ID
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProfileCache creates a profile cache; ttl <= 0 uses DefaultTTL
func NewProfileCache(client *redis.Client, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ProfileCache{client: client, ttl: ttl}
}

func key(userID string) string {
	return keyPrefix + userID
}

// Get returns the cached profile. ok is false on a miss.
func (c *ProfileCache) Get(ctx context.Context, userID string) (profile *Profile, ok bool, err error) {
	raw, err := c.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		// a corrupt entry is treated as a miss and overwritten by the next Set
		return nil, false, nil
	}
	return &p, true, nil
}

// Set stores a profile with the cache TTL
func (c *ProfileCache) Set(ctx context.Context, p *Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := c.client.Set(ctx, key(p.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache profile: %w", err)
	}
	return nil
}

// Delete evicts a profile
func (c *ProfileCache) Delete(ctx context.Context, userID string) error {
	return c.client.Del(ctx, key(userID)).Err()
}
