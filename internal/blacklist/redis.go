package blacklist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "jobsmv:bl:"

// Redis is a Blacklist shared by every server instance. Each jti is a key
// whose TTL equals the token's remaining lifetime.
type Redis struct {
	rdb redis.UniversalClient
	now func() time.Time
}

// NewRedis constructs a Redis-backed blacklist.
func NewRedis(rdb redis.UniversalClient) *Redis {
	return &Redis{rdb: rdb, now: time.Now}
}

// Add implements Blacklist.
func (r *Redis) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := r.rdb.Set(ctx, keyPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("blacklist add: %w", err)
	}
	return nil
}

// Contains implements Blacklist.
func (r *Redis) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return n == 1, nil
}
