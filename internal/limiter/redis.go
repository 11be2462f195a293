package limiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/and161185/jobsmv/internal/crypto"
)

const redisPrefix = "jobsmv:rl:"

// Redis is a sliding-window limiter over a sorted set per key, shared by all instances.
type Redis struct {
	rdb redis.UniversalClient
	now func() time.Time
}

// NewRedis constructs a Redis-backed limiter.
func NewRedis(rdb redis.UniversalClient) *Redis {
	return &Redis{rdb: rdb, now: time.Now}
}

// Allow implements Limiter. Rejected hits are not counted against the window.
func (l *Redis) Allow(ctx context.Context, key string, rule Rule) (bool, time.Duration, error) {
	now := l.now()
	k := redisPrefix + key
	nonce, err := crypto.RandToken(6)
	if err != nil {
		return false, 0, err
	}
	// millisecond scores stay exact in a float64
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + nonce
	floor := now.Add(-rule.Window).UnixMilli()

	var card *redis.IntCmd
	_, err = l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(floor, 10))
		p.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		card = p.ZCard(ctx, k)
		p.PExpire(ctx, k, rule.Window)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if card.Val() <= int64(rule.Limit) {
		return true, 0, nil
	}

	if err := l.rdb.ZRem(ctx, k, member).Err(); err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}
	oldest, err := l.rdb.ZRangeWithScores(ctx, k, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return false, rule.Window, nil
	}
	retry := time.UnixMilli(int64(oldest[0].Score)).Add(rule.Window).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return false, retry, nil
}
