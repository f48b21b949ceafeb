package redis

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a sliding-window limiter backed by one sorted set per key,
// shared by every process talking to the same Redis.
type RateLimiter struct {
	client *redis.Client
	clock  clockwork.Clock
	limit  int
	window time.Duration
	seq    atomic.Uint64
}

func NewRateLimiter(client *redis.Client, clock clockwork.Clock, limit int, window time.Duration) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{client: client, clock: clock, limit: limit, window: window}
}

func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	now := l.clock.Now()
	k := rateKey(key)
	cutoff := strconv.FormatInt(now.Add(-l.window).UnixNano(), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", cutoff)
	card := pipe.ZCard(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	if card.Val() >= int64(l.limit) {
		return false, nil
	}

	pipe = l.client.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixNano()), Member: member(now, l.seq.Add(1))})
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}
