package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/attendance-notifier/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimit    int64 = 1
	defaultInterval       = time.Second
	backoffStep           = 50 * time.Millisecond
	backoffMax            = 250 * time.Millisecond
)

var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter paces dispatches for a channel account across every
// process sharing the Redis instance: at most limit sends per fixed window.
type RedisRateLimiter struct {
	client   *goredis.Client
	limit    int64
	interval time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	script   *goredis.Script
}

func NewRedisRateLimiter(client *goredis.Client, interval time.Duration) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(
		client,
		defaultLimit,
		interval,
		time.Now,
		sleepWithContext,
	)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limit int64,
	interval time.Duration,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if interval < time.Millisecond {
		interval = defaultInterval
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:   client,
		limit:    limit,
		interval: interval,
		now:      nowFn,
		sleep:    sleepFn,
		script:   allowScript,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, account string) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedAccount := strings.ToLower(strings.TrimSpace(account))
	if normalizedAccount == "" {
		return false, fmt.Errorf("account is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	windowMillis := r.interval.Milliseconds()
	window := r.now().UTC().UnixMilli() / windowMillis
	key := fmt.Sprintf("dispatch-pace:%s:%d", normalizedAccount, window)
	result, err := r.script.Run(ctx, r.client, []string{key}, r.limit, windowMillis).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

func (r *RedisRateLimiter) Wait(ctx context.Context, account string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := backoffStep
	for {
		allowed, err := r.Allow(ctx, account)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff += backoffStep
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
