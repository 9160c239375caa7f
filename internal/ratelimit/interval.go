package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const DefaultInterval = time.Second

var _ RateLimiter = (*IntervalLimiter)(nil)

// IntervalLimiter grants at most one dispatch per interval for each account
// within this process.
type IntervalLimiter struct {
	interval time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewIntervalLimiter(interval time.Duration) *IntervalLimiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &IntervalLimiter{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *IntervalLimiter) Allow(ctx context.Context, account string) (bool, error) {
	limiter, err := l.limiterFor(account)
	if err != nil {
		return false, err
	}
	return limiter.Allow(), nil
}

func (l *IntervalLimiter) Wait(ctx context.Context, account string) error {
	limiter, err := l.limiterFor(account)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return limiter.Wait(ctx)
}

func (l *IntervalLimiter) limiterFor(account string) (*rate.Limiter, error) {
	key := strings.ToLower(strings.TrimSpace(account))
	if key == "" {
		return nil, fmt.Errorf("account is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.interval), 1)
		l.limiters[key] = limiter
	}
	return limiter, nil
}
