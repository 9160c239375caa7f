package ratelimit

import "context"

// RateLimiter paces outbound dispatches per channel account.
type RateLimiter interface {
	Allow(ctx context.Context, account string) (bool, error)
	Wait(ctx context.Context, account string) error
}
