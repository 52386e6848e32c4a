package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

// Limiter is a thin wrapper around github.com/vnmchuo/ratelimiter that
// budgets catalog writes per API key.
type Limiter struct {
	store extratelimit.Limiter
}

func NewLimiter(rdb *redis.Client, writesPerMinute int64) *Limiter {
	store := extratelimit.NewRedisStore(rdb,
		extratelimit.WithLimit(int(writesPerMinute)),
		extratelimit.WithWindow(time.Minute),
	)
	return &Limiter{store: store}
}

func NewTestLimiter(store extratelimit.Limiter) *Limiter {
	return &Limiter{store: store}
}

func key(apiKeyID string) string {
	return fmt.Sprintf("ratelimit:writes:%s", apiKeyID)
}

// Decision is the outcome of one write against a key's budget.
type Decision struct {
	Allowed    bool
	Remaining  int64
	ResetAfter time.Duration
}

// RetryAfter rounds the reset time up to whole seconds, or returns fallback
// when the store gave none.
func (d Decision) RetryAfter(fallback time.Duration) time.Duration {
	if d.ResetAfter <= 0 {
		return fallback
	}
	return (d.ResetAfter + time.Second - 1).Truncate(time.Second)
}

// AllowWrite consumes one write from the key's budget.
func (l *Limiter) AllowWrite(ctx context.Context, apiKeyID string) (Decision, error) {
	res, err := l.store.Allow(ctx, key(apiKeyID))
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: res.Allowed, Remaining: res.Remaining, ResetAfter: res.ResetAfter}, nil
}
