// Package limiter implements fixed-window request limits on Redis counters.
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/wooogler/swag/internal/cache"
)

type ActionConfig struct {
	Limit  int64
	Window time.Duration
}

// Counter is the subset of the Redis cache the limiter needs.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

type Limiter struct {
	counter  Counter
	limits   map[string]ActionConfig
	fallback ActionConfig
}

type CheckResult struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
	ResetAt   int64 `json:"reset_at"`
	Limit     int64 `json:"limit"`
}

func NewLimiter(counter Counter, limits map[string]ActionConfig) *Limiter {
	return &Limiter{
		counter:  counter,
		limits:   limits,
		fallback: ActionConfig{Limit: 100, Window: time.Minute},
	}
}

func (l *Limiter) Check(ctx context.Context, clientID, action string) (*CheckResult, error) {
	config, ok := l.limits[action]
	if !ok {
		config = l.fallback
	}

	key := cache.RateKey(clientID, action)

	count, err := l.counter.Incr(ctx, key, config.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to increment counter: %w", err)
	}

	ttl, err := l.counter.TTL(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get TTL: %w", err)
	}
	if ttl < 0 {
		ttl = config.Window
	}

	remaining := config.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	return &CheckResult{
		Allowed:   count <= config.Limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl).Unix(),
		Limit:     config.Limit,
	}, nil
}
