// Package limiter implements per-key sliding-window rate limiting with an
// escalating cooldown: once a window limit is breached, the key is blocked
// for a longer fixed period regardless of window resets.
package limiter

import (
	"context"
	"fmt"
	"time"
)

// Decision is the outcome of a single rate-limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	InCooldown bool
}

// BucketConfig configures one named bucket (e.g. "code", "download").
type BucketConfig struct {
	Limit    int
	Window   time.Duration
	Cooldown time.Duration
}

// Store provides the atomic counter operations. Correctness under
// concurrency is the store's responsibility; the Redis implementation
// must be used when more than one server instance runs.
type Store interface {
	// Hit records an attempt and reports whether it fits the window.
	// resetAfter is how long until the window frees a slot (only
	// meaningful when allowed is false).
	Hit(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, resetAfter time.Duration, err error)
	// SetCooldown blocks the key for d.
	SetCooldown(ctx context.Context, key string, d time.Duration) error
	// CooldownRemaining returns the remaining cooldown, zero if none.
	CooldownRemaining(ctx context.Context, key string) (time.Duration, error)
}

// Limiter checks named buckets against a Store.
type Limiter struct {
	store   Store
	buckets map[string]BucketConfig
}

// New creates a Limiter over the given store
func New(store Store) *Limiter {
	return &Limiter{store: store, buckets: make(map[string]BucketConfig)}
}

// SetBucket registers or replaces a bucket configuration
func (l *Limiter) SetBucket(name string, cfg BucketConfig) {
	l.buckets[name] = cfg
}

// Allow decides whether one more attempt from key is permitted in bucket.
// The cooldown check runs first and short-circuits; breaching the window
// limit triggers the cooldown. Allow itself never writes audit records;
// that is the caller's job.
func (l *Limiter) Allow(ctx context.Context, bucket, key string) (Decision, error) {
	cfg, ok := l.buckets[bucket]
	if !ok {
		return Decision{Allowed: true}, fmt.Errorf("unknown rate limit bucket %q", bucket)
	}

	windowKey := fmt.Sprintf("dl:ratelimit:%s:%s", bucket, key)
	cooldownKey := fmt.Sprintf("dl:cooldown:%s:%s", bucket, key)

	remaining, err := l.store.CooldownRemaining(ctx, cooldownKey)
	if err != nil {
		return Decision{Allowed: true}, err
	}
	if remaining > 0 {
		return Decision{
			Limit:      cfg.Limit,
			RetryAfter: remaining,
			InCooldown: true,
		}, nil
	}

	allowed, left, resetAfter, err := l.store.Hit(ctx, windowKey, cfg.Limit, cfg.Window)
	if err != nil {
		return Decision{Allowed: true}, err
	}
	if allowed {
		return Decision{Allowed: true, Limit: cfg.Limit, Remaining: left}, nil
	}

	// Window breached: escalate. The cooldown outlives any window reset.
	if err := l.store.SetCooldown(ctx, cooldownKey, cfg.Cooldown); err != nil {
		return Decision{Allowed: true}, err
	}

	retry := cfg.Cooldown
	if resetAfter > retry {
		retry = resetAfter
	}
	return Decision{
		Limit:      cfg.Limit,
		RetryAfter: retry,
		InCooldown: true,
	}, nil
}
