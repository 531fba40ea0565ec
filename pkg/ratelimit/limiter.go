package ratelimit

import (
	"context"
	"math"
	"time"
)

// Policy is a named fixed-window limit.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Decision describes the outcome of a single check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns whole seconds until the window resets, at least one.
func (d Decision) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(d.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter applies policies against a Store.
type Limiter struct {
	store Store
}

// NewLimiter wraps store.
func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store}
}

// Allow counts one hit for key under policy. Store errors are returned with an
// allowing decision so callers can fail open.
func (l *Limiter) Allow(ctx context.Context, policy Policy, key string) (Decision, error) {
	decision := Decision{Allowed: true, Limit: policy.Limit, Remaining: policy.Limit}
	if policy.Limit <= 0 || policy.Window <= 0 {
		return decision, nil
	}

	count, resetAt, err := l.store.Incr(ctx, policy.Name+":"+key, policy.Window)
	if err != nil {
		return decision, err
	}

	decision.ResetAt = resetAt
	decision.Remaining = policy.Limit - int(count)
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	decision.Allowed = count <= int64(policy.Limit)
	return decision, nil
}
