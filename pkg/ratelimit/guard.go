package ratelimit

import (
	"context"
	"time"
)

// FailurePolicy locks a key out once it has failed more than FreeRetries
// times inside Window. The lockout lasts until the window ends.
type FailurePolicy struct {
	Name        string
	FreeRetries int
	Window      time.Duration
}

// Guard counts failed attempts per key. Only failures are recorded, and a
// success clears the counter. A nil Guard allows everything.
type Guard struct {
	store  Store
	policy FailurePolicy
}

// NewGuard builds a Guard over store. A nil store or a policy without a
// window yields a nil Guard.
func NewGuard(store Store, policy FailurePolicy) *Guard {
	if store == nil || policy.Window <= 0 {
		return nil
	}
	if policy.FreeRetries < 0 {
		policy.FreeRetries = 0
	}
	return &Guard{store: store, policy: policy}
}

// Check reports whether key may attempt again without recording anything.
func (g *Guard) Check(ctx context.Context, key string) (Decision, error) {
	if g == nil {
		return Decision{Allowed: true}, nil
	}
	count, resetAt, err := g.store.Peek(ctx, g.key(key), g.policy.Window)
	if err != nil {
		return Decision{Allowed: true, Limit: g.policy.FreeRetries, Remaining: g.policy.FreeRetries}, err
	}
	return g.decide(count, resetAt), nil
}

// Fail records one failed attempt for key.
func (g *Guard) Fail(ctx context.Context, key string) (Decision, error) {
	if g == nil {
		return Decision{Allowed: true}, nil
	}
	count, resetAt, err := g.store.Incr(ctx, g.key(key), g.policy.Window)
	if err != nil {
		return Decision{Allowed: true, Limit: g.policy.FreeRetries, Remaining: g.policy.FreeRetries}, err
	}
	return g.decide(count, resetAt), nil
}

// Succeed clears the failures recorded for key.
func (g *Guard) Succeed(ctx context.Context, key string) error {
	if g == nil {
		return nil
	}
	return g.store.Reset(ctx, g.key(key))
}

func (g *Guard) key(key string) string {
	return g.policy.Name + ":" + key
}

func (g *Guard) decide(count int64, resetAt time.Time) Decision {
	remaining := g.policy.FreeRetries - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(g.policy.FreeRetries),
		Limit:     g.policy.FreeRetries,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
