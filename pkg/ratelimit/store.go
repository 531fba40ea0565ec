package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Store counts hits per key inside fixed windows.
type Store interface {
	// Incr records one hit for key and returns the hit count in the current
	// window together with the time the window ends.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
	// Peek returns the hit count of the current window without recording a
	// hit. A key with no live window reports zero.
	Peek(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
	// Reset drops the counter for key.
	Reset(ctx context.Context, key string) error
}

type bucket struct {
	mu      sync.Mutex
	count   int64
	resetAt time.Time
}

// MemoryStore keeps counters in process, bounded per window by an expirable LRU.
type MemoryStore struct {
	size int
	now  func() time.Time

	mu      sync.Mutex
	windows map[time.Duration]*expirable.LRU[string, *bucket]
}

// NewMemoryStore keeps at most size keys per distinct window length.
func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = 10000
	}
	return &MemoryStore{
		size:    size,
		now:     time.Now,
		windows: make(map[time.Duration]*expirable.LRU[string, *bucket]),
	}
}

func (s *MemoryStore) cache(window time.Duration) *expirable.LRU[string, *bucket] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.windows[window]
	if !ok {
		c = expirable.NewLRU[string, *bucket](s.size, nil, window)
		s.windows[window] = c
	}
	return c
}

// Incr implements Store.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if window <= 0 {
		return 0, time.Time{}, fmt.Errorf("ratelimit: window must be positive")
	}
	c := s.cache(window)
	now := s.now()

	s.mu.Lock()
	b, ok := c.Get(key)
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(window)}
		c.Add(key, b)
	}
	s.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	return b.count, b.resetAt, nil
}

// Peek implements Store.
func (s *MemoryStore) Peek(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if window <= 0 {
		return 0, time.Time{}, fmt.Errorf("ratelimit: window must be positive")
	}
	c := s.cache(window)

	s.mu.Lock()
	b, ok := c.Peek(key)
	s.mu.Unlock()
	if !ok {
		return 0, time.Time{}, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !s.now().Before(b.resetAt) {
		return 0, time.Time{}, nil
	}
	return b.count, b.resetAt, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.windows {
		c.Remove(key)
	}
	return nil
}

// RedisStore shares counters between instances through Redis INCR/PEXPIRE.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore builds a Redis backed store; keys are namespaced by prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Incr implements Store.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if window <= 0 {
		return 0, time.Time{}, fmt.Errorf("ratelimit: window must be positive")
	}
	fullKey := fmt.Sprintf("%s:%s", s.prefix, key)

	count, err := s.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("incr %s: %w", fullKey, err)
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, fullKey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("pexpire %s: %w", fullKey, err)
		}
		return count, time.Now().Add(window), nil
	}

	ttl, err := s.client.PTTL(ctx, fullKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("pttl %s: %w", fullKey, err)
	}
	if ttl < 0 {
		// Key lost its expiry (crash between INCR and PEXPIRE); restart the window.
		if err := s.client.PExpire(ctx, fullKey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("pexpire %s: %w", fullKey, err)
		}
		ttl = window
	}
	return count, time.Now().Add(ttl), nil
}

// Peek implements Store.
func (s *RedisStore) Peek(ctx context.Context, key string, _ time.Duration) (int64, time.Time, error) {
	fullKey := fmt.Sprintf("%s:%s", s.prefix, key)

	count, err := s.client.Get(ctx, fullKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("get %s: %w", fullKey, err)
	}

	ttl, err := s.client.PTTL(ctx, fullKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("pttl %s: %w", fullKey, err)
	}
	if ttl < 0 {
		return count, time.Time{}, nil
	}
	return count, time.Now().Add(ttl), nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	fullKey := fmt.Sprintf("%s:%s", s.prefix, key)
	if err := s.client.Del(ctx, fullKey).Err(); err != nil {
		return fmt.Errorf("del %s: %w", fullKey, err)
	}
	return nil
}
