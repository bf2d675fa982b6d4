// Package governor evaluates permissions and enforces usage quotas. It is
// the single gate in front of the request pipeline; every denial it issues
// is audited.
package governor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore holds windowed usage counters. Incr must be atomic against
// concurrent callers for the same key; read-then-write implementations lose
// updates under races and are not acceptable here.
type CounterStore interface {
	Incr(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}

// windowFor maps a quota dimension to its current window label and TTL.
// Labels use UTC so counters stay stable across host timezones.
func windowFor(dimension string, now time.Time) (string, time.Duration) {
	now = now.UTC()
	switch {
	case strings.HasSuffix(dimension, "_per_hour"):
		return now.Format("2006010215"), time.Hour
	case strings.HasSuffix(dimension, "_per_day"):
		return now.Format("20060102"), 24 * time.Hour
	default:
		// Monthly dimensions (cost caps).
		return now.Format("200601"), 31 * 24 * time.Hour
	}
}

func counterKey(scope, dimension, window string) string {
	return "quota:" + scope + ":" + dimension + ":" + window
}

// ───────────────────────── Redis counter store ─────────────────────────

// RedisCounterStore uses INCRBY so increments are atomic server-side; the
// TTL equals the quota window, so stale counters self-expire.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore connects using a redis URL.
func NewRedisCounterStore(url string) (*RedisCounterStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCounterStore{client: redis.NewClient(opts)}, nil
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, amount)
	// NX: only the first increment of a window sets the expiry.
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

// ───────────────────────── In-memory counter store ─────────────────────────

// MemoryCounterStore is the development/test fallback. A single mutex keeps
// increments atomic; expiry is checked lazily on access.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*memCounter
}

type memCounter struct {
	value     int64
	expiresAt time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[string]*memCounter)}
}

func (s *MemoryCounterStore) Incr(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	c, ok := s.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &memCounter{expiresAt: now.Add(ttl)}
		s.counters[key] = c
	}
	c.value += amount
	return c.value, nil
}

func (s *MemoryCounterStore) Get(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || time.Now().After(c.expiresAt) {
		return 0, nil
	}
	return c.value, nil
}
