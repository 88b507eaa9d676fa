// Package idempotency remembers request keys so that retried checkouts are not executed twice.
package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "idempotency:"
	keyTTL        = 24 * time.Hour
	sweepInterval = time.Minute
)

var ErrDuplicateRequest = errors.New("duplicate request")

// Guard claims keys. Claim reports false when the key is already held.
type Guard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisGuard stores keys in Redis with a 24 hour TTL.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, keyPrefix+key, 1, keyTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, keyPrefix+key).Err()
}

// MemoryGuard keeps keys in process memory. An expired key counts as free at once; expired keys
// are purged by Claim at most once per sweepInterval.
type MemoryGuard struct {
	mu        sync.Mutex
	keys      map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		keys: make(map[string]time.Time),
		ttl:  keyTTL,
		now:  time.Now,
	}
}

func (g *MemoryGuard) Claim(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastSweep) >= sweepInterval {
		for k, expires := range g.keys {
			if now.After(expires) {
				delete(g.keys, k)
			}
		}
		g.lastSweep = now
	}

	if expires, held := g.keys[key]; held && !now.After(expires) {
		return false, nil
	}
	g.keys[key] = now.Add(g.ttl)
	return true, nil
}

func (g *MemoryGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}
