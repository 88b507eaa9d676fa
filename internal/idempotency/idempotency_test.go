package idempotency

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func exerciseGuard(t *testing.T, guard Guard) {
	ctx := context.Background()
	key := "checkout:" + uuid.NewString()

	ok, err := guard.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, guard.Release(ctx, key))
	ok, err = guard.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func exerciseConcurrentClaims(t *testing.T, guard Guard) {
	key := "checkout:" + uuid.NewString()
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := guard.Claim(context.Background(), key)
			if err == nil && ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestMemoryGuard(t *testing.T) {
	exerciseGuard(t, NewMemoryGuard())
	exerciseConcurrentClaims(t, NewMemoryGuard())
}

func TestMemoryGuard_Expiry(t *testing.T) {
	guard := NewMemoryGuard()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return now }

	ok, err := guard.Claim(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(keyTTL + time.Second)
	ok, err = guard.Claim(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryGuard_SweepsPeriodically(t *testing.T) {
	guard := NewMemoryGuard()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return now }
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		ok, err := guard.Claim(ctx, k)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Expired keys linger until the next sweep is due.
	now = now.Add(keyTTL + time.Second)
	guard.lastSweep = now
	_, err := guard.Claim(ctx, "d")
	require.NoError(t, err)
	assert.Len(t, guard.keys, 4)

	now = now.Add(sweepInterval)
	_, err = guard.Claim(ctx, "e")
	require.NoError(t, err)
	assert.Len(t, guard.keys, 2)
	assert.Contains(t, guard.keys, "d")
	assert.Contains(t, guard.keys, "e")
}

func TestRedisGuard(t *testing.T) {
	client := getRedisClient(t)
	exerciseGuard(t, NewRedisGuard(client))
	exerciseConcurrentClaims(t, NewRedisGuard(client))
}
