package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medledger/billing/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*InMemoryIdempotencyStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	store := newInMemoryIdempotencyStore(clock.Now, time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func TestInMemoryIdempotencyStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, found, err := store.Lookup(ctx, "payments:k1")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err := store.Reserve(ctx, "payments:k1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, "payments:k1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second reservation must lose")

	result, found, err := store.Lookup(ctx, "payments:k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, result, "reserved but not completed")

	require.NoError(t, store.Complete(ctx, "payments:k1", "pay-123", time.Hour))
	result, found, err = store.Lookup(ctx, "payments:k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "pay-123", result)
}

func TestInMemoryIdempotencyStore_Release(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Reserve(ctx, "k", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "k"))

	ok, err := store.Reserve(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "released key can be claimed again")
	assert.NoError(t, store.Release(ctx, "never-reserved"))
}

func TestInMemoryIdempotencyStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	require.NoError(t, store.Complete(ctx, "k", "pay-1", time.Minute))
	clock.Advance(59 * time.Second)
	_, found, _ := store.Lookup(ctx, "k")
	assert.True(t, found)

	clock.Advance(time.Second)
	_, found, _ = store.Lookup(ctx, "k")
	assert.False(t, found, "expires exactly at ttl")

	ok, err := store.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	for i := 0; i < 5; i++ {
		_, err := store.Reserve(ctx, fmt.Sprintf("k%d", i), time.Minute)
		require.NoError(t, err)
	}
	_, err := store.Reserve(ctx, "long", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 6, store.Size())

	clock.Advance(2 * time.Minute)
	store.cleanup()
	assert.Equal(t, 1, store.Size())
}

func TestInMemoryIdempotencyStore_ConcurrentReserve(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := store.Reserve(ctx, "payments:same", time.Hour); err == nil && ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, winners.Load())
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestOpenIdempotencyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("redis disabled uses memory", func(t *testing.T) {
		store, err := OpenIdempotencyStore(ctx, config.RedisConfig{Enabled: false}, true, zap.NewNop())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	unreachable := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}

	t.Run("unreachable redis falls back", func(t *testing.T) {
		store, err := OpenIdempotencyStore(ctx, unreachable, false, zap.NewNop())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("required redis fails", func(t *testing.T) {
		_, err := OpenIdempotencyStore(ctx, unreachable, true, zap.NewNop())
		assert.Error(t, err)
	})
}
