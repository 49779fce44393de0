//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return redis.NewClient(&redis.Options{Addr: endpoint})
}

func TestRedisIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	store := NewRedisIdempotencyStoreWithClient(client, "test:")
	defer store.Close()

	require.NoError(t, store.Ping(ctx))

	ok, err := store.Reserve(ctx, "payments:k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, "payments:k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	result, found, err := store.Lookup(ctx, "payments:k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, result)

	require.NoError(t, store.Complete(ctx, "payments:k", "pay-9", time.Minute))
	result, _, err = store.Lookup(ctx, "payments:k")
	require.NoError(t, err)
	assert.Equal(t, "pay-9", result)

	ttl, err := client.TTL(ctx, "test:payments:k").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Release(ctx, "payments:k"))
	_, found, err = store.Lookup(ctx, "payments:k")
	require.NoError(t, err)
	assert.False(t, found)
}
