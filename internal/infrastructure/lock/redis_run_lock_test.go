//go:build integration

package lock

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

func newRedisClient(t *testing.T) *redis.Client {
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
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRunLock(t *testing.T) {
	client := newRedisClient(t)
	l := NewRedisRunLockWithClient(client, "test:")
	ctx := context.Background()

	require.NoError(t, l.Ping(ctx))

	ok, err := l.Acquire(ctx, "tenant", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(ctx, "tenant", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := client.TTL(ctx, "test:tenant").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, l.Release(ctx, "tenant", "b"))
	owner, err := client.Get(ctx, "test:tenant").Result()
	require.NoError(t, err)
	assert.Equal(t, "a", owner, "a foreign release must not free the key")

	require.NoError(t, l.Release(ctx, "tenant", "a"))
	ok, err = l.Acquire(ctx, "tenant", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("another instance cannot release", func(t *testing.T) {
		other := NewRedisRunLockWithClient(client, "test:")
		require.NoError(t, other.Release(ctx, "tenant", "b"))

		owner, err := client.Get(ctx, "test:tenant").Result()
		require.NoError(t, err)
		assert.Equal(t, "b", owner)
	})
}

func TestRedisRunLock_Expiry(t *testing.T) {
	client := newRedisClient(t)
	l := NewRedisRunLockWithClient(client, "")
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "tenant", "a", 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		ok, err := l.Acquire(ctx, "tenant", "b", time.Minute)
		return err == nil && ok
	}, 3*time.Second, 50*time.Millisecond)

	// the expired holder's release leaves the new owner alone
	require.NoError(t, l.Release(ctx, "tenant", "a"))
	ok, err = l.Acquire(ctx, "tenant", "c", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisRunLock_Refresh(t *testing.T) {
	client := newRedisClient(t)
	l := NewRedisRunLockWithClient(client, "")
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "tenant", "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Refresh(ctx, "tenant", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := client.PTTL(ctx, "lock:tenant").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 10*time.Second)

	ok, err = l.Refresh(ctx, "tenant", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "only the owner can refresh")

	require.NoError(t, client.Del(ctx, "lock:tenant").Err())
	ok, err = l.Refresh(ctx, "tenant", "a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a lost key cannot be refreshed")
}
