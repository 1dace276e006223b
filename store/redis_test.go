package store_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	rediscon "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/stemformatics/mcp/store"
)

func Test_RedisCache(t *testing.T) {
	ctx := context.Background()
	redisContainer, err := rediscon.Run(ctx, "redis:7",
		testcontainers.WithConfigModifier(func(config *container.Config) {
			config.Env = []string{
				"ALLOW_EMPTY_PASSWORD=yes",
			}
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, redisContainer.Terminate(ctx))
	})

	state, err := redisContainer.State(ctx)
	require.NoError(t, err)
	require.True(t, state.Running)

	host, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	options, err := redis.ParseURL(host)
	require.NoError(t, err)

	client := redis.NewClient(options)
	rs := client.Ping(ctx)
	require.NoError(t, rs.Err(), "failed to connect to Redis")

	prefix := fmt.Sprintf("test-%d", time.Now().Unix())
	c := store.NewRedisCache(client, prefix, time.Minute)

	var calls atomic.Int32
	fetch := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte(`{"dataset_id":"2000"}`), nil
	}

	v, err := c.GetOrFetch(ctx, "fp1", fetch)
	require.NoError(t, err)
	assert.Equal(t, `{"dataset_id":"2000"}`, string(v))
	assert.Equal(t, int32(1), calls.Load())

	// Second call is served from Redis.
	v, err = c.GetOrFetch(ctx, "fp1", fetch)
	require.NoError(t, err)
	assert.Equal(t, `{"dataset_id":"2000"}`, string(v))
	assert.Equal(t, int32(1), calls.Load())

	// A second cache instance with the same prefix shares the entry.
	other := store.NewRedisCache(client, prefix, time.Minute)
	v, err = other.GetOrFetch(ctx, "fp1", fetch)
	require.NoError(t, err)
	assert.Equal(t, `{"dataset_id":"2000"}`, string(v))
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, c.Invalidate(ctx, "fp1"))
	_, err = c.GetOrFetch(ctx, "fp1", fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	require.NoError(t, c.Purge(ctx))
	_, err = c.GetOrFetch(ctx, "fp1", fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func Test_RedisCache_TTL(t *testing.T) {
	ctx := context.Background()
	redisContainer, err := rediscon.Run(ctx, "redis:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, redisContainer.Terminate(ctx))
	})

	host, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)
	options, err := redis.ParseURL(host)
	require.NoError(t, err)
	client := redis.NewClient(options)

	c := store.NewRedisCache(client, "ttl-test", time.Second)

	var calls atomic.Int32
	fetch := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("v"), nil
	}

	_, err = c.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := c.GetOrFetch(ctx, "k", fetch)
		return err == nil && calls.Load() == 2
	}, 5*time.Second, 200*time.Millisecond)
}
