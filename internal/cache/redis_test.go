package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// setupRedis 启动 Redis 容器，无可用容器环境或 -short 时跳过
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client, err := NewRedisClient(ctx, opts.Addr, opts.DB)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisCache_RoundTrip(t *testing.T) {
	client := setupRedis(t)
	c := NewRedisCache(client)
	ctx := context.Background()
	key := Key("linear", "15", "BTCUSDT")

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	candles := testCandles("BTCUSDT", 3)
	candles[2].Confirm = true
	require.NoError(t, c.Set(ctx, key, candles, time.Minute))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, candles, got)

	ttl, err := client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.InDelta(t, time.Minute.Seconds(), ttl.Seconds(), 2)

	require.NoError(t, c.Set(ctx, key, nil, 0))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_CorruptValue(t *testing.T) {
	client := setupRedis(t)
	c := NewRedisCache(client)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "klines:linear:15:BAD", "not json", time.Minute).Err())
	_, ok, err := c.Get(ctx, "klines:linear:15:BAD")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisClient(ctx, "127.0.0.1:1", 0)
	assert.Error(t, err)
}
