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

func setupRedis(t *testing.T) *Cache {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	c := NewFromClient(redis.NewClient(&redis.Options{Addr: endpoint}))
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Health(ctx))
	return c
}

func TestCache_Completions(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	_, ok, err := c.GetCompletion(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetCompletion(ctx, "k1", `[{"Test_ID":"TC-001"}]`, time.Minute))
	require.NoError(t, c.SetEmbedding(ctx, "k1", []float32{1}, time.Minute))

	got, ok, err := c.GetCompletion(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"Test_ID":"TC-001"}]`, got)

	// the prefixes keep the two caches apart
	require.NoError(t, c.InvalidateCompletions(ctx))
	_, ok, err = c.GetCompletion(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.GetEmbedding(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_Embeddings(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	_, ok, err := c.GetEmbedding(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetEmbedding(ctx, "k1", []float32{0.25, -1, 3}, time.Minute))

	got, ok, err := c.GetEmbedding(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float32{0.25, -1, 3}, got)

	require.NoError(t, c.InvalidateEmbeddings(ctx))
	_, ok, err = c.GetEmbedding(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_CheckRateLimit(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		allowed, count, err := c.CheckRateLimit(ctx, "ip:10.0.0.1", 2)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.Equal(t, i <= 2, allowed)
	}

	ttl, err := c.Client().TTL(ctx, PrefixRateLimit+"ip:10.0.0.1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, RateLimitWindow)
}
