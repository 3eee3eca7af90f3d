package services

import (
	"context"
	"testing"
	"time"

	"github.com/nexconsult/mca-verify/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheService_MemoryFallback(t *testing.T) {
	ctx := context.Background()
	c := NewCacheService(nil, time.Hour, logger.Discard())

	_, err := c.Get(ctx, "mca:din-status:01234567")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "mca:din-status:01234567", `{"status":"SUCCEEDED"}`))
	v, err := c.Get(ctx, "mca:din-status:01234567")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"SUCCEEDED"}`, v)

	exists, err := c.Exists(ctx, "mca:din-status:01234567")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "mca:din-status:01234567"))
	_, err = c.Get(ctx, "mca:din-status:01234567")
	assert.ErrorIs(t, err, ErrCacheMiss)

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats["hits"])
	assert.EqualValues(t, 2, stats["misses"])
}

func TestCacheService_ExpiredEntries(t *testing.T) {
	ctx := context.Background()
	c := NewCacheService(nil, time.Hour, logger.Discard())

	require.NoError(t, c.SetWithTTL(ctx, "job:1", "x", -time.Second))
	_, err := c.Get(ctx, "job:1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.SetWithTTL(ctx, "job:2", "y", -time.Second))
	c.cleanupExpired()
	stats, _ := c.GetStats(ctx)
	assert.Equal(t, 0, stats["memory"].(map[string]interface{})["size"])
}

func TestCacheService_HealthWithoutRedis(t *testing.T) {
	c := NewCacheService(nil, time.Hour, logger.Discard())
	health := c.Health()
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "disabled", health["redis"].(map[string]interface{})["status"])
}
