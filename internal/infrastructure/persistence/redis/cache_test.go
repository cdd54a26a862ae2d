package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youlearn/youlearn-progress/internal/application/query"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "stats:u1", StatsKey("u1"))
	assert.Equal(t, "lock:progress:u1", LockKey("progress:u1"))
	assert.Equal(t, "pubsub:achievement.unlocked", PubSubChannel("achievement.unlocked"))
}

func TestConfigOptions_URL(t *testing.T) {
	opts, err := Config{URL: "redis://:secret@cache.local:6380/2"}.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache.local:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	_, err = Config{URL: "not a url"}.Options()
	assert.ErrorIs(t, err, ErrCacheConnection)
}

// newTestCache connects to REDIS_TEST_URL or skips.
func newTestCache(t *testing.T) *Cache {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	c, err := NewCache(context.Background(), Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestStatsCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	sc := NewStatsCache(c, time.Minute)
	userID := "redis-test-" + time.Now().Format("150405.000000")

	var got query.Stats
	hit, err := sc.GetStats(ctx, userID, &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, sc.SetStats(ctx, userID, &query.Stats{UserID: userID, TotalXP: 130, Level: 2}))
	hit, err = sc.GetStats(ctx, userID, &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 130, got.TotalXP)

	require.NoError(t, sc.Invalidate(ctx, userID))
	hit, err = sc.GetStats(ctx, userID, &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestLock_Exclusive(t *testing.T) {
	c := newTestCache(t)
	l := NewLock(c, time.Second)
	key := "redis-test-lock-" + time.Now().Format("150405.000000")

	unlock, err := l.Lock(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, key)
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	unlock2, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	unlock2()
}
