package stores

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUsedCodeCache(t *testing.T) (*UsedCodeCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewUsedCodeCache(rdb, "test:otp", 90*time.Second), mr
}

func TestUsedCodeCacheRejectsReplayAndOlderCounters(t *testing.T) {
	cache, mr := newUsedCodeCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Consume(ctx, "u-1", 100))
	assert.ErrorIs(t, cache.Consume(ctx, "u-1", 100), ErrCodeAlreadyUsed)
	assert.ErrorIs(t, cache.Consume(ctx, "u-1", 99), ErrCodeAlreadyUsed)
	require.NoError(t, cache.Consume(ctx, "u-1", 101))

	require.NoError(t, cache.Consume(ctx, "u-2", 100), "users are tracked independently")
	assert.Equal(t, 90*time.Second, mr.TTL("test:otp:u-1"))
}

func TestUsedCodeCacheExpiresAndForgets(t *testing.T) {
	cache, mr := newUsedCodeCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Consume(ctx, "u-1", 5))
	mr.FastForward(91 * time.Second)
	require.NoError(t, cache.Consume(ctx, "u-1", 5))

	require.NoError(t, cache.Forget(ctx, "u-1"))
	require.NoError(t, cache.Consume(ctx, "u-1", 5))
}

func TestUsedCodeCacheSingleWinner(t *testing.T) {
	cache, _ := newUsedCodeCache(t)
	ctx := context.Background()

	const workers = 16
	var wins atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := cache.Consume(ctx, "u-1", 42); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
}
