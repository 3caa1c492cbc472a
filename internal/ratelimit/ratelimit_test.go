package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/templui/fileshare/internal/ratelimit"
)

func newLimiter(t *testing.T, limit int, window time.Duration) *ratelimit.Limiter {
	t.Helper()

	store := ratelimit.NewMemoryStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })

	l, err := ratelimit.New("test", store, limit, window)
	require.NoError(t, err)
	return l
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	store := ratelimit.NewMemoryStore(time.Hour)
	defer store.Close()

	_, err := ratelimit.New("x", nil, 1, time.Second)
	assert.ErrorIs(t, err, ratelimit.ErrStoreRequired)
	_, err = ratelimit.New("x", store, 0, time.Second)
	assert.ErrorIs(t, err, ratelimit.ErrInvalidLimit)
	_, err = ratelimit.New("x", store, 1, 0)
	assert.ErrorIs(t, err, ratelimit.ErrInvalidWindow)
}

func TestLimiterAllow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := newLimiter(t, 3, time.Minute)

	for i := range 3 {
		res, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.RetryAfter(), time.Duration(0))

	res, err = l.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "keys are independent")
}

func TestLimiterWindowSlides(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := newLimiter(t, 1, 30*time.Millisecond)

	res, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	time.Sleep(50 * time.Millisecond)

	res, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLimiterReserveAndRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := newLimiter(t, 2, time.Minute)

	res, release, err := l.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
	require.NoError(t, release(ctx))

	// The released slot is free again.
	for range 2 {
		res, _, err = l.Reserve(ctx, "k")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, release, err = l.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	require.NoError(t, release(ctx), "releasing a refused reservation is a no-op")

	require.NoError(t, l.Reset(ctx, "k"))
	res, _, err = l.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	_, err = l.Allow(ctx, "")
	assert.ErrorIs(t, err, ratelimit.ErrKeyRequired)
	_, _, err = l.Reserve(ctx, "")
	assert.ErrorIs(t, err, ratelimit.ErrKeyRequired)
}

func TestLimiterConcurrentReserve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := newLimiter(t, 5, time.Minute)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _, err := l.Reserve(ctx, "k")
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), allowed.Load())
}

func TestLimiterConcurrentAllow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := newLimiter(t, 10, time.Minute)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(ctx, "k")
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), allowed.Load())
}

func TestLimitersShareStoreByName(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := ratelimit.NewMemoryStore(time.Hour)
	defer store.Close()

	a, err := ratelimit.New("a", store, 1, time.Minute)
	require.NoError(t, err)
	b, err := ratelimit.New("b", store, 1, time.Minute)
	require.NoError(t, err)

	res, err := a.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = b.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
