package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
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

func newTestCache(staleTime time.Duration) (*QueryCache, *fakeClock) {
	clock := newFakeClock()
	c := NewQueryCache(staleTime)
	c.now = clock.Now
	return c, clock
}

func TestFetchCoalescesConcurrentCallers(t *testing.T) {
	cache, _ := newTestCache(time.Minute)

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(context.Context) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "value", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 8)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _, _ = cache.Fetch(context.Background(), "posts", fn)
	}()
	<-started

	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, _ = cache.Fetch(context.Background(), "posts", fn)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "value", r)
	}
}

func TestFetchFreshnessWindow(t *testing.T) {
	cache, clock := newTestCache(time.Minute)
	ctx := context.Background()

	var calls int
	fn := func(context.Context) (any, error) {
		calls++
		return calls, nil
	}

	v, cached, err := cache.Fetch(ctx, "posts", fn)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, v)

	clock.Advance(59 * time.Second)
	v, cached, err = cache.Fetch(ctx, "posts", fn)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, v)

	clock.Advance(time.Second)
	v, cached, err = cache.Fetch(ctx, "posts", fn)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, v)
}

func TestZeroStaleTimeAlwaysRefetches(t *testing.T) {
	cache, _ := newTestCache(0)

	var calls int
	fn := func(context.Context) (any, error) {
		calls++
		return calls, nil
	}
	cache.Fetch(context.Background(), "k", fn)
	cache.Fetch(context.Background(), "k", fn)
	assert.Equal(t, 2, calls)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	cache, _ := newTestCache(time.Minute)
	ctx := context.Background()

	var calls int
	fn := func(context.Context) (any, error) {
		calls++
		return calls, nil
	}

	cache.Fetch(ctx, "posts", fn)
	assert.True(t, cache.IsFresh("posts"))

	cache.Invalidate("posts")
	assert.False(t, cache.IsFresh("posts"))
	v, status, _ := cache.Peek("posts")
	assert.Equal(t, 1, v, "stale value stays readable")
	assert.Equal(t, StatusSuccess, status)

	v, cached, err := cache.Fetch(ctx, "posts", fn)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, v)
}

func TestInvalidateDuringFetchDiscardsOldResult(t *testing.T) {
	cache, _ := newTestCache(time.Minute)
	ctx := context.Background()

	oldStarted := make(chan struct{})
	releaseOld := make(chan struct{})
	oldDone := make(chan any, 1)
	go func() {
		v, _, _ := cache.Fetch(ctx, "post:1", func(context.Context) (any, error) {
			close(oldStarted)
			<-releaseOld
			return "before update", nil
		})
		oldDone <- v
	}()
	<-oldStarted

	cache.Invalidate("post:1")

	var newCalls int
	v, cached, err := cache.Fetch(ctx, "post:1", func(context.Context) (any, error) {
		newCalls++
		return "after update", nil
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, newCalls, "a fetch after invalidation must not join the older call")
	assert.Equal(t, "after update", v)

	close(releaseOld)
	assert.Equal(t, "before update", <-oldDone)

	v, status, _ := cache.Peek("post:1")
	assert.Equal(t, "after update", v)
	assert.Equal(t, StatusSuccess, status)
	assert.True(t, cache.IsFresh("post:1"))
}

func TestCallerCancellationKeepsSharedFetch(t *testing.T) {
	cache, _ := newTestCache(time.Minute)

	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, _, err := cache.Fetch(ctx, "posts", func(fetchCtx context.Context) (any, error) {
			<-release
			if err := fetchCtx.Err(); err != nil {
				return nil, err
			}
			return "done", nil
		})
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		_, status, _ := cache.Peek("posts")
		return status == StatusLoading
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return cache.IsFresh("posts") }, time.Second, time.Millisecond)
	v, _, _ := cache.Peek("posts")
	assert.Equal(t, "done", v)
}

func TestErrorsAreNotCached(t *testing.T) {
	cache, _ := newTestCache(time.Minute)
	ctx := context.Background()
	boom := errors.New("boom")

	_, _, err := cache.Fetch(ctx, "posts", func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	_, status, storedErr := cache.Peek("posts")
	assert.Equal(t, StatusError, status)
	assert.ErrorIs(t, storedErr, boom)

	v, cached, err := cache.Fetch(ctx, "posts", func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "ok", v)
}

func TestRemoveClearAndClose(t *testing.T) {
	cache, _ := newTestCache(time.Minute)
	ctx := context.Background()
	fn := func(context.Context) (any, error) { return 1, nil }

	cache.Fetch(ctx, "posts", fn)
	cache.Fetch(ctx, "post:1", fn)

	cache.Remove("post:1")
	_, status, _ := cache.Peek("post:1")
	assert.Equal(t, StatusIdle, status)
	assert.True(t, cache.IsFresh("posts"))

	cache.Clear()
	assert.False(t, cache.IsFresh("posts"))

	require.NoError(t, cache.Close())
	_, _, err := cache.Fetch(ctx, "posts", fn)
	assert.ErrorIs(t, err, ErrCacheClosed)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "inactive", StatusInactive.String())
	assert.Equal(t, "loading", StatusLoading.String())
	assert.Equal(t, "pending", MutationPending.String())
}
