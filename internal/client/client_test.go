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

	"github.com/leafsii/postboard-backend/internal/posts"
)

// fakeTransport keeps posts in a map and counts calls.
type fakeTransport struct {
	mu     sync.Mutex
	posts  map[int64]posts.Post
	nextID int64

	listCalls atomic.Int32
	getCalls  atomic.Int32
	// gate, when set, blocks ListPosts until closed
	gate   chan struct{}
	failOn string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{posts: make(map[int64]posts.Post)}
}

var errFake = &APIError{Status: 503, Code: CodeUnavailable, Message: "service temporarily unavailable"}

func (f *fakeTransport) fail(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == op {
		return errFake
	}
	return nil
}

func (f *fakeTransport) ListPosts(ctx context.Context) ([]posts.Post, error) {
	f.listCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if err := f.fail("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]posts.Post, 0, len(f.posts))
	for id := f.nextID; id > 0; id-- {
		if p, ok := f.posts[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeTransport) GetPost(ctx context.Context, id int64) (*posts.Post, error) {
	f.getCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, &APIError{Status: 404, Code: CodeNotFound, Message: "post not found"}
	}
	return &p, nil
}

func (f *fakeTransport) CreatePost(ctx context.Context, in posts.CreatePostInput) (*posts.Post, error) {
	if err := f.fail("create"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p := posts.Post{ID: f.nextID, Title: in.Title, Body: in.Body}
	f.posts[p.ID] = p
	return &p, nil
}

func (f *fakeTransport) UpdatePost(ctx context.Context, id int64, in posts.UpdatePostInput) (*posts.Post, error) {
	if err := f.fail("update"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, &APIError{Status: 404, Code: CodeNotFound, Message: "post not found"}
	}
	in.Apply(&p)
	f.posts[id] = p
	return &p, nil
}

func (f *fakeTransport) DeletePost(ctx context.Context, id int64) error {
	if err := f.fail("delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[id]; !ok {
		return &APIError{Status: 404, Code: CodeNotFound, Message: "post not found"}
	}
	delete(f.posts, id)
	return nil
}

func newTestClient(t *testing.T) (*Client, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	c := NewWithTransport(transport, time.Minute, nil)
	t.Cleanup(func() { c.Close() })
	return c, transport
}

func TestPostsSecondReadIsCached(t *testing.T) {
	c, transport := newTestClient(t)
	ctx := context.Background()

	first := c.Posts(ctx)
	require.Equal(t, StatusSuccess, first.Status)
	assert.False(t, first.Cached)
	assert.Empty(t, first.Data)

	second := c.Posts(ctx)
	assert.Equal(t, StatusSuccess, second.Status)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), transport.listCalls.Load())
}

func TestPostsConcurrentReadsShareOneFetch(t *testing.T) {
	c, transport := newTestClient(t)
	transport.gate = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, StatusSuccess, c.Posts(context.Background()).Status)
		}()
	}

	require.Eventually(t, func() bool { return transport.listCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(transport.gate)
	wg.Wait()

	assert.Equal(t, int32(1), transport.listCalls.Load())
}

func TestPostInvalidIDIsInactive(t *testing.T) {
	c, transport := newTestClient(t)
	ctx := context.Background()

	for _, res := range []Result[*posts.Post]{
		c.Post(ctx, 0),
		c.Post(ctx, -4),
		c.PostFromParam(ctx, ""),
		c.PostFromParam(ctx, "abc"),
		c.PostFromParam(ctx, "0"),
	} {
		assert.Equal(t, StatusInactive, res.Status)
		assert.NoError(t, res.Err)
		assert.Nil(t, res.Data)
	}
	assert.Equal(t, int32(0), transport.getCalls.Load())
}

func TestPostErrorIsSurfaced(t *testing.T) {
	c, _ := newTestClient(t)

	res := c.PostFromParam(context.Background(), "42")
	assert.Equal(t, StatusError, res.Status)
	assert.True(t, IsNotFound(res.Err))
	assert.Equal(t, "post not found", res.Err.Error())
}

func TestCanceledCallerGetsNothing(t *testing.T) {
	c, transport := newTestClient(t)
	transport.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result[[]posts.Post], 1)
	go func() { done <- c.Posts(ctx) }()

	require.Eventually(t, func() bool { return transport.listCalls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	res := <-done
	assert.Equal(t, StatusIdle, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Nil(t, res.Data)

	close(transport.gate)
	require.Eventually(t, func() bool { return c.Cache().IsFresh(ListKey()) }, time.Second, time.Millisecond)
}

func TestCreateInvalidatesListBeforeOnSuccess(t *testing.T) {
	c, transport := newTestClient(t)
	ctx := context.Background()
	c.Posts(ctx)
	require.True(t, c.Cache().IsFresh(ListKey()))

	var freshAtCallback bool
	m := c.CreatePost(MutationHooks[*posts.Post]{
		OnSuccess: func(*posts.Post) { freshAtCallback = c.Cache().IsFresh(ListKey()) },
	})
	assert.Equal(t, MutationIdle, m.Status())

	created, err := m.Mutate(ctx, posts.CreatePostInput{Title: "Hi", Body: "World"})
	require.NoError(t, err)
	assert.False(t, freshAtCallback)
	assert.Equal(t, MutationSuccess, m.Status())
	assert.Equal(t, created, m.Data())

	list := c.Posts(ctx)
	assert.False(t, list.Cached)
	require.Len(t, list.Data, 1)
	assert.Equal(t, int32(2), transport.listCalls.Load())
}

func TestFailedMutationLeavesCache(t *testing.T) {
	c, transport := newTestClient(t)
	ctx := context.Background()
	c.Posts(ctx)
	transport.failOn = "create"

	var gotErr error
	m := c.CreatePost(MutationHooks[*posts.Post]{
		OnSuccess: func(*posts.Post) { t.Error("OnSuccess must not run") },
		OnError:   func(err error) { gotErr = err },
	})

	_, err := m.Mutate(ctx, posts.CreatePostInput{Title: "a", Body: "b"})
	require.Error(t, err)
	assert.Equal(t, err, gotErr)
	assert.Equal(t, MutationError, m.Status())
	assert.Equal(t, "service temporarily unavailable", m.Err().Error())
	assert.True(t, c.Cache().IsFresh(ListKey()))

	m.Reset()
	assert.Equal(t, MutationIdle, m.Status())
	assert.NoError(t, m.Err())
}

func TestUpdateRefreshesListAndPost(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	created, err := c.CreatePost(MutationHooks[*posts.Post]{}).Mutate(ctx, posts.CreatePostInput{Title: "Old", Body: "b"})
	require.NoError(t, err)

	require.Equal(t, "Old", c.Posts(ctx).Data[0].Title)
	require.Equal(t, "Old", c.Post(ctx, created.ID).Data.Title)

	title := "New"
	_, err = c.UpdatePost(MutationHooks[*posts.Post]{}).Mutate(ctx, UpdateArgs{ID: created.ID, Data: posts.UpdatePostInput{Title: &title}})
	require.NoError(t, err)

	list := c.Posts(ctx)
	assert.False(t, list.Cached)
	assert.Equal(t, "New", list.Data[0].Title)

	single := c.Post(ctx, created.ID)
	assert.False(t, single.Cached)
	assert.Equal(t, "New", single.Data.Title)
}

func TestDeleteDropsPost(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	created, err := c.CreatePost(MutationHooks[*posts.Post]{}).Mutate(ctx, posts.CreatePostInput{Title: "t", Body: "b"})
	require.NoError(t, err)
	c.Post(ctx, created.ID)
	c.Posts(ctx)

	var deleted int64
	_, err = c.DeletePost(MutationHooks[int64]{OnSuccess: func(id int64) { deleted = id }}).Mutate(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, deleted)

	_, status, _ := c.Cache().Peek(PostKey(created.ID))
	assert.Equal(t, StatusIdle, status)
	assert.False(t, c.Cache().IsFresh(ListKey()))
	assert.Empty(t, c.Posts(ctx).Data)
}

func TestMutationStateFollowsLatestCall(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	m := newMutation(func(ctx context.Context, in int) (int, error) {
		if calls.Add(1) == 1 {
			<-release
			return 0, errors.New("slow call failed")
		}
		return in, nil
	}, nil, MutationHooks[int]{})

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		m.Mutate(context.Background(), 1)
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, MutationPending, m.Status())

	out, err := m.Mutate(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, out)

	close(release)
	<-slowDone
	assert.Equal(t, MutationSuccess, m.Status())
	assert.Equal(t, 2, m.Data())
}

func TestApplyEvents(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	created, err := c.CreatePost(MutationHooks[*posts.Post]{}).Mutate(ctx, posts.CreatePostInput{Title: "t", Body: "b"})
	require.NoError(t, err)
	c.Posts(ctx)
	c.Post(ctx, created.ID)

	c.Apply(posts.Event{Type: posts.EventUpdated, ID: created.ID})
	assert.False(t, c.Cache().IsFresh(ListKey()))
	assert.False(t, c.Cache().IsFresh(PostKey(created.ID)))

	c.Posts(ctx)
	c.Apply(posts.Event{Type: posts.EventDeleted, ID: created.ID})
	_, status, _ := c.Cache().Peek(PostKey(created.ID))
	assert.Equal(t, StatusIdle, status)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{BaseURL: "http://localhost", Transport: "grpc"})
	assert.Error(t, err)

	c, err := New(Options{BaseURL: "http://localhost", Transport: "RPC"})
	require.NoError(t, err)
	assert.IsType(t, &RPCTransport{}, c.transport)
}
