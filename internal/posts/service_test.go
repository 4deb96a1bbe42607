package posts

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListPosts(ctx context.Context) ([]Post, error) {
	args := m.Called(ctx)
	if list := args.Get(0); list != nil {
		return list.([]Post), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) GetPost(ctx context.Context, id int64) (*Post, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*Post), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) CreatePost(ctx context.Context, in CreatePostInput) (*Post, error) {
	args := m.Called(ctx, in)
	if p := args.Get(0); p != nil {
		return p.(*Post), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) UpdatePost(ctx context.Context, id int64, in UpdatePostInput) (*Post, error) {
	args := m.Called(ctx, id, in)
	if p := args.Get(0); p != nil {
		return p.(*Post), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) DeletePost(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockRepository) Close() error {
	return nil
}

var errMiss = errors.New("cache miss")

// fakeCache stores JSON like store.Cache does and records deletes and events.
type fakeCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	deleted []string
	events  []Event
	failSet bool
	// beforeSet runs at the start of Set, outside the lock.
	beforeSet func(key string)
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (c *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return errMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.beforeSet != nil {
		c.beforeSet(key)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSet {
		return errors.New("redis down")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	c.deleted = append(c.deleted, keys...)
	return nil
}

func (c *fakeCache) Publish(ctx context.Context, channel string, message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if channel == ChannelEvents {
		c.events = append(c.events, message.(Event))
	}
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

type mutationRecord struct {
	op  string
	err error
}

type fakeRecorder struct {
	calls []mutationRecord
}

func (r *fakeRecorder) RecordPostMutation(ctx context.Context, op string, err error) {
	r.calls = append(r.calls, mutationRecord{op: op, err: err})
}

func samplePost(id int64) *Post {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Post{ID: id, Title: "Hello", Body: "World", CreatedAt: at, UpdatedAt: at}
}

func newTestService(repo Repository) (*Service, *fakeCache, *fakeRecorder) {
	cache := newFakeCache()
	rec := &fakeRecorder{}
	svc := NewService(repo, nil, WithCache(cache, time.Minute), WithMetrics(rec))
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC) }
	return svc, cache, rec
}

func TestListPostsReadsThrough(t *testing.T) {
	repo := new(MockRepository)
	svc, cache, _ := newTestService(repo)
	ctx := context.Background()

	repo.On("ListPosts", mock.Anything).Return([]Post{*samplePost(1)}, nil).Once()

	first, err := svc.ListPosts(ctx)
	require.NoError(t, err)
	second, err := svc.ListPosts(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, time.Minute, cache.ttls[KeyPostList])
	repo.AssertNumberOfCalls(t, "ListPosts", 1)
}

func TestListPostsEmptyIsNotNil(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil)

	repo.On("ListPosts", mock.Anything).Return(nil, nil)

	list, err := svc.ListPosts(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestGetPostCachesItem(t *testing.T) {
	repo := new(MockRepository)
	svc, cache, _ := newTestService(repo)
	ctx := context.Background()

	repo.On("GetPost", mock.Anything, int64(3)).Return(samplePost(3), nil).Once()

	_, err := svc.GetPost(ctx, 3)
	require.NoError(t, err)
	got, err := svc.GetPost(ctx, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(3), got.ID)
	assert.True(t, cache.has(ItemKey(3)))
	repo.AssertExpectations(t)
}

func TestGetPostNotFoundIsNotCached(t *testing.T) {
	repo := new(MockRepository)
	svc, cache, _ := newTestService(repo)

	repo.On("GetPost", mock.Anything, int64(9)).Return(nil, NotFound("get post", 9)).Twice()

	for i := 0; i < 2; i++ {
		_, err := svc.GetPost(context.Background(), 9)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.False(t, cache.has(ItemKey(9)))
	repo.AssertExpectations(t)
}

func TestInvalidInputNeverReachesRepository(t *testing.T) {
	repo := new(MockRepository)
	svc, cache, rec := newTestService(repo)
	ctx := context.Background()

	_, err := svc.GetPost(ctx, 0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreatePost(ctx, CreatePostInput{Title: "", Body: "b"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdatePost(ctx, 1, UpdatePostInput{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdatePost(ctx, -1, UpdatePostInput{Title: strPtr("t")})
	assert.ErrorIs(t, err, ErrValidation)

	assert.ErrorIs(t, svc.DeletePost(ctx, 0), ErrValidation)

	repo.AssertNotCalled(t, "GetPost", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "CreatePost", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "UpdatePost", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "DeletePost", mock.Anything, mock.Anything)
	assert.Empty(t, cache.events)
	assert.Empty(t, rec.calls)
}

func TestCreatePostInvalidatesAndPublishes(t *testing.T) {
	repo := new(MockRepository)
	svc, cache, rec := newTestService(repo)
	ctx := context.Background()

	repo.On("ListPosts", mock.Anything).Return([]Post{}, nil).Once()
	_, err := svc.ListPosts(ctx)
	require.NoError(t, err)
	require.True(t, cache.has(KeyPostList))

	normalized := CreatePostInput{Title: "Hello", Body: "World", AuthorEmail: strPtr("ann@example.com")}
	repo.On("CreatePost", mock.Anything, normalized).Return(samplePost(5), nil).Once()

	created, err := svc.CreatePost(ctx, CreatePostInput{Title: " Hello ", Body: "World", AuthorEmail: strPtr("ANN@example.com")})
	require.NoError(t, err)
	assert.Equal(t, int64(5), created.ID)

	assert.False(t, cache.has(KeyPostList))
	assert.Equal(t, []Event{{Type: EventCreated, ID: 5, At: time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)}}, cache.events)
	assert.Equal(t, []mutationRecord{{op: EventCreated}}, rec.calls)
	repo.AssertExpectations(t)
}

func TestUpdatePostInvalidatesListAndItem(t *testing.T) {
	repo := new(MockRepository)
	svc, cache, _ := newTestService(repo)
	ctx := context.Background()

	updated := samplePost(2)
	updated.Published = true
	repo.On("UpdatePost", mock.Anything, int64(2), UpdatePostInput{Published: boolPtr(true)}).Return(updated, nil)

	got, err := svc.UpdatePost(ctx, 2, UpdatePostInput{Published: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, got.Published)

	assert.Equal(t, []string{KeyPostList, ItemKey(2)}, cache.deleted)
	require.Len(t, cache.events, 1)
	assert.Equal(t, EventUpdated, cache.events[0].Type)
}

func TestFailedMutationLeavesCacheAlone(t *testing.T) {
	repo := new(MockRepository)
	svc, cache, rec := newTestService(repo)
	ctx := context.Background()

	notFound := NotFound("delete post", 8)
	repo.On("DeletePost", mock.Anything, int64(8)).Return(notFound)

	err := svc.DeletePost(ctx, 8)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, cache.deleted)
	assert.Empty(t, cache.events)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, EventDeleted, rec.calls[0].op)
	assert.Equal(t, notFound, rec.calls[0].err)
}

func TestDeletePost(t *testing.T) {
	repo := new(MockRepository)
	svc, cache, _ := newTestService(repo)

	repo.On("DeletePost", mock.Anything, int64(4)).Return(nil)

	require.NoError(t, svc.DeletePost(context.Background(), 4))
	assert.Equal(t, []string{KeyPostList, ItemKey(4)}, cache.deleted)
	require.Len(t, cache.events, 1)
	assert.Equal(t, Event{Type: EventDeleted, ID: 4, At: time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)}, cache.events[0])
}

func TestCacheWriteFailureIsNotFatal(t *testing.T) {
	repo := new(MockRepository)
	svc, cache, _ := newTestService(repo)
	cache.failSet = true

	repo.On("ListPosts", mock.Anything).Return([]Post{*samplePost(1)}, nil).Twice()

	for i := 0; i < 2; i++ {
		list, err := svc.ListPosts(context.Background())
		require.NoError(t, err)
		assert.Len(t, list, 1)
	}
	repo.AssertExpectations(t)
}

func TestServiceWithoutCache(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, nil)

	repo.On("CreatePost", mock.Anything, CreatePostInput{Title: "t", Body: "b"}).Return(samplePost(1), nil)
	repo.On("Ping", mock.Anything).Return(nil)

	_, err := svc.CreatePost(context.Background(), CreatePostInput{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.NoError(t, svc.Ping(context.Background()))
}

func TestItemKey(t *testing.T) {
	assert.Equal(t, "pb:posts:item:12", ItemKey(12))
}

// blockOnce makes the matched call wait inside the repository until release
// is closed, after signalling on entered.
func blockOnce(entered chan<- struct{}, release <-chan struct{}) func(mock.Arguments) {
	return func(mock.Arguments) {
		close(entered)
		<-release
	}
}

func TestListReadOverlappingUpdateIsNotCached(t *testing.T) {
	repo := new(MockRepository)
	svc, cache, _ := newTestService(repo)
	ctx := context.Background()

	before := *samplePost(1)
	before.Title = "old"
	after := before
	after.Title = "new"

	entered, release := make(chan struct{}), make(chan struct{})
	repo.On("ListPosts", mock.Anything).Run(blockOnce(entered, release)).Return([]Post{before}, nil).Once()
	repo.On("UpdatePost", mock.Anything, int64(1), UpdatePostInput{Title: strPtr("new")}).Return(&after, nil).Once()
	repo.On("ListPosts", mock.Anything).Return([]Post{after}, nil).Once()

	done := make(chan []Post)
	go func() {
		list, err := svc.ListPosts(ctx)
		assert.NoError(t, err)
		done <- list
	}()

	<-entered
	_, err := svc.UpdatePost(ctx, 1, UpdatePostInput{Title: strPtr("new")})
	require.NoError(t, err)
	close(release)

	stale := <-done
	assert.Equal(t, "old", stale[0].Title)
	assert.False(t, cache.has(KeyPostList))

	list, err := svc.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].Title)
	repo.AssertExpectations(t)
}

func TestGetReadOverlappingDeleteIsNotCached(t *testing.T) {
	repo := new(MockRepository)
	svc, cache, _ := newTestService(repo)
	ctx := context.Background()

	entered, release := make(chan struct{}), make(chan struct{})
	repo.On("GetPost", mock.Anything, int64(2)).Run(blockOnce(entered, release)).Return(samplePost(2), nil).Once()
	repo.On("DeletePost", mock.Anything, int64(2)).Return(nil).Once()
	repo.On("GetPost", mock.Anything, int64(2)).Return(nil, NotFound("get post", 2)).Once()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.GetPost(ctx, 2)
		assert.NoError(t, err)
	}()

	<-entered
	require.NoError(t, svc.DeletePost(ctx, 2))
	close(release)
	<-done

	assert.False(t, cache.has(ItemKey(2)))
	_, err := svc.GetPost(ctx, 2)
	assert.ErrorIs(t, err, ErrNotFound)
	repo.AssertExpectations(t)
}

func TestInvalidationDuringCacheWriteDropsEntry(t *testing.T) {
	repo := new(MockRepository)
	svc, cache, _ := newTestService(repo)
	ctx := context.Background()

	repo.On("ListPosts", mock.Anything).Return([]Post{*samplePost(1)}, nil)
	repo.On("CreatePost", mock.Anything, CreatePostInput{Title: "t", Body: "b"}).Return(samplePost(2), nil)

	var once sync.Once
	cache.beforeSet = func(key string) {
		once.Do(func() {
			_, err := svc.CreatePost(ctx, CreatePostInput{Title: "t", Body: "b"})
			assert.NoError(t, err)
		})
	}

	_, err := svc.ListPosts(ctx)
	require.NoError(t, err)
	assert.False(t, cache.has(KeyPostList))

	// A read that starts after the invalidation fills the cache normally.
	_, err = svc.ListPosts(ctx)
	require.NoError(t, err)
	assert.True(t, cache.has(KeyPostList))
}
