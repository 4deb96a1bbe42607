package posts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cache keys and the pub/sub channel used for post events.
const (
	KeyPostList   = "pb:posts:list"
	KeyPostItem   = "pb:posts:item"
	ChannelEvents = "pb:events:posts"
)

// ItemKey returns the cache key of a single post.
func ItemKey(id int64) string {
	return fmt.Sprintf("%s:%d", KeyPostItem, id)
}

// Cache is the read-through cache and event bus the service writes to.
// store.Cache satisfies it.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Publish(ctx context.Context, channel string, message interface{}) error
}

// MetricsRecorder receives one call per mutation attempt.
type MetricsRecorder interface {
	RecordPostMutation(ctx context.Context, op string, err error)
}

// Service validates input, calls the repository, keeps the server-side cache
// in step and announces committed changes.
type Service struct {
	repo     Repository
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.SugaredLogger
	metrics  MetricsRecorder
	now      func() time.Time

	// generations counts invalidations per cache key. A fill only lands if
	// no invalidation of its key happened since the repository read began.
	genMu       sync.Mutex
	generations map[string]uint64
}

type Option func(*Service)

func WithCache(cache Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, logger *zap.SugaredLogger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Service{
		repo:     repo,
		cacheTTL: 30 * time.Second,
		logger:   logger,
		now:      time.Now,

		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ListPosts(ctx context.Context) ([]Post, error) {
	var cached []Post
	if s.cacheGet(ctx, KeyPostList, &cached) {
		return cached, nil
	}

	gen := s.generation(KeyPostList)
	list, err := s.repo.ListPosts(ctx)
	if err != nil {
		return nil, s.fail("list posts", 0, err)
	}
	if list == nil {
		list = []Post{}
	}
	s.cacheSet(ctx, KeyPostList, gen, list)
	return list, nil
}

func (s *Service) GetPost(ctx context.Context, id int64) (*Post, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	var cached Post
	if s.cacheGet(ctx, ItemKey(id), &cached) {
		return &cached, nil
	}

	gen := s.generation(ItemKey(id))
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return nil, s.fail("get post", id, err)
	}
	s.cacheSet(ctx, ItemKey(id), gen, post)
	return post, nil
}

func (s *Service) CreatePost(ctx context.Context, in CreatePostInput) (*Post, error) {
	in, err := PrepareCreate(in)
	if err != nil {
		return nil, err
	}

	post, err := s.repo.CreatePost(ctx, in)
	s.record(ctx, EventCreated, err)
	if err != nil {
		return nil, s.fail("create post", 0, err)
	}

	s.invalidate(ctx, KeyPostList)
	s.publish(ctx, EventCreated, post.ID)
	return post, nil
}

func (s *Service) UpdatePost(ctx context.Context, id int64, in UpdatePostInput) (*Post, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	in, err := PrepareUpdate(in)
	if err != nil {
		return nil, err
	}

	post, err := s.repo.UpdatePost(ctx, id, in)
	s.record(ctx, EventUpdated, err)
	if err != nil {
		return nil, s.fail("update post", id, err)
	}

	s.invalidate(ctx, KeyPostList, ItemKey(id))
	s.publish(ctx, EventUpdated, id)
	return post, nil
}

func (s *Service) DeletePost(ctx context.Context, id int64) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	err := s.repo.DeletePost(ctx, id)
	s.record(ctx, EventDeleted, err)
	if err != nil {
		return s.fail("delete post", id, err)
	}

	s.invalidate(ctx, KeyPostList, ItemKey(id))
	s.publish(ctx, EventDeleted, id)
	return nil
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// fail logs a repository failure at a level matching its kind and passes it on.
func (s *Service) fail(op string, id int64, err error) error {
	kind := Classify(err)
	switch {
	case errors.Is(kind, ErrNotFound), errors.Is(kind, ErrValidation):
		s.logger.Debugw("Post operation rejected", "op", op, "id", id, "error", err)
	case errors.Is(kind, ErrConflict):
		s.logger.Warnw("Post operation conflicted", "op", op, "id", id, "error", err)
	default:
		s.logger.Errorw("Post store failure", "op", op, "id", id, "kind", kind, "error", err)
	}
	return err
}

func (s *Service) record(ctx context.Context, op string, err error) {
	if s.metrics != nil {
		s.metrics.RecordPostMutation(ctx, op, err)
	}
}

func (s *Service) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	return s.cache.Get(ctx, key, dest) == nil
}

func (s *Service) generation(key string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[key]
}

// cacheSet stores a value read at generation gen. An invalidation that
// overlaps the write deletes the key again, since its own delete may have
// run before the write landed.
func (s *Service) cacheSet(ctx context.Context, key string, gen uint64, value interface{}) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	if s.generation(key) != gen {
		s.logger.Debugw("Skipped caching superseded read", "key", key)
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.logger.Warnw("Failed to cache posts", "key", key, "error", err)
		return
	}
	if s.generation(key) != gen {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Errorw("Failed to drop superseded cache entry", "key", key, "error", err)
		}
	}
}

// invalidate bumps the generation of keys before deleting them.
func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	s.genMu.Lock()
	for _, k := range keys {
		s.generations[k]++
	}
	s.genMu.Unlock()

	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Errorw("Failed to invalidate post cache", "keys", keys, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, typ string, id int64) {
	if s.cache == nil {
		return
	}
	event := Event{Type: typ, ID: id, At: s.now().UTC()}
	if err := s.cache.Publish(ctx, ChannelEvents, event); err != nil {
		s.logger.Warnw("Failed to publish post event", "type", typ, "id", id, "error", err)
	}
}
