package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/leafsii/postboard-backend/internal/posts"
)

var errClosed = errors.New("database not connected")

// Repository is an in-process posts.Repository. It keeps rows the way the
// SQL backends do: posts reference authors by id and the author projection
// is joined on every read.
type Repository struct {
	mu             sync.RWMutex
	posts          map[int64]posts.Post
	authors        map[int64]posts.Author
	authorsByEmail map[string]int64
	nextPostID     int64
	nextAuthorID   int64
	closed         bool
	now            func() time.Time
}

type Option func(*Repository)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func NewRepository(opts ...Option) *Repository {
	r := &Repository{
		posts:          make(map[int64]posts.Post),
		authors:        make(map[int64]posts.Author),
		authorsByEmail: make(map[string]int64),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) ListPosts(ctx context.Context) ([]posts.Post, error) {
	if err := r.check(ctx, "list posts"); err != nil {
		return nil, err
	}

	r.mu.RLock()
	out := make([]posts.Post, 0, len(r.posts))
	for _, p := range r.posts {
		out = append(out, r.project(p))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *Repository) GetPost(ctx context.Context, id int64) (*posts.Post, error) {
	if err := r.check(ctx, "get post"); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.posts[id]
	if !ok {
		return nil, posts.NotFound("get post", id)
	}
	out := r.project(p)
	return &out, nil
}

func (r *Repository) CreatePost(ctx context.Context, in posts.CreatePostInput) (*posts.Post, error) {
	in, err := posts.PrepareCreate(in)
	if err != nil {
		return nil, err
	}
	if err := r.check(ctx, "create post"); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	p := posts.Post{
		Title:     in.Title,
		Body:      in.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if authorID, ok := r.resolveAuthor(in); ok {
		p.AuthorID = &authorID
	}

	r.nextPostID++
	p.ID = r.nextPostID
	r.posts[p.ID] = p

	out := r.project(p)
	return &out, nil
}

// resolveAuthor links by email (creating the author if needed) or creates a
// name-only author. Must hold the write lock.
func (r *Repository) resolveAuthor(in posts.CreatePostInput) (int64, bool) {
	if in.AuthorEmail != nil {
		if id, ok := r.authorsByEmail[*in.AuthorEmail]; ok {
			return id, true
		}
		email := *in.AuthorEmail
		id := r.insertAuthor(posts.Author{Name: in.AuthorName, Email: &email})
		r.authorsByEmail[email] = id
		return id, true
	}
	if in.AuthorName != nil {
		return r.insertAuthor(posts.Author{Name: in.AuthorName}), true
	}
	return 0, false
}

func (r *Repository) insertAuthor(a posts.Author) int64 {
	r.nextAuthorID++
	a.ID = r.nextAuthorID
	if a.Name != nil {
		name := *a.Name
		a.Name = &name
	}
	r.authors[a.ID] = a
	return a.ID
}

func (r *Repository) UpdatePost(ctx context.Context, id int64, in posts.UpdatePostInput) (*posts.Post, error) {
	in, err := posts.PrepareUpdate(in)
	if err != nil {
		return nil, err
	}
	if err := r.check(ctx, "update post"); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.posts[id]
	if !ok {
		return nil, posts.NotFound("update post", id)
	}
	in.Apply(&p)
	p.UpdatedAt = r.now()
	r.posts[id] = p

	out := r.project(p)
	return &out, nil
}

func (r *Repository) DeletePost(ctx context.Context, id int64) error {
	if err := r.check(ctx, "delete post"); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.posts[id]; !ok {
		return posts.NotFound("delete post", id)
	}
	delete(r.posts, id)
	return nil
}

// Authors returns a snapshot of all author rows.
func (r *Repository) Authors() []posts.Author {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]posts.Author, 0, len(r.authors))
	for _, a := range r.authors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.check(ctx, "ping")
}

func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Repository) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return posts.NewStoreError(op, posts.ErrTransient, err)
	}
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return posts.NewStoreError(op, posts.ErrTransient, errClosed)
	}
	return nil
}

// project returns a copy of p with the author projection joined in.
// Must hold at least the read lock.
func (r *Repository) project(p posts.Post) posts.Post {
	p.Author = nil
	if p.AuthorID == nil {
		return p
	}
	id := *p.AuthorID
	p.AuthorID = &id
	if a, ok := r.authors[id]; ok {
		ref := &posts.AuthorRef{}
		if a.Name != nil {
			name := *a.Name
			ref.Name = &name
		}
		p.Author = ref
	}
	return p
}
