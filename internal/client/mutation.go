package client

import (
	"context"
	"sync"

	"github.com/leafsii/postboard-backend/internal/posts"
)

// MutationStatus is the state of a Mutation.
type MutationStatus int

const (
	MutationIdle MutationStatus = iota
	MutationPending
	MutationSuccess
	MutationError
)

func (s MutationStatus) String() string {
	switch s {
	case MutationIdle:
		return "idle"
	case MutationPending:
		return "pending"
	case MutationSuccess:
		return "success"
	case MutationError:
		return "error"
	default:
		return "unknown"
	}
}

// MutationHooks are called after the cache has been updated.
type MutationHooks[O any] struct {
	OnSuccess func(O)
	OnError   func(error)
}

// Mutation runs a write and invalidates the cache keys it affects. State
// reflects the most recent Mutate call. Failures are never retried.
type Mutation[I, O any] struct {
	mu     sync.Mutex
	seq    uint64
	status MutationStatus
	data   O
	err    error

	run       func(ctx context.Context, in I) (O, error)
	onSuccess func(in I, out O)
	hooks     MutationHooks[O]
}

func newMutation[I, O any](run func(context.Context, I) (O, error), onSuccess func(I, O), hooks MutationHooks[O]) *Mutation[I, O] {
	return &Mutation[I, O]{run: run, onSuccess: onSuccess, hooks: hooks}
}

// Mutate performs the write. On success the cache is invalidated before
// OnSuccess runs; on failure the cache is untouched and OnError gets the
// error.
func (m *Mutation[I, O]) Mutate(ctx context.Context, in I) (O, error) {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.status = MutationPending
	m.err = nil
	m.mu.Unlock()

	out, err := m.run(ctx, in)
	if err == nil && m.onSuccess != nil {
		m.onSuccess(in, out)
	}

	m.mu.Lock()
	if seq == m.seq {
		if err != nil {
			m.status = MutationError
			m.err = err
		} else {
			m.status = MutationSuccess
			m.data = out
		}
	}
	m.mu.Unlock()

	if err != nil {
		if m.hooks.OnError != nil {
			m.hooks.OnError(err)
		}
		var zero O
		return zero, err
	}
	if m.hooks.OnSuccess != nil {
		m.hooks.OnSuccess(out)
	}
	return out, nil
}

func (m *Mutation[I, O]) Status() MutationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Mutation[I, O]) Data() O {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

func (m *Mutation[I, O]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Reset returns the mutation to idle. A Mutate still in flight no longer
// updates the state.
func (m *Mutation[I, O]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero O
	m.seq++
	m.status = MutationIdle
	m.data = zero
	m.err = nil
}

// UpdateArgs is the input of the update mutation.
type UpdateArgs struct {
	ID   int64
	Data posts.UpdatePostInput
}

// CreatePost invalidates the list on success.
func (c *Client) CreatePost(hooks MutationHooks[*posts.Post]) *Mutation[posts.CreatePostInput, *posts.Post] {
	return newMutation(c.transport.CreatePost, func(posts.CreatePostInput, *posts.Post) {
		c.cache.Invalidate(ListKey())
	}, hooks)
}

// UpdatePost invalidates the list and the updated post on success.
func (c *Client) UpdatePost(hooks MutationHooks[*posts.Post]) *Mutation[UpdateArgs, *posts.Post] {
	run := func(ctx context.Context, args UpdateArgs) (*posts.Post, error) {
		return c.transport.UpdatePost(ctx, args.ID, args.Data)
	}
	return newMutation(run, func(args UpdateArgs, _ *posts.Post) {
		c.cache.Invalidate(ListKey(), PostKey(args.ID))
	}, hooks)
}

// DeletePost invalidates the list and drops the deleted post on success.
func (c *Client) DeletePost(hooks MutationHooks[int64]) *Mutation[int64, int64] {
	run := func(ctx context.Context, id int64) (int64, error) {
		if err := c.transport.DeletePost(ctx, id); err != nil {
			return 0, err
		}
		return id, nil
	}
	return newMutation(run, func(id int64, _ int64) {
		c.cache.Invalidate(ListKey())
		c.cache.Remove(PostKey(id))
	}, hooks)
}
