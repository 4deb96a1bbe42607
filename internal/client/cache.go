package client

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultStaleTime is how long a successful fetch is served without
// refetching.
const DefaultStaleTime = 60 * time.Second

// ErrCacheClosed is returned by Fetch after Close.
var ErrCacheClosed = errors.New("query cache closed")

// Status is the state of a query.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
	// StatusInactive marks a disabled query, e.g. one without a valid id.
	StatusInactive
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

type entry struct {
	status    Status
	value     any
	err       error
	fetchedAt time.Time
	// generation of the fetch that last touched the entry
	generation uint64
}

// QueryCache holds query results by key. Concurrent fetches of one key share
// a single call; Invalidate makes the next read refetch.
//
// Every key has a generation that Invalidate, Remove and Clear bump. Fetches
// are coalesced per (key, generation), so a fetch started before an
// invalidation is never joined by later readers and its result is not
// stored.
type QueryCache struct {
	mu          sync.Mutex
	entries     map[string]*entry
	generations map[string]uint64
	group       singleflight.Group
	staleTime   time.Duration
	now         func() time.Time
	closed      bool
}

// NewQueryCache returns an empty cache; a negative staleTime is treated as zero.
func NewQueryCache(staleTime time.Duration) *QueryCache {
	if staleTime < 0 {
		staleTime = 0
	}
	return &QueryCache{
		entries:     make(map[string]*entry),
		generations: make(map[string]uint64),
		staleTime:   staleTime,
		now:         time.Now,
	}
}

// FetchFunc loads the value of a key. It runs detached from the caller's
// cancellation and must bound itself, e.g. through a transport timeout.
type FetchFunc func(ctx context.Context) (any, error)

// Fetch returns the fresh cached value of key or runs fn, sharing the call
// with concurrent readers of the same key. cached is true for hits. When ctx
// ends first the caller gets ctx.Err() while the shared call keeps going and
// still fills the cache.
func (c *QueryCache) Fetch(ctx context.Context, key string, fn FetchFunc) (value any, cached bool, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false, ErrCacheClosed
	}
	e := c.entries[key]
	if e == nil {
		e = &entry{status: StatusIdle}
		c.entries[key] = e
	}
	if c.freshLocked(e) {
		v := e.value
		c.mu.Unlock()
		return v, true, nil
	}
	gen := c.generations[key]
	e.status = StatusLoading
	e.generation = gen
	c.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey(key, gen), func() (any, error) {
		v, err := fn(detached)
		c.store(key, gen, v, err)
		return v, err
	})

	select {
	case res := <-ch:
		return res.Val, false, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func flightKey(key string, gen uint64) string {
	return key + "#" + strconv.FormatUint(gen, 10)
}

func (c *QueryCache) freshLocked(e *entry) bool {
	if e.status != StatusSuccess || e.fetchedAt.IsZero() {
		return false
	}
	return c.now().Sub(e.fetchedAt) < c.staleTime
}

// store records a finished fetch unless the key moved to a newer generation
// in the meantime.
func (c *QueryCache) store(key string, gen uint64, v any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	e := c.entries[key]
	if c.generations[key] != gen {
		// Superseded. Undo the loading mark unless a newer fetch owns it.
		if e != nil && e.status == StatusLoading && e.generation == gen {
			e.status = StatusIdle
			if e.value != nil {
				e.status = StatusSuccess
			}
		}
		return
	}
	if e == nil {
		e = &entry{}
		c.entries[key] = e
	}
	e.generation = gen
	if err != nil {
		// Keep the last good value for display next to the error.
		e.status = StatusError
		e.err = err
		return
	}
	e.status = StatusSuccess
	e.value = v
	e.err = nil
	e.fetchedAt = c.now()
}

// Invalidate marks keys stale. Their values stay readable through Peek but
// the next Fetch goes to the transport.
func (c *QueryCache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		c.generations[key]++
		if e, ok := c.entries[key]; ok {
			e.fetchedAt = time.Time{}
		}
	}
}

// Remove drops keys entirely.
func (c *QueryCache) Remove(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		c.generations[key]++
		delete(c.entries, key)
	}
}

// Clear drops every entry.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *QueryCache) clearLocked() {
	for key := range c.entries {
		c.generations[key]++
	}
	c.entries = make(map[string]*entry)
}

// Close clears the cache and fails later fetches with ErrCacheClosed.
func (c *QueryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	c.closed = true
	return nil
}

// Peek returns what the cache holds for key without fetching.
func (c *QueryCache) Peek(key string) (value any, status Status, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, StatusIdle, nil
	}
	return e.value, e.status, e.err
}

// IsFresh reports whether a Fetch of key would be served from the cache.
func (c *QueryCache) IsFresh(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return ok && c.freshLocked(e)
}
