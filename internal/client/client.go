package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leafsii/postboard-backend/internal/posts"
)

// Options configures New.
type Options struct {
	BaseURL   string
	Transport string // rest (default) or rpc
	Timeout   time.Duration
	StaleTime time.Duration
	Logger    *zap.SugaredLogger
}

// Client is the data access layer over a Transport: cached queries,
// mutations that invalidate what they change, and a live event feed.
type Client struct {
	transport Transport
	cache     *QueryCache
	logger    *zap.SugaredLogger
}

// Result is the outcome of a query.
type Result[T any] struct {
	Status Status
	Data   T
	Err    error
	// Cached is set when the value came from the cache without a fetch.
	Cached bool
}

// New builds a Client from options.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	var transport Transport
	switch strings.ToLower(opts.Transport) {
	case "", TransportREST:
		transport = NewRESTTransport(opts.BaseURL, opts.Timeout)
	case TransportRPC:
		transport = NewRPCTransport(opts.BaseURL, opts.Timeout)
	default:
		return nil, fmt.Errorf("unknown transport %q (want %s or %s)", opts.Transport, TransportREST, TransportRPC)
	}

	staleTime := opts.StaleTime
	if staleTime == 0 {
		staleTime = DefaultStaleTime
	}
	return NewWithTransport(transport, staleTime, opts.Logger), nil
}

// NewWithTransport builds a Client over an existing transport.
func NewWithTransport(transport Transport, staleTime time.Duration, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		transport: transport,
		cache:     NewQueryCache(staleTime),
		logger:    logger,
	}
}

// ListKey is the cache key of the post list.
func ListKey() string {
	return "posts"
}

// PostKey is the cache key of a single post.
func PostKey(id int64) string {
	return "post:" + strconv.FormatInt(id, 10)
}

// Cache exposes the query cache shared by all queries of the client.
func (c *Client) Cache() *QueryCache {
	return c.cache
}

// Posts returns the post list, newest first.
func (c *Client) Posts(ctx context.Context) Result[[]posts.Post] {
	return query(ctx, c, ListKey(), func(ctx context.Context) ([]posts.Post, error) {
		return c.transport.ListPosts(ctx)
	})
}

// Post returns one post. Non-positive ids give StatusInactive without any
// call.
func (c *Client) Post(ctx context.Context, id int64) Result[*posts.Post] {
	if id <= 0 {
		return Result[*posts.Post]{Status: StatusInactive}
	}
	return query(ctx, c, PostKey(id), func(ctx context.Context) (*posts.Post, error) {
		return c.transport.GetPost(ctx, id)
	})
}

// PostFromParam is Post for an id taken from a URL or command argument.
func (c *Client) PostFromParam(ctx context.Context, raw string) Result[*posts.Post] {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return Result[*posts.Post]{Status: StatusInactive}
	}
	return c.Post(ctx, id)
}

// query runs a typed fetch through the cache. A caller whose ctx ends
// first gets StatusIdle with ctx.Err(): the result is discarded for it.
func query[T any](ctx context.Context, c *Client, key string, fetch func(context.Context) (T, error)) Result[T] {
	v, cached, err := c.cache.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		out, err := fetch(ctx)
		if err != nil {
			c.logger.Debugw("Query failed", "key", key, "error", err)
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return Result[T]{Status: StatusIdle, Err: err}
		}
		return Result[T]{Status: StatusError, Err: err}
	}

	data, ok := v.(T)
	if !ok {
		return Result[T]{Status: StatusError, Err: fmt.Errorf("cache holds %T for %s", v, key)}
	}
	return Result[T]{Status: StatusSuccess, Data: data, Cached: cached}
}

// Close tears down the session cache.
func (c *Client) Close() error {
	return c.cache.Close()
}
