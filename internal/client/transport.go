package client

import (
	"context"
	"net/http"
	"time"

	"github.com/leafsii/postboard-backend/internal/posts"
)

// Transport is one binding of the post API.
type Transport interface {
	ListPosts(ctx context.Context) ([]posts.Post, error)
	GetPost(ctx context.Context, id int64) (*posts.Post, error)
	CreatePost(ctx context.Context, in posts.CreatePostInput) (*posts.Post, error)
	UpdatePost(ctx context.Context, id int64, in posts.UpdatePostInput) (*posts.Post, error)
	DeletePost(ctx context.Context, id int64) error
}

const (
	TransportREST = "rest"
	TransportRPC  = "rpc"

	DefaultTimeout = 10 * time.Second
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
