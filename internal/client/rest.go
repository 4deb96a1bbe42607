package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/leafsii/postboard-backend/internal/posts"
)

// RESTTransport talks to /v1/posts.
type RESTTransport struct {
	baseURL string
	http    *http.Client
}

func NewRESTTransport(baseURL string, timeout time.Duration) *RESTTransport {
	return &RESTTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(timeout),
	}
}

func (t *RESTTransport) ListPosts(ctx context.Context) ([]posts.Post, error) {
	var out []posts.Post
	if err := t.do(ctx, http.MethodGet, "/v1/posts", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []posts.Post{}
	}
	return out, nil
}

func (t *RESTTransport) GetPost(ctx context.Context, id int64) (*posts.Post, error) {
	var out posts.Post
	if err := t.do(ctx, http.MethodGet, postPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *RESTTransport) CreatePost(ctx context.Context, in posts.CreatePostInput) (*posts.Post, error) {
	var out posts.Post
	if err := t.do(ctx, http.MethodPost, "/v1/posts", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *RESTTransport) UpdatePost(ctx context.Context, id int64, in posts.UpdatePostInput) (*posts.Post, error) {
	var out posts.Post
	if err := t.do(ctx, http.MethodPut, postPath(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *RESTTransport) DeletePost(ctx context.Context, id int64) error {
	return t.do(ctx, http.MethodDelete, postPath(id), nil, nil)
}

func postPath(id int64) string {
	return "/v1/posts/" + strconv.FormatInt(id, 10)
}

func (t *RESTTransport) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeRESTError(resp.StatusCode, data)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return &APIError{Status: resp.StatusCode, Code: CodeBadResponse, Message: "the server sent an unreadable response", Err: err}
	}
	return nil
}
