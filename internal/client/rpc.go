package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leafsii/postboard-backend/internal/posts"
)

// RPCTransport calls the JSON-RPC 2.0 endpoint at /v1/rpc.
type RPCTransport struct {
	url  string
	http *http.Client
}

func NewRPCTransport(baseURL string, timeout time.Duration) *RPCTransport {
	return &RPCTransport{
		url:  strings.TrimRight(baseURL, "/") + "/v1/rpc",
		http: newHTTPClient(timeout),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *struct {
		Code  string `json:"code"`
		Field string `json:"field"`
	} `json:"data"`
}

type idParams struct {
	ID int64 `json:"id"`
}

type updateParams struct {
	ID   int64                 `json:"id"`
	Data posts.UpdatePostInput `json:"data"`
}

func (t *RPCTransport) ListPosts(ctx context.Context) ([]posts.Post, error) {
	var out []posts.Post
	if err := t.call(ctx, "getPosts", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []posts.Post{}
	}
	return out, nil
}

func (t *RPCTransport) GetPost(ctx context.Context, id int64) (*posts.Post, error) {
	var out posts.Post
	if err := t.call(ctx, "getPost", idParams{ID: id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *RPCTransport) CreatePost(ctx context.Context, in posts.CreatePostInput) (*posts.Post, error) {
	var out posts.Post
	if err := t.call(ctx, "createPost", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *RPCTransport) UpdatePost(ctx context.Context, id int64, in posts.UpdatePostInput) (*posts.Post, error) {
	var out posts.Post
	if err := t.call(ctx, "updatePost", updateParams{ID: id, Data: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *RPCTransport) DeletePost(ctx context.Context, id int64) error {
	return t.call(ctx, "deletePost", idParams{ID: id}, nil)
}

func (t *RPCTransport) call(ctx context.Context, method string, params, dest any) error {
	id := uuid.NewString()
	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return transportError(err)
	}
	// Errors before the RPC layer (timeouts, proxies) arrive as plain HTTP.
	if resp.StatusCode != http.StatusOK {
		return decodeRESTError(resp.StatusCode, body)
	}

	var reply rpcResponse
	if err := json.Unmarshal(body, &reply); err != nil {
		return &APIError{Status: resp.StatusCode, Code: CodeBadResponse, Message: "the server sent an unreadable response", Err: err}
	}
	var replyID string
	if err := json.Unmarshal(reply.ID, &replyID); err != nil || replyID != id {
		if reply.Error == nil {
			return &APIError{Status: resp.StatusCode, Code: CodeBadResponse, Message: "the server answered a different request"}
		}
	}
	if reply.Error != nil {
		return reply.Error.toAPIError()
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(reply.Result, dest); err != nil {
		return &APIError{Status: resp.StatusCode, Code: CodeBadResponse, Message: "the server sent an unreadable response", Err: err}
	}
	return nil
}

func (e *rpcError) toAPIError() *APIError {
	out := &APIError{Status: statusForRPCCode(e.Code), Message: e.Message}
	if e.Data != nil {
		out.Code = e.Data.Code
		out.Field = e.Data.Field
	}
	if out.Code == "" {
		out.Code = codeForStatus(out.Status)
	}
	return out
}

func statusForRPCCode(code int) int {
	switch code {
	case -32004:
		return http.StatusNotFound
	case -32009:
		return http.StatusConflict
	case -32003:
		return http.StatusServiceUnavailable
	case -32603:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
