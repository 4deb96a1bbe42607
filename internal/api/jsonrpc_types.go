package api

import (
	"encoding/json"
	"fmt"

	"github.com/leafsii/postboard-backend/internal/posts"
)

// JSON-RPC 2.0 request structure
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSON-RPC 2.0 response structure
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSON-RPC 2.0 error structure
type JSONRPCError struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    *JSONRPCErrorData `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// JSONRPCErrorData carries the REST-style code so both bindings report
// failures the same way.
type JSONRPCErrorData struct {
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// Procedure names.
const (
	MethodGetPosts   = "getPosts"
	MethodGetPost    = "getPost"
	MethodCreatePost = "createPost"
	MethodUpdatePost = "updatePost"
	MethodDeletePost = "deletePost"
)

// PostIDParams is the params object of getPost and deletePost.
type PostIDParams struct {
	ID int64 `json:"id"`
}

// UpdatePostParams is the params object of updatePost.
type UpdatePostParams struct {
	ID   int64                 `json:"id"`
	Data posts.UpdatePostInput `json:"data"`
}

// JSON-RPC error codes. The -320xx range below -32000 is reserved for
// implementation-defined server errors.
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
	JSONRPCUnavailable    = -32003
	JSONRPCNotFound       = -32004
	JSONRPCConflict       = -32009
)
