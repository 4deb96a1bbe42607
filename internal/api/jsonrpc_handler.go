package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/leafsii/postboard-backend/internal/posts"
)

var nullID = json.RawMessage("null")

// HandleJSONRPC handles JSON-RPC 2.0 requests and batches. Batch entries run
// in order; every entry gets a response.
func (h *Handler) HandleJSONRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeRPC(w, h.rpcError(r, nullID, invalidRequest()))
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil {
			h.writeRPC(w, h.rpcError(r, nullID, parseError()))
			return
		}
		if len(batch) == 0 {
			h.writeRPC(w, h.rpcError(r, nullID, invalidRequest()))
			return
		}

		responses := make([]JSONRPCResponse, 0, len(batch))
		for _, raw := range batch {
			responses = append(responses, h.handleRPC(r, raw))
		}
		h.writeRPC(w, responses)
		return
	}

	h.writeRPC(w, h.handleRPC(r, body))
}

func (h *Handler) handleRPC(r *http.Request, raw json.RawMessage) JSONRPCResponse {
	if !json.Valid(raw) {
		return h.rpcError(r, nullID, parseError())
	}
	var req JSONRPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return h.rpcError(r, nullID, invalidRequest())
	}

	id := req.ID
	if len(id) == 0 {
		id = nullID
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return h.rpcError(r, id, invalidRequest())
	}

	result, err := h.dispatch(r.Context(), req)
	if err != nil {
		return h.rpcError(r, id, err)
	}
	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func (h *Handler) dispatch(ctx context.Context, req JSONRPCRequest) (interface{}, error) {
	switch req.Method {
	case MethodGetPosts:
		return h.posts.ListPosts(ctx)

	case MethodGetPost:
		var p PostIDParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return h.posts.GetPost(ctx, p.ID)

	case MethodCreatePost:
		var in posts.CreatePostInput
		if err := decodeParams(req.Params, &in); err != nil {
			return nil, err
		}
		return h.posts.CreatePost(ctx, in)

	case MethodUpdatePost:
		var p UpdatePostParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return h.posts.UpdatePost(ctx, p.ID, p.Data)

	case MethodDeletePost:
		var p PostIDParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if err := h.posts.DeletePost(ctx, p.ID); err != nil {
			return nil, err
		}
		return SuccessResponse{Success: true}, nil

	default:
		return nil, &JSONRPCError{
			Code:    JSONRPCMethodNotFound,
			Message: fmt.Sprintf("Method '%s' not found", req.Method),
			Data:    &JSONRPCErrorData{Code: CodeNotFound},
		}
	}
}

func (h *Handler) rpcError(r *http.Request, id json.RawMessage, err error) JSONRPCResponse {
	rpcErr, ok := err.(*JSONRPCError)
	if !ok {
		f := describe(err)
		code := f.Code
		if f.RPCCode == JSONRPCInvalidParams {
			code = CodeBadRequest
		}
		rpcErr = &JSONRPCError{
			Code:    f.RPCCode,
			Message: f.Message,
			Data:    &JSONRPCErrorData{Code: code, Field: f.Field},
		}
		requestID := middleware.GetReqID(r.Context())
		if f.Status >= http.StatusInternalServerError {
			h.logger.Errorw("JSON-RPC error", "request_id", requestID, "code", f.Code, "error", err)
		} else {
			h.logger.Debugw("JSON-RPC request rejected", "request_id", requestID, "code", f.Code, "error", err)
		}
	}

	return JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
}

func parseError() *JSONRPCError {
	return &JSONRPCError{
		Code:    JSONRPCParseError,
		Message: "Parse error",
		Data:    &JSONRPCErrorData{Code: CodeBadRequest},
	}
}

func invalidRequest() *JSONRPCError {
	return &JSONRPCError{
		Code:    JSONRPCInvalidRequest,
		Message: "Invalid Request",
		Data:    &JSONRPCErrorData{Code: CodeBadRequest},
	}
}

// writeRPC always answers 200; errors travel in the envelope.
func (h *Handler) writeRPC(w http.ResponseWriter, payload interface{}) {
	h.writeJSON(w, http.StatusOK, payload)
}
