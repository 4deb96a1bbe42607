package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/leafsii/postboard-backend/internal/posts"
	"github.com/leafsii/postboard-backend/internal/ws"
)

// PostService is the slice of posts.Service the handlers need.
type PostService interface {
	ListPosts(ctx context.Context) ([]posts.Post, error)
	GetPost(ctx context.Context, id int64) (*posts.Post, error)
	CreatePost(ctx context.Context, in posts.CreatePostInput) (*posts.Post, error)
	UpdatePost(ctx context.Context, id int64, in posts.UpdatePostInput) (*posts.Post, error)
	DeletePost(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

type Handler struct {
	posts  PostService
	wsHub  *ws.Hub
	logger *zap.SugaredLogger
}

func NewHandler(svc PostService, wsHub *ws.Hub, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		posts:  svc,
		wsHub:  wsHub,
		logger: logger,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Readyz reports ready once the post store answers a ping.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.posts.Ping(ctx); err != nil {
		h.logger.Warnw("Readiness check failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, ReadinessResponse{Status: "unavailable", Reason: "post store unreachable"})
		return
	}
	h.writeJSON(w, http.StatusOK, ReadinessResponse{Status: "ready"})
}

// WebSocket endpoint
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		h.writeError(w, r, &posts.StoreError{Op: "websocket", Kind: posts.ErrTransient})
		return
	}
	h.wsHub.HandleWebSocket(w, r)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorw("Failed to encode response", "error", err)
	}
}

// writeError maps err onto the REST error body. Only internal failures are
// logged at error level; the rest are the caller's doing.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	f := describe(err)
	requestID := middleware.GetReqID(r.Context())

	if f.Status >= http.StatusInternalServerError {
		h.logger.Errorw("API error", "request_id", requestID, "code", f.Code, "status", f.Status, "error", err)
	} else {
		h.logger.Debugw("API request rejected", "request_id", requestID, "code", f.Code, "status", f.Status, "error", err)
	}

	h.writeJSON(w, f.Status, ErrorResponse{
		Error: f.Message,
		Code:  f.Code,
		Field: f.Field,
	})
}
