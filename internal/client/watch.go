package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/leafsii/postboard-backend/internal/posts"
)

type wsEnvelope struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// WebSocketURL derives the event stream URL from the API base URL.
func WebSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	u.Path += "/v1/ws"
	return u.String(), nil
}

// Watch follows the server's post events and invalidates the matching keys
// until ctx ends. onEvent, when set, runs after the cache is updated.
func (c *Client) Watch(ctx context.Context, wsURL string, onEvent func(posts.Event)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return transportError(err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg wsEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return nil
			}
			return transportError(err)
		}
		if msg.Type != "post" {
			continue
		}

		var event posts.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			c.logger.Warnw("Ignoring malformed post event", "error", err)
			continue
		}
		c.Apply(event)
		if onEvent != nil {
			onEvent(event)
		}
	}
}

// Apply invalidates the cache keys an event affects.
func (c *Client) Apply(event posts.Event) {
	switch event.Type {
	case posts.EventCreated:
		c.cache.Invalidate(ListKey())
	case posts.EventUpdated:
		c.cache.Invalidate(ListKey(), PostKey(event.ID))
	case posts.EventDeleted:
		c.cache.Invalidate(ListKey())
		c.cache.Remove(PostKey(event.ID))
	}
}
