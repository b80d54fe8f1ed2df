package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/johpaz/smart-calendar-assistant/internal/dialogue"
	"github.com/johpaz/smart-calendar-assistant/internal/identity"
)

const wsWriteTimeout = 10 * time.Second

// ServeChatSocket handles GET /ws/chat. Each text frame carries a
// ChatRequest and is answered with a dialogue.Reply.
func (h *Handler) ServeChatSocket(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	slog.Info("WebSocket connection request", "user_id", userID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()
	ws.SetReadLimit(h.maxBody)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.chatLoop(ctx, ws, userID)
	slog.Info("Chat socket ended", "user_id", userID)
}

func (h *Handler) chatLoop(ctx context.Context, ws *websocket.Conn, userID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var reply dialogue.Reply
		var req ChatRequest
		switch {
		case json.Unmarshal(message, &req) != nil:
			reply = dialogue.Reply{Status: dialogue.StatusError, Message: "invalid message"}
		case h.limiter != nil && !h.limiter.Allow(userID):
			reply = dialogue.Reply{Status: dialogue.StatusError, Message: "rate limit exceeded"}
		default:
			reply = h.turn(ctx, userID, "chat_ws", req.Message)
		}

		if err := h.writeJSON(ctx, ws, reply); err != nil {
			slog.Debug("WebSocket write error", "error", err, "user_id", userID)
			return
		}
	}
}

func (h *Handler) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}
