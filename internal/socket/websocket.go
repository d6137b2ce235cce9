package socket

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/cognivyu/cognivyu/internal/chat"
	"github.com/cognivyu/cognivyu/internal/identity"
)

const (
	askTimeout   = 2 * time.Minute
	readLimit    = 64 << 10
	writeTimeout = 10 * time.Second
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// Asker answers one question.
type Asker interface {
	Ask(ctx context.Context, in chat.AskInput) (*chat.AskResult, error)
}

// Limiter decides whether a user may ask another question now.
type Limiter interface {
	Allow(key string) bool
}

// StatusMapper converts an Ask error into a status code and client message.
type StatusMapper func(err error) (int, string)

// inbound is a client frame.
type inbound struct {
	Type           string `json:"type"`
	Query          string `json:"query,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Domain         string `json:"domain,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
}

// outbound is a server frame.
type outbound struct {
	Type           string `json:"type"`
	RequestID      string `json:"request_id,omitempty"`
	Domain         string `json:"domain,omitempty"`
	Answer         string `json:"answer,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Error          string `json:"error,omitempty"`
	Status         int    `json:"status,omitempty"`
}

// WebSocketHandler serves /ws/chat: every ask frame yields exactly one answer
// or error frame, processed in order per connection.
type WebSocketHandler struct {
	chat          Asker
	sm            *SessionManager
	mapErr        StatusMapper
	limiter       Limiter
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(asker Asker, sm *SessionManager, mapErr StatusMapper, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		chat:          asker,
		sm:            sm,
		mapErr:        mapErr,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// SetLimiter rate-limits ask frames per user. Nil disables limiting.
func (h *WebSocketHandler) SetLimiter(l Limiter) {
	h.limiter = l
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == 0 {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}
	sessionID := sanitizeSessionID(r.URL.Query().Get("session_id"))
	slog.Info("WebSocket connection request", "user_id", userID, "username", identity.UsernameFromContext(r.Context()), "session_id", sessionID, "ip", identity.IPFromRequest(r))

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
	ws.SetReadLimit(readLimit)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.sm.Register(userID, sessionID, ws)
	defer h.sm.Unregister(userID, sessionID, ws)

	h.readLoop(r.Context(), ws, userID)
	slog.Info("Chat session ended", "user_id", userID, "session_id", sessionID)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, userID int64) {
	for {
		var msg inbound
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var reply outbound
		switch msg.Type {
		case "ask", "":
			reply = h.ask(ctx, userID, msg)
		case "ping":
			reply = outbound{Type: "pong", RequestID: msg.RequestID}
		default:
			reply = outbound{Type: "error", RequestID: msg.RequestID, Error: "unknown frame type", Status: http.StatusBadRequest}
		}

		if err := h.write(ctx, ws, reply); err != nil {
			slog.Debug("WebSocket write error", "error", err, "user_id", userID)
			return
		}
	}
}

func (h *WebSocketHandler) ask(ctx context.Context, userID int64, msg inbound) outbound {
	if h.limiter != nil && !h.limiter.Allow(strconv.FormatInt(userID, 10)) {
		return outbound{Type: "error", RequestID: msg.RequestID, Error: "rate limit exceeded", Status: http.StatusTooManyRequests}
	}

	askCtx, cancel := context.WithTimeout(ctx, askTimeout)
	defer cancel()

	res, err := h.chat.Ask(askCtx, chat.AskInput{
		UserID:         userID,
		Query:          msg.Query,
		ConversationID: msg.ConversationID,
		Domain:         msg.Domain,
	})
	if err != nil {
		status, text := h.mapErr(err)
		if status >= http.StatusInternalServerError {
			slog.Error("Ask over WebSocket failed", "error", err, "user_id", userID)
		}
		return outbound{Type: "error", RequestID: msg.RequestID, Error: text, Status: status}
	}
	return outbound{
		Type:           "answer",
		RequestID:      msg.RequestID,
		Domain:         res.Domain,
		Answer:         res.Answer,
		ConversationID: res.ConversationID,
	}
}

func (h *WebSocketHandler) write(ctx context.Context, ws *websocket.Conn, v outbound) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, ws, v)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return uuid.NewString()
	}
	return id
}
