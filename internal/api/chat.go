package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cognivyu/cognivyu/internal/chat"
	"github.com/cognivyu/cognivyu/internal/domain"
	"github.com/cognivyu/cognivyu/internal/identity"
)

// ChatService is the conversation service used by ChatHandler.
type ChatService interface {
	Ask(ctx context.Context, in chat.AskInput) (*chat.AskResult, error)
	ListConversations(ctx context.Context, userID int64) ([]domain.ConversationSummary, error)
	ListMessages(ctx context.Context, userID int64, conversationID string) ([]domain.Turn, error)
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
	Domain         string `json:"domain,omitempty"`
}

type messageResponse struct {
	HumanMessage string    `json:"human_message"`
	BotMessage   string    `json:"bot_message"`
	Domain       string    `json:"domain"`
	Timestamp    time.Time `json:"timestamp"`
}

// ChatHandler handles the question and history endpoints.
type ChatHandler struct {
	chat ChatService
}

// NewChatHandler creates a chat handler.
func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{chat: svc}
}

// RegisterRoutes registers chat routes. askLimit wraps POST /ask only and may be nil.
func (h *ChatHandler) RegisterRoutes(r chi.Router, askLimit func(http.Handler) http.Handler) {
	if askLimit != nil {
		r.With(askLimit).Post("/ask", h.Ask)
	} else {
		r.Post("/ask", h.Ask)
	}
	r.Get("/conversations", h.Conversations)
	r.Get("/messages/{conversation_id}", h.Messages)
}

// Ask answers a question and records the turn.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.chat.Ask(r.Context(), chat.AskInput{
		UserID:         identity.UserIDFromContext(r.Context()),
		Query:          req.Query,
		ConversationID: req.ConversationID,
		Domain:         req.Domain,
	})
	if err != nil {
		status, msg := AskErrorStatus(err)
		if status >= http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "Ask failed", "error", err, "user_id", identity.UserIDFromContext(r.Context()))
		}
		Error(w, status, msg)
		return
	}
	JSON(w, http.StatusOK, res)
}

// AskErrorStatus maps an Ask error to an HTTP status and client message.
func AskErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrEmptyQuery):
		return http.StatusBadRequest, "query is required"
	case errors.Is(err, chat.ErrInvalidConversationID):
		return http.StatusBadRequest, "invalid conversation_id"
	case errors.Is(err, chat.ErrConversationForbidden):
		return http.StatusForbidden, "conversation belongs to another user"
	case errors.Is(err, chat.ErrNoUser):
		return http.StatusUnauthorized, "invalid token"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request canceled"
	default:
		return http.StatusBadGateway, "failed to answer query"
	}
}

// Conversations lists the user's conversations.
func (h *ChatHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.chat.ListConversations(r.Context(), identity.UserIDFromContext(r.Context()))
	if err != nil {
		slog.ErrorContext(r.Context(), "List conversations failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if convs == nil {
		convs = []domain.ConversationSummary{}
	}
	JSON(w, http.StatusOK, convs)
}

// Messages lists the turns of one of the user's conversations.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversation_id")
	turns, err := h.chat.ListMessages(r.Context(), identity.UserIDFromContext(r.Context()), conversationID)
	if err != nil {
		slog.ErrorContext(r.Context(), "List messages failed", "error", err, "conversation_id", conversationID)
		Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	out := make([]messageResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, messageResponse{
			HumanMessage: t.HumanMessage,
			BotMessage:   t.BotMessage,
			Domain:       t.Domain,
			Timestamp:    t.CreatedAt,
		})
	}
	JSON(w, http.StatusOK, out)
}
