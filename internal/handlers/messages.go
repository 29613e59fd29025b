package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

// ConversationResponse is a conversation's state for re-sync after reconnect.
type ConversationResponse struct {
	Conversation *models.Conversation `json:"conversation"`
	Messages     []models.Message     `json:"messages"`
}

// ConversationMessages returns the latest messages of a conversation the
// caller takes part in, oldest first.
func (h *Handler) ConversationMessages(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	conv, err := h.db.GetConversation(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if conv == nil {
		h.Error(w, http.StatusNotFound, "conversation not found")
		return
	}
	if !conv.HasParticipant(caller) {
		h.Error(w, http.StatusForbidden, "not a participant")
		return
	}

	msgs, err := h.db.ListMessages(r.Context(), id, limit)
	if errors.Is(err, store.ErrNotFound) {
		h.Error(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	h.JSON(w, http.StatusOK, ConversationResponse{Conversation: conv, Messages: msgs})
}

// UnreadResponse carries the caller's unread count.
type UnreadResponse struct {
	UserID string `json:"userId"`
	Unread int64  `json:"unread"`
}

// Unread counts messages addressed to the caller that they have not seen.
func (h *Handler) Unread(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFromContext(r.Context())

	n, err := h.db.UnreadCount(r.Context(), caller)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, UnreadResponse{UserID: caller, Unread: n})
}
