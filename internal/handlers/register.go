package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
)

// RegisterRequest is the profile of the calling identity.
type RegisterRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// Register creates or renames the caller's user row. Registration is
// idempotent: repeating it only updates the name.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFromContext(r.Context())

	var req RegisterRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	user, err := h.db.CreateUser(r.Context(), caller, name, false)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to register user")
		return
	}
	h.JSON(w, http.StatusOK, user)
}

// CreateConversationRequest lists the other participants.
type CreateConversationRequest struct {
	ID           string   `json:"id,omitempty" validate:"omitempty,max=64"`
	Participants []string `json:"participants" validate:"required,min=1,dive,required,max=64"`
}

// CreateConversation opens a conversation between the caller and the
// listed participants.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFromContext(r.Context())

	var req CreateConversationRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "participants are required")
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	existing, err := h.db.GetConversation(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing != nil {
		h.Error(w, http.StatusConflict, "conversation already exists")
		return
	}

	participants := append([]string{caller}, req.Participants...)
	conv, err := h.db.CreateConversation(r.Context(), id, lo.Uniq(participants))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	h.JSON(w, http.StatusCreated, conv)
}
