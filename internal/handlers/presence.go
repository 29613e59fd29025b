package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// Presence reports whether an identity is online. When this process has
// no record of it, lastSeen falls back to Redis and then the user row.
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.Error(w, http.StatusBadRequest, "missing id")
		return
	}

	p := h.live.Presence(id)
	if p.Online || p.LastSeen != nil {
		h.JSON(w, http.StatusOK, p)
		return
	}

	if h.redis != nil {
		shared, err := h.redis.Presence(r.Context(), id)
		if err != nil {
			h.log.Warn().Err(err).Str("user_id", id).Msg("redis presence lookup failed")
		} else if shared != nil {
			h.JSON(w, http.StatusOK, shared)
			return
		}
	}

	user, err := h.db.GetUser(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}
	h.JSON(w, http.StatusOK, models.Presence{UserID: id, LastSeen: user.LastSeen})
}
