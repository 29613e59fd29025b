package handlers

import (
	"net/http"

	"github.com/eldtechnologies/chatrelay/internal/api/middleware"
)

// Socket upgrades to a relay WebSocket. Only a token-proven identity is
// passed on; an unverified caller announces itself with user:online.
func (h *Handler) Socket(w http.ResponseWriter, r *http.Request) {
	id, verified := middleware.IdentityFromContext(r.Context())
	if !verified {
		id = ""
	}
	h.socket.Serve(w, r, id)
}
