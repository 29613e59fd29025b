package handlers

import "net/http"

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	Connections int `json:"connections"`
	Online      int `json:"online"`
	Rooms       int `json:"rooms"`
}

// Stats returns live relay counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s := h.live.Stats()
	h.JSON(w, http.StatusOK, StatsResponse{Connections: s.Connections, Online: s.Online, Rooms: s.Rooms})
}
