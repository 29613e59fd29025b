package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/relay"
	"github.com/eldtechnologies/chatrelay/internal/store"
)

// Live is the in-memory relay state the read endpoints report on.
type Live interface {
	Presence(identity string) models.Presence
	Stats() relay.Stats
}

// Socket serves WebSocket upgrades.
type Socket interface {
	Serve(w http.ResponseWriter, r *http.Request, verified string)
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db       store.DataStore
	redis    *store.RedisStore // optional
	live     Live
	socket   Socket
	log      zerolog.Logger
	validate *validator.Validate
}

// NewHandler creates a new Handler. redis may be nil.
func NewHandler(db store.DataStore, redis *store.RedisStore, live Live, socket Socket, logger zerolog.Logger) *Handler {
	return &Handler{
		db:       db,
		redis:    redis,
		live:     live,
		socket:   socket,
		log:      logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// decode reads and validates a JSON body.
func (h *Handler) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return h.validate.Struct(v)
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}
