// Package relay routes chat events between live connections: presence,
// room membership, message fan-out, delivery receipts and typing.
package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/metrics"
	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/protocol"
)

const defaultPersistTimeout = 5 * time.Second

// Options configures a Hub.
type Options struct {
	Store          MessageStore
	Conversations  Conversations
	Presence       PresenceStore // optional
	Logger         zerolog.Logger
	PersistTimeout time.Duration
	Now            func() time.Time
}

// Stats is a point-in-time view of relay state.
type Stats struct {
	Connections int `json:"connections"`
	Online      int `json:"online"`
	Rooms       int `json:"rooms"`
}

// Hub dispatches decoded events to the relay components. Events from a
// single connection must be handled sequentially; distinct connections
// may call in concurrently.
type Hub struct {
	registry *Registry
	rooms    *Rooms
	presence *Presence
	relay    *Relay
	tracker  *Tracker
	log      zerolog.Logger
}

// NewHub wires the relay components.
func NewHub(opts Options) *Hub {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger.With().Str("component", "relay").Logger()

	registry := NewRegistry(opts.Now)
	rooms := NewRooms()

	return &Hub{
		registry: registry,
		rooms:    rooms,
		presence: &Presence{
			registry: registry,
			store:    opts.Presence,
			log:      log,
			now:      opts.Now,
			timeout:  opts.PersistTimeout,
		},
		relay: &Relay{
			registry:       registry,
			rooms:          rooms,
			store:          opts.Store,
			conversations:  opts.Conversations,
			log:            log,
			persistTimeout: opts.PersistTimeout,
		},
		tracker: &Tracker{
			registry:      registry,
			rooms:         rooms,
			store:         opts.Store,
			conversations: opts.Conversations,
			log:           log,
			timeout:       opts.PersistTimeout,
			now:           opts.Now,
		},
		log: log,
	}
}

// Relay returns the message relay.
func (h *Hub) Relay() *Relay { return h.relay }

// Tracker returns the receipt tracker.
func (h *Hub) Tracker() *Tracker { return h.tracker }

// Connect attaches a new connection. verified is the identity proven at
// handshake, or empty when the transport does not authenticate.
func (h *Hub) Connect(connID string, peer Peer, verified string) {
	h.registry.Attach(connID, peer, verified)
	metrics.OpenConnections.Inc()
	h.log.Debug().Str("conn_id", connID).Str("verified", verified).Msg("connection attached")
}

// Handle decodes and applies one inbound frame. Bad or unauthorized
// events are dropped and logged; they never close the connection.
func (h *Hub) Handle(ctx context.Context, connID string, frame []byte) {
	ev, err := protocol.Decode(frame)
	if err != nil {
		h.drop(connID, "", err)
		return
	}
	metrics.EventsReceived.WithLabelValues(ev.EventName()).Inc()

	switch e := ev.(type) {
	case protocol.UserOnline:
		err = h.presence.Announce(ctx, connID, e.UserID)
	case protocol.ConversationJoin:
		err = h.relay.Join(ctx, connID, e.ConversationID)
	case protocol.MessageSend:
		err = h.relay.Send(ctx, connID, e)
	case protocol.ReceiptReport:
		err = h.tracker.Report(ctx, connID, e)
	case protocol.TypingStart:
		err = h.relay.Typing(connID, protocol.TypingUser{
			ConversationID: e.ConversationID,
			UserID:         e.UserID,
			UserName:       e.UserName,
			IsTyping:       true,
		})
	case protocol.TypingStop:
		err = h.relay.Typing(connID, protocol.TypingUser{
			ConversationID: e.ConversationID,
			UserID:         e.UserID,
			IsTyping:       false,
		})
	}
	if err != nil {
		h.drop(connID, ev.EventName(), err)
	}
}

// Disconnect removes every trace of a connection: its rooms, its registry
// entry and, if it was the identity's last connection, its presence.
func (h *Hub) Disconnect(ctx context.Context, connID string) {
	left := h.rooms.Drop(connID)
	d, ok := h.presence.Depart(ctx, connID)
	if !ok {
		return
	}
	metrics.OpenConnections.Dec()
	h.log.Debug().
		Str("conn_id", connID).
		Str("user_id", d.Identity).
		Int("rooms", len(left)).
		Bool("offline", d.Offline).
		Msg("connection detached")
}

// Presence reports an identity's live state as seen by this process.
func (h *Hub) Presence(identity string) models.Presence {
	p := models.Presence{UserID: identity, Online: h.registry.IsOnline(identity)}
	if !p.Online {
		if ts, ok := h.registry.LastSeen(identity); ok {
			p.LastSeen = &ts
		}
	}
	return p
}

// Stats returns current connection, identity and room counts.
func (h *Hub) Stats() Stats {
	conns, online := h.registry.Counts()
	return Stats{Connections: conns, Online: online, Rooms: h.rooms.Count()}
}

func (h *Hub) drop(connID, event string, err error) {
	reason := dropReason(err)
	metrics.EventsDropped.WithLabelValues(reason).Inc()
	h.log.Warn().
		Err(err).
		Str("conn_id", connID).
		Str("event", event).
		Str("reason", reason).
		Msg("event dropped")
}
