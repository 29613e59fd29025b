package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/eldtechnologies/chatrelay/internal/metrics"
	"github.com/eldtechnologies/chatrelay/internal/models"
	"github.com/eldtechnologies/chatrelay/internal/protocol"
)

// MessageStore persists messages and their delivery receipts.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	MessageSenders(ctx context.Context, conversationID string, ids []string) (map[string]string, error)
	Receipts(ctx context.Context, ids []string) ([]models.Receipt, error)
	ApplyReceipts(ctx context.Context, batch models.ReceiptBatch) error
}

// Conversations resolves who takes part in a conversation.
type Conversations interface {
	Participants(ctx context.Context, conversationID string) ([]models.User, error)
}

// Observer is told about every message after it has been fanned out.
type Observer interface {
	MessageRelayed(msg models.Message, recipients []models.User)
}

// Relay persists messages and fans them out to rooms and personal channels.
type Relay struct {
	registry       *Registry
	rooms          *Rooms
	store          MessageStore
	conversations  Conversations
	log            zerolog.Logger
	persistTimeout time.Duration
	order          keyedMutex

	mu        sync.RWMutex
	observers []Observer
}

// Observe registers o for relayed messages.
func (r *Relay) Observe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Join subscribes connID to a conversation its identity participates in.
func (r *Relay) Join(ctx context.Context, connID, conversationID string) error {
	identity, ok := r.registry.Identity(connID)
	if !ok {
		return ErrNotAnnounced
	}
	participants, err := r.participants(ctx, conversationID)
	if err != nil {
		return err
	}
	if !isParticipant(participants, identity) {
		return ErrNotParticipant
	}

	if r.rooms.Join(connID, conversationID) {
		r.log.Debug().Str("conn_id", connID).Str("conversation_id", conversationID).Msg("joined room")
	}
	return nil
}

// Send persists a message from connID and relays it. The sender gets
// message:sent or, when the message cannot be stored, message:failed
// and nothing is fanned out.
func (r *Relay) Send(ctx context.Context, connID string, req protocol.MessageSend) error {
	identity, ok := r.registry.Identity(connID)
	if !ok {
		return ErrNotAnnounced
	}
	if identity != req.SenderID {
		return ErrIdentityMismatch
	}

	participants, err := r.participants(ctx, req.ConversationID)
	if err != nil {
		r.reply(connID, protocol.MessageFailed{TempID: req.TempID, Error: "conversation unavailable"})
		return err
	}
	if !isParticipant(participants, identity) {
		r.reply(connID, protocol.MessageFailed{TempID: req.TempID, Error: "not a participant"})
		return ErrNotParticipant
	}
	recipients := resolveRecipients(participants, identity, req.RecipientIDs)

	unlock := r.order.Lock(req.ConversationID)

	msg := models.Message{
		ConversationID: req.ConversationID,
		SenderID:       identity,
		Content:        req.Message.Content,
	}
	if err := r.persist(ctx, &msg); err != nil {
		unlock()
		metrics.SendFailures.Inc()
		r.reply(connID, protocol.MessageFailed{TempID: req.TempID, Error: "failed to persist message"})
		return fmt.Errorf("persist message: %w", err)
	}

	r.reply(connID, protocol.MessageSent{
		TempID:    req.TempID,
		MessageID: msg.ID,
		Status:    models.StatusSent,
	})
	r.fanout(msg, connID, recipients)
	unlock()

	r.notify(msg, recipients)
	return nil
}

// Publish fans out a message that was persisted by the server itself.
func (r *Relay) Publish(msg models.Message, recipients []models.User) {
	unlock := r.order.Lock(msg.ConversationID)
	r.fanout(msg, "", recipients)
	unlock()

	r.notify(msg, recipients)
}

// Typing relays a typing indicator from connID to the rest of the room.
func (r *Relay) Typing(connID string, ev protocol.TypingUser) error {
	identity, ok := r.registry.Identity(connID)
	if !ok {
		return ErrNotAnnounced
	}
	if identity != ev.UserID {
		return ErrIdentityMismatch
	}
	if !r.rooms.IsMember(connID, ev.ConversationID) {
		return ErrNotParticipant
	}
	r.BroadcastTyping(ev, connID)
	return nil
}

// BroadcastTyping sends a typing indicator to the room, skipping excludeConn.
func (r *Relay) BroadcastTyping(ev protocol.TypingUser, excludeConn string) {
	peers := r.registry.Peers(r.rooms.MembersExcept(ev.ConversationID, excludeConn))
	broadcast(r.log, peers, ev)
}

func (r *Relay) persist(ctx context.Context, msg *models.Message) error {
	ctx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()

	start := time.Now()
	err := r.store.CreateMessage(ctx, msg)
	metrics.PersistLatency.WithLabelValues("create_message").Observe(time.Since(start).Seconds())
	return err
}

func (r *Relay) participants(ctx context.Context, conversationID string) ([]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	defer cancel()
	return r.conversations.Participants(ctx, conversationID)
}

func (r *Relay) fanout(msg models.Message, excludeConn string, recipients []models.User) {
	peers := r.registry.Peers(r.rooms.MembersExcept(msg.ConversationID, excludeConn))
	broadcast(r.log, peers, protocol.MessageNew{
		ConversationID: msg.ConversationID,
		Message:        msg,
		SenderID:       msg.SenderID,
	})

	note := protocol.NotificationNew{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
	}
	for _, u := range recipients {
		broadcast(r.log, r.registry.PeersOf(u.ID), note)
	}

	metrics.MessagesRelayed.Inc()
	r.log.Debug().
		Str("message_id", msg.ID).
		Str("conversation_id", msg.ConversationID).
		Int("room_peers", len(peers)).
		Int("recipients", len(recipients)).
		Msg("message relayed")
}

func (r *Relay) notify(msg models.Message, recipients []models.User) {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, o := range observers {
		o.MessageRelayed(msg, recipients)
	}
}

func (r *Relay) reply(connID string, ev protocol.Outbound) {
	peer, ok := r.registry.Peer(connID)
	if !ok {
		return
	}
	broadcast(r.log, []Peer{peer}, ev)
}

func isParticipant(participants []models.User, identity string) bool {
	return lo.ContainsBy(participants, func(u models.User) bool { return u.ID == identity })
}

// resolveRecipients narrows requested ids to participants other than the
// sender. Without a request every other participant is a recipient.
func resolveRecipients(participants []models.User, sender string, requested []string) []models.User {
	others := lo.Filter(participants, func(u models.User, _ int) bool { return u.ID != sender })
	if len(requested) == 0 {
		return others
	}
	return lo.Filter(others, func(u models.User, _ int) bool { return lo.Contains(requested, u.ID) })
}
