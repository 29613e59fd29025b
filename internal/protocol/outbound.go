package protocol

import (
	"fmt"
	"time"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

// Outbound is a server event. Implementations are limited to this package.
type Outbound interface {
	Event
	outbound()
}

// MessageSent confirms a send to its originating connection.
type MessageSent struct {
	TempID    string        `json:"tempId"`
	MessageID string        `json:"messageId"`
	Status    models.Status `json:"status"`
}

// MessageFailed tells the originating connection its send was not persisted.
type MessageFailed struct {
	TempID string `json:"tempId"`
	Error  string `json:"error"`
}

// MessageNew carries a persisted message to the room.
type MessageNew struct {
	ConversationID string         `json:"conversationId"`
	Message        models.Message `json:"message"`
	SenderID       string         `json:"senderId"`
}

// NotificationNew is pushed to each recipient's personal channel.
type NotificationNew struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	SenderID       string `json:"senderId"`
}

// MessageStatus announces a change of aggregate status for a batch of messages.
type MessageStatus struct {
	MessageIDs []string      `json:"messageIds"`
	UserID     string        `json:"userId"`
	Status     models.Status `json:"status"`
	Timestamp  time.Time     `json:"timestamp"`
}

// TypingUser relays a typing indicator.
type TypingUser struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName,omitempty"`
	IsTyping       bool   `json:"isTyping"`
}

// Presence values carried by UserStatus.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// UserStatus announces a presence transition.
type UserStatus struct {
	UserID   string     `json:"userId"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

func (MessageSent) EventName() string     { return EventMessageSent }
func (MessageFailed) EventName() string   { return EventMessageFailed }
func (MessageNew) EventName() string      { return EventMessageNew }
func (NotificationNew) EventName() string { return EventNotificationNew }
func (TypingUser) EventName() string      { return EventTypingUser }
func (UserStatus) EventName() string      { return EventUserStatus }

func (m MessageStatus) EventName() string {
	if m.Status == models.StatusSeen {
		return EventMessageStatusSeen
	}
	return EventMessageStatusDelivered
}

func (MessageSent) outbound()     {}
func (MessageFailed) outbound()   {}
func (MessageNew) outbound()      {}
func (NotificationNew) outbound() {}
func (MessageStatus) outbound()   {}
func (TypingUser) outbound()      {}
func (UserStatus) outbound()      {}

// DecodeOutbound parses a server frame. Clients use it.
func DecodeOutbound(frame []byte) (Outbound, error) {
	env, err := open(frame)
	if err != nil {
		return nil, err
	}

	switch env.Event {
	case EventMessageSent:
		return unpackAs(env, MessageSent{})
	case EventMessageFailed:
		return unpackAs(env, MessageFailed{})
	case EventMessageNew:
		return unpackAs(env, MessageNew{})
	case EventNotificationNew:
		return unpackAs(env, NotificationNew{})
	case EventMessageStatusDelivered, EventMessageStatusSeen:
		return unpackAs(env, MessageStatus{})
	case EventTypingUser:
		return unpackAs(env, TypingUser{})
	case EventUserStatus:
		return unpackAs(env, UserStatus{})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func unpackAs[T Outbound](env Envelope, v T) (Outbound, error) {
	if err := unpack(env, &v); err != nil {
		return nil, err
	}
	return v, nil
}
