package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/eldtechnologies/chatrelay/internal/models"
)

var validate = validator.New()

// Inbound is a decoded client event. Implementations are limited to this package.
type Inbound interface {
	Event
	inbound()
}

// UserOnline announces the identity that owns a connection.
// On the wire its data is the bare identity string.
type UserOnline struct {
	UserID string `validate:"required,max=128"`
}

// ConversationJoin subscribes a connection to a conversation room.
// On the wire its data is the bare conversation id.
type ConversationJoin struct {
	ConversationID string `validate:"required,max=128"`
}

// MessageBody is the client's draft of a message.
type MessageBody struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// MessageSend asks the relay to persist and fan out a message.
type MessageSend struct {
	ConversationID string      `json:"conversationId" validate:"required,max=128"`
	Message        MessageBody `json:"message"`
	SenderID       string      `json:"senderId" validate:"required,max=128"`
	TempID         string      `json:"tempId" validate:"required,max=128"`
	RecipientIDs   []string    `json:"recipientIds,omitempty" validate:"omitempty,max=256,dive,required"`
}

// ReceiptReport carries message:delivered and message:seen. Event holds which one.
type ReceiptReport struct {
	ConversationID string        `json:"conversationId" validate:"required,max=128"`
	MessageIDs     []string      `json:"messageIds" validate:"required,min=1,max=500,dive,required"`
	UserID         string        `json:"userId" validate:"required,max=128"`
	Event          models.Status `json:"-"`
}

// TypingStart reports that a user began composing.
type TypingStart struct {
	ConversationID string `json:"conversationId" validate:"required,max=128"`
	UserID         string `json:"userId" validate:"required,max=128"`
	UserName       string `json:"userName,omitempty" validate:"max=100"`
}

// TypingStop reports that a user stopped composing.
type TypingStop struct {
	ConversationID string `json:"conversationId" validate:"required,max=128"`
	UserID         string `json:"userId" validate:"required,max=128"`
}

func (UserOnline) EventName() string       { return EventUserOnline }
func (ConversationJoin) EventName() string { return EventConversationJoin }
func (MessageSend) EventName() string      { return EventMessageSend }
func (TypingStart) EventName() string      { return EventTypingStart }
func (TypingStop) EventName() string       { return EventTypingStop }

func (r ReceiptReport) EventName() string {
	if r.Event == models.StatusSeen {
		return EventMessageSeen
	}
	return EventMessageDelivered
}

func (UserOnline) inbound()       {}
func (ConversationJoin) inbound() {}
func (MessageSend) inbound()      {}
func (ReceiptReport) inbound()    {}
func (TypingStart) inbound()      {}
func (TypingStop) inbound()       {}

func (u UserOnline) MarshalJSON() ([]byte, error) { return json.Marshal(u.UserID) }

func (u *UserOnline) UnmarshalJSON(b []byte) error { return json.Unmarshal(b, &u.UserID) }

func (c ConversationJoin) MarshalJSON() ([]byte, error) { return json.Marshal(c.ConversationID) }

func (c *ConversationJoin) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &c.ConversationID)
}

// Decode parses and validates a client frame.
func Decode(frame []byte) (Inbound, error) {
	env, err := open(frame)
	if err != nil {
		return nil, err
	}

	switch env.Event {
	case EventUserOnline:
		return decodeAs(env, UserOnline{})
	case EventConversationJoin:
		return decodeAs(env, ConversationJoin{})
	case EventMessageSend:
		return decodeAs(env, MessageSend{})
	case EventMessageDelivered:
		return decodeAs(env, ReceiptReport{Event: models.StatusDelivered})
	case EventMessageSeen:
		return decodeAs(env, ReceiptReport{Event: models.StatusSeen})
	case EventTypingStart:
		return decodeAs(env, TypingStart{})
	case EventTypingStop:
		return decodeAs(env, TypingStop{})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decodeAs[T Inbound](env Envelope, v T) (Inbound, error) {
	if err := unpack(env, &v); err != nil {
		return nil, err
	}
	if err := validate.Struct(v); err != nil {
		return nil, errors.Join(ErrInvalid, err)
	}
	return v, nil
}
