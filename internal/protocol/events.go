// Package protocol defines the relay's wire format: a JSON envelope carrying
// one of a closed set of typed events in each direction.
package protocol

import (
	"encoding/json"
	"errors"
)

// Client to server events.
const (
	EventUserOnline       = "user:online"
	EventConversationJoin = "conversation:join"
	EventMessageSend      = "message:send"
	EventMessageDelivered = "message:delivered"
	EventMessageSeen      = "message:seen"
	EventTypingStart      = "typing:start"
	EventTypingStop       = "typing:stop"
)

// Server to client events.
const (
	EventMessageSent            = "message:sent"
	EventMessageFailed          = "message:failed"
	EventMessageNew             = "message:new"
	EventNotificationNew        = "notification:new"
	EventMessageStatusDelivered = "message:status:delivered"
	EventMessageStatusSeen      = "message:status:seen"
	EventTypingUser             = "typing:user"
	EventUserStatus             = "user:status"
)

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnknownEvent = errors.New("unknown event")
	ErrInvalid      = errors.New("invalid payload")
)

// Envelope is the frame shape for every event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Event is anything that can be framed.
type Event interface {
	EventName() string
}

// Encode frames an event.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: ev.EventName(), Data: data})
}

func open(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, errors.Join(ErrMalformed, err)
	}
	if env.Event == "" {
		return env, ErrMalformed
	}
	return env, nil
}

func unpack[T any](env Envelope, v *T) error {
	if len(env.Data) == 0 {
		return ErrMalformed
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return errors.Join(ErrMalformed, err)
	}
	return nil
}
