package relay

import (
	"errors"

	"github.com/eldtechnologies/chatrelay/internal/protocol"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNotAnnounced      = errors.New("connection has not announced an identity")
	ErrIdentityMismatch  = errors.New("identity does not match connection")
	ErrNotParticipant    = errors.New("identity is not a conversation participant")
)

// dropReason maps an error to the label used for dropped-event metrics.
func dropReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrMalformed):
		return "malformed"
	case errors.Is(err, protocol.ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(err, protocol.ErrInvalid):
		return "invalid"
	case errors.Is(err, ErrUnknownConnection):
		return "unknown_connection"
	case errors.Is(err, ErrNotAnnounced):
		return "not_announced"
	case errors.Is(err, ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, ErrNotParticipant):
		return "not_participant"
	default:
		return "error"
	}
}
