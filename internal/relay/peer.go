package relay

import (
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/metrics"
	"github.com/eldtechnologies/chatrelay/internal/protocol"
)

// Peer is the outbound side of a connection. Send must not block and
// reports false when the frame was not queued.
type Peer interface {
	Send(frame []byte) bool
}

// broadcast encodes ev once and queues it on every peer. Delivery is
// best-effort; frames a slow peer cannot take are dropped.
func broadcast(log zerolog.Logger, peers []Peer, ev protocol.Outbound) int {
	if len(peers) == 0 {
		return 0
	}
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("event", ev.EventName()).Msg("encode failed")
		return 0
	}

	sent := 0
	for _, p := range peers {
		if p.Send(frame) {
			sent++
			continue
		}
		metrics.FramesDropped.Inc()
	}
	if sent < len(peers) {
		log.Warn().
			Str("event", ev.EventName()).
			Int("dropped", len(peers)-sent).
			Msg("slow consumers dropped frames")
	}
	return sent
}
