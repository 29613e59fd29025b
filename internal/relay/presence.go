package relay

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrelay/internal/metrics"
	"github.com/eldtechnologies/chatrelay/internal/protocol"
)

// PresenceStore keeps presence snapshots outside the process.
type PresenceStore interface {
	MarkOnline(ctx context.Context, userID string, at time.Time) error
	MarkOffline(ctx context.Context, userID string, lastSeen time.Time) error
}

// PresenceStores fans presence updates out to several stores.
type PresenceStores []PresenceStore

func (s PresenceStores) MarkOnline(ctx context.Context, userID string, at time.Time) error {
	var errs []error
	for _, st := range s {
		errs = append(errs, st.MarkOnline(ctx, userID, at))
	}
	return errors.Join(errs...)
}

func (s PresenceStores) MarkOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	var errs []error
	for _, st := range s {
		errs = append(errs, st.MarkOffline(ctx, userID, lastSeen))
	}
	return errors.Join(errs...)
}

// Presence turns registry transitions into user:status broadcasts.
// Broadcasts go to every other connection; there is no contact scoping.
// A transition and its broadcast run under a per-identity lock so
// observers see them in registry order.
type Presence struct {
	registry *Registry
	store    PresenceStore
	log      zerolog.Logger
	now      func() time.Time
	timeout  time.Duration
	order    keyedMutex
}

// Announce binds connID to identity and broadcasts online on the first connection.
func (p *Presence) Announce(ctx context.Context, connID, identity string) error {
	unlock := p.order.Lock(identity)
	defer unlock()

	cameOnline, err := p.registry.Register(identity, connID)
	if err != nil {
		return err
	}
	if !cameOnline {
		return nil
	}

	metrics.OnlineIdentities.Inc()
	p.log.Debug().Str("user_id", identity).Str("conn_id", connID).Msg("identity online")

	broadcast(p.log, p.registry.PeersExcept(identity), protocol.UserStatus{
		UserID: identity,
		Status: protocol.PresenceOnline,
	})
	p.record(ctx, identity, func(ctx context.Context) error {
		return p.store.MarkOnline(ctx, identity, p.now())
	})
	return nil
}

// Depart unregisters connID and broadcasts offline when it was the last one.
func (p *Presence) Depart(ctx context.Context, connID string) (Departure, bool) {
	// a connection's identity is fixed once announced, so the lock key
	// read here is the one Unregister will report
	if identity, ok := p.registry.Identity(connID); ok {
		unlock := p.order.Lock(identity)
		defer unlock()
	}

	d, ok := p.registry.Unregister(connID)
	if !ok || !d.Offline {
		return d, ok
	}

	metrics.OnlineIdentities.Dec()
	p.log.Debug().Str("user_id", d.Identity).Str("conn_id", connID).Msg("identity offline")

	lastSeen := d.LastSeen
	broadcast(p.log, p.registry.PeersExcept(d.Identity), protocol.UserStatus{
		UserID:   d.Identity,
		Status:   protocol.PresenceOffline,
		LastSeen: &lastSeen,
	})
	p.record(ctx, d.Identity, func(ctx context.Context) error {
		return p.store.MarkOffline(ctx, d.Identity, lastSeen)
	})
	return d, true
}

func (p *Presence) record(ctx context.Context, identity string, fn func(context.Context) error) {
	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		p.log.Warn().Err(err).Str("user_id", identity).Msg("presence store update failed")
	}
}
