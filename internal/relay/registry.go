package relay

import (
	"sync"
	"time"
)

// Registry tracks live connections and the identity each one announced.
// An identity is online exactly while it owns at least one connection.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]*connEntry
	byIdentity map[string]map[string]struct{}
	lastSeen   map[string]time.Time
	now        func() time.Time
}

type connEntry struct {
	peer     Peer
	verified string // identity proven at handshake, empty if none
	identity string // identity announced with user:online
}

// Departure describes what an unregistered connection left behind.
type Departure struct {
	Identity string
	Offline  bool
	LastSeen time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		conns:      make(map[string]*connEntry),
		byIdentity: make(map[string]map[string]struct{}),
		lastSeen:   make(map[string]time.Time),
		now:        now,
	}
}

// Attach adds a connection that has not announced yet.
func (r *Registry) Attach(connID string, peer Peer, verified string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = &connEntry{peer: peer, verified: verified}
}

// Register binds connID to identity. It reports true when this made the
// identity go from zero to one live connection. Re-announcing the same
// identity is a no-op.
func (r *Registry) Register(identity, connID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return false, ErrUnknownConnection
	}
	if e.verified != "" && e.verified != identity {
		return false, ErrIdentityMismatch
	}
	if e.identity != "" {
		if e.identity == identity {
			return false, nil
		}
		return false, ErrIdentityMismatch
	}

	e.identity = identity
	set, ok := r.byIdentity[identity]
	if !ok {
		set = make(map[string]struct{})
		r.byIdentity[identity] = set
	}
	set[connID] = struct{}{}
	return len(set) == 1, nil
}

// Unregister removes a connection. The second result is false when the
// connection was unknown.
func (r *Registry) Unregister(connID string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return Departure{}, false
	}
	delete(r.conns, connID)

	d := Departure{Identity: e.identity}
	if e.identity == "" {
		return d, true
	}

	set := r.byIdentity[e.identity]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.byIdentity, e.identity)
		d.Offline = true
		d.LastSeen = r.now()
		r.lastSeen[e.identity] = d.LastSeen
	}
	return d, true
}

// IsOnline reports whether identity has a live connection.
func (r *Registry) IsOnline(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[identity]) > 0
}

// Identity returns the identity a connection announced.
func (r *Registry) Identity(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[connID]
	if !ok || e.identity == "" {
		return "", false
	}
	return e.identity, true
}

// Attached reports whether connID is known, announced or not.
func (r *Registry) Attached(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[connID]
	return ok
}

// Peer returns the outbound side of one connection.
func (r *Registry) Peer(connID string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return e.peer, true
}

// Peers resolves connection ids, skipping any that are gone.
func (r *Registry) Peers(connIDs []string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]Peer, 0, len(connIDs))
	for _, id := range connIDs {
		if e, ok := r.conns[id]; ok {
			peers = append(peers, e.peer)
		}
	}
	return peers
}

// PeersOf returns every live connection of identity (its personal channel).
func (r *Registry) PeersOf(identity string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]Peer, 0, len(r.byIdentity[identity]))
	for id := range r.byIdentity[identity] {
		peers = append(peers, r.conns[id].peer)
	}
	return peers
}

// PeersExcept returns every attached connection not owned by identity.
func (r *Registry) PeersExcept(identity string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]Peer, 0, len(r.conns))
	for _, e := range r.conns {
		if e.identity != identity {
			peers = append(peers, e.peer)
		}
	}
	return peers
}

// LastSeen returns when identity's last connection closed.
func (r *Registry) LastSeen(identity string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.lastSeen[identity]
	return ts, ok
}

// Counts returns the number of attached connections and online identities.
func (r *Registry) Counts() (conns, identities int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns), len(r.byIdentity)
}
