package relay

import "sync"

// Rooms tracks which conversation rooms each connection joined.
// Rooms are created on first join and kept when they empty.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // room -> conns
	joined  map[string]map[string]struct{} // conn -> rooms
}

// NewRooms creates an empty membership tracker.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join adds connID to room. It reports false when already a member.
func (r *Rooms) Join(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.members[room]
	if !ok {
		conns = make(map[string]struct{})
		r.members[room] = conns
	}
	if _, ok := conns[connID]; ok {
		return false
	}
	conns[connID] = struct{}{}

	rooms, ok := r.joined[connID]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[connID] = rooms
	}
	rooms[room] = struct{}{}
	return true
}

// Drop removes connID from every room it joined and returns those rooms.
func (r *Rooms) Drop(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.joined[connID]
	delete(r.joined, connID)

	left := make([]string, 0, len(rooms))
	for room := range rooms {
		delete(r.members[room], connID)
		left = append(left, room)
	}
	return left
}

// Members returns the connections in room.
func (r *Rooms) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.members[room]))
	for id := range r.members[room] {
		out = append(out, id)
	}
	return out
}

// MembersExcept returns the connections in room other than connID.
func (r *Rooms) MembersExcept(room, connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.members[room]))
	for id := range r.members[room] {
		if id != connID {
			out = append(out, id)
		}
	}
	return out
}

// Joined returns the rooms connID belongs to.
func (r *Rooms) Joined(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.joined[connID]))
	for room := range r.joined[connID] {
		out = append(out, room)
	}
	return out
}

// IsMember reports whether connID joined room.
func (r *Rooms) IsMember(connID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[room][connID]
	return ok
}

// Count returns the number of rooms ever joined.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
