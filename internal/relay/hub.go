// Package relay mirrors a leader connection's action stream to follower
// connections in the same room.
package relay

import (
	"encoding/json"
	"sync"
)

// Role values accepted on connect.
const (
	RoleLeader   = "leader"
	RoleFollower = "follower"
)

// conn is the subset of a websocket connection the hub needs. Narrowing it
// keeps fan-out logic testable without a network.
type conn interface {
	WriteMessage(messageType int, data []byte) error
}

// room holds the live membership of one sync room. Membership is derived
// entirely from open connections; an empty room is deleted on the spot.
type room struct {
	leader    conn
	followers map[conn]struct{}
}

func (r *room) empty() bool {
	return r.leader == nil && len(r.followers) == 0
}

// Hub owns all room state for one relay instance. All state lives behind
// the mutex; nothing escapes the instance.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

// Join registers a connection in a room under a role. A joining leader
// overwrites the current leader slot; the previous leader is demoted but
// stays connected. Any role other than leader joins as a follower.
func (h *Hub) Join(roomID, role string, c conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{followers: make(map[conn]struct{})}
		h.rooms[roomID] = r
	}
	if role == RoleLeader {
		r.leader = c
		return
	}
	r.followers[c] = struct{}{}
}

// Leave removes a connection from whichever role it held in the room. A
// departing leader leaves the slot empty; there is no election, a new
// leader must explicitly reconnect.
func (h *Hub) Leave(roomID string, c conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if r.leader == c {
		r.leader = nil
	}
	delete(r.followers, c)
	if r.empty() {
		delete(h.rooms, roomID)
	}
}

// Relay forwards a message to every follower in the room, but only when it
// came from the room's current leader. Follower-originated and malformed
// frames are dropped silently. Send failures to individual followers are
// ignored so one dead connection never affects delivery to the rest.
func (h *Hub) Relay(roomID string, sender conn, messageType int, data []byte) {
	if !json.Valid(data) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok || r.leader != sender {
		return
	}
	for f := range r.followers {
		_ = f.WriteMessage(messageType, data)
	}
}

// Rooms returns the number of live rooms.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Followers returns the follower count for a room.
func (h *Hub) Followers(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return 0
	}
	return len(r.followers)
}
