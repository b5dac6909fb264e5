package hub

import (
	"log/slog"
	"sync"

	"tokenroom-relay/domain"
)

// Registry maps room ids to their member connections.
// A room present in the registry always has at least one member and a
// connection is a member of at most one room.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]domain.Connection
	joined map[string]string // connection id -> room id

	onRoomCount func(int)
}

func New() *Registry {
	return &Registry{
		rooms:  make(map[string]map[string]domain.Connection),
		joined: make(map[string]string),
	}
}

// OnRoomCount registers fn to observe the number of rooms after every
// membership change. fn runs under the registry lock, so observed values are
// never stale, and it must not call back into the registry.
func (r *Registry) OnRoomCount(fn func(int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRoomCount = fn
	if fn != nil {
		fn(len(r.rooms))
	}
}

// Join moves conn into roomID, leaving its previous room first.
func (r *Registry) Join(conn domain.Connection, roomID string) {
	r.mu.Lock()
	prev, had := r.joined[conn.ID()]
	if had && prev != roomID {
		r.removeLocked(conn.ID(), prev)
	}

	members, exists := r.rooms[roomID]
	if !exists {
		members = make(map[string]domain.Connection)
		r.rooms[roomID] = members
	}
	members[conn.ID()] = conn
	r.joined[conn.ID()] = roomID
	count := len(members)
	r.notifyLocked()
	r.mu.Unlock()

	if had && prev != roomID {
		slog.Debug("client left room", "room", prev, "clientId", conn.ID())
	}
	slog.Info("client joined room", "room", roomID, "clientId", conn.ID(), "clients", count)
}

// Leave removes conn from its current room and returns the room it left.
// Calling Leave on a connection without a room is a no-op.
func (r *Registry) Leave(conn domain.Connection) string {
	r.mu.Lock()
	roomID, had := r.joined[conn.ID()]
	if !had {
		r.mu.Unlock()
		return ""
	}
	removed := r.removeLocked(conn.ID(), roomID)
	r.notifyLocked()
	r.mu.Unlock()

	slog.Info("client left room", "room", roomID, "clientId", conn.ID())
	if removed {
		slog.Info("room removed", "room", roomID)
	}
	return roomID
}

// removeLocked drops id from roomID and deletes the room once empty.
// It reports whether the room was deleted.
func (r *Registry) removeLocked(id, roomID string) bool {
	delete(r.joined, id)
	members, exists := r.rooms[roomID]
	if !exists {
		return false
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, roomID)
		return true
	}
	return false
}

func (r *Registry) notifyLocked() {
	if r.onRoomCount != nil {
		r.onRoomCount(len(r.rooms))
	}
}

// Members returns a snapshot of the room's members, or nil if the room
// does not exist. The slice is safe to iterate while the registry changes.
func (r *Registry) Members(roomID string) []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, exists := r.rooms[roomID]
	if !exists {
		return nil
	}
	out := make([]domain.Connection, 0, len(members))
	for _, conn := range members {
		out = append(out, conn)
	}
	return out
}

func (r *Registry) RoomOf(conn domain.Connection) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.joined[conn.ID()]
	return roomID, ok
}

func (r *Registry) Stats() (rooms, clients int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.joined)
}
