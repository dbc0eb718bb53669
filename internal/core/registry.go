package core

import (
	"sync"

	"github.com/dkeye/Signal/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomRegistry maps room ids to their member connections.
// Rooms exist only while they have members: created on first join,
// deleted on last leave. It never touches transport resources.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.ConnID]*Connection
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[domain.RoomID]map[domain.ConnID]*Connection)}
}

// Join adds c to room, moving it out of any room it was in before.
// Joining the same room twice is a no-op. It returns false only when c
// is already closed.
func (r *RoomRegistry) Join(room domain.RoomID, c *Connection) bool {
	return r.JoinThen(room, c, nil)
}

// JoinThen is Join with a hook run under the registry lock, after c is
// marked joined and before other members can see it. Frames c queues in
// onJoined therefore precede anything relayed to it from the room.
// onJoined must not call back into the registry.
func (r *RoomRegistry) JoinThen(room domain.RoomID, c *Connection, onJoined func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := c.join(room)
	if !ok {
		return false
	}
	if onJoined != nil {
		onJoined()
	}
	if prev != "" && prev != room {
		r.removeLocked(prev, c.id)
		log.Debug().Str("module", "core.registry").Str("sid", string(c.id)).Str("from_room", string(prev)).Msg("left previous room")
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[domain.ConnID]*Connection)
		r.rooms[room] = members
		log.Debug().Str("module", "core.registry").Str("room", string(room)).Msg("room created")
	}
	members[c.id] = c
	log.Debug().Str("module", "core.registry").Str("sid", string(c.id)).Str("room", string(room)).Int("members", len(members)).Msg("member added")
	return true
}

// Leave removes c from its recorded room. Safe to call any number of times.
func (r *RoomRegistry) Leave(c *Connection) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := c.detach()
	if room == "" {
		return "", false
	}
	r.removeLocked(room, c.id)
	log.Debug().Str("module", "core.registry").Str("sid", string(c.id)).Str("room", string(room)).Msg("member removed")
	return room, true
}

func (r *RoomRegistry) removeLocked(room domain.RoomID, id domain.ConnID) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, room)
		log.Debug().Str("module", "core.registry").Str("room", string(room)).Msg("room deleted")
	}
}

// MembersExcluding returns a snapshot of the other members of room.
// An unknown room yields an empty slice.
func (r *RoomRegistry) MembersExcluding(room domain.RoomID, c *Connection) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]*Connection, 0, len(members))
	for id, m := range members {
		if c != nil && id == c.id {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Members returns a snapshot of every member of room.
func (r *RoomRegistry) Members(room domain.RoomID) []*Connection {
	return r.MembersExcluding(room, nil)
}

// Has reports whether room currently has members.
func (r *RoomRegistry) Has(room domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room]
	return ok
}

// Len returns the number of live rooms.
func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
