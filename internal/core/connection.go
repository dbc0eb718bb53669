package core

import (
	"errors"
	"sync"

	"github.com/dkeye/Signal/internal/domain"
)

var ErrConnClosed = errors.New("connection closed")

// Connection is one live transport session and its protocol state.
// The room field is a back-reference only; RoomRegistry owns membership
// and is the only writer of it.
type Connection struct {
	id     domain.ConnID
	signal SignalConnection

	mu    sync.RWMutex
	state domain.ConnState
	room  domain.RoomID
}

func NewConnection(id domain.ConnID, signal SignalConnection) *Connection {
	return &Connection{id: id, signal: signal, state: domain.ConnUnjoined}
}

func (c *Connection) ID() domain.ConnID { return c.id }

func (c *Connection) State() domain.ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Room returns the room the connection currently belongs to, if any.
func (c *Connection) Room() (domain.RoomID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room, c.room != ""
}

// TrySend queues f on the transport without blocking.
func (c *Connection) TrySend(f Frame) error {
	c.mu.RLock()
	closed := c.state == domain.ConnClosed
	c.mu.RUnlock()
	if closed || c.signal == nil {
		return ErrConnClosed
	}
	return c.signal.TrySend(f)
}

// Close moves the connection to the terminal state. It reports whether
// this call performed the transition.
func (c *Connection) Close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.ConnClosed {
		return false
	}
	c.state = domain.ConnClosed
	return true
}

// join is called by RoomRegistry with its lock held.
func (c *Connection) join(room domain.RoomID) (prev domain.RoomID, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.ConnClosed {
		return "", false
	}
	prev = c.room
	c.room = room
	c.state = domain.ConnJoined
	return prev, true
}

// detach is called by RoomRegistry with its lock held.
func (c *Connection) detach() domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.room
	c.room = ""
	return room
}
