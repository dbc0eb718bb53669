// Package domain contains entity without logic, just meta-data
package domain

import "github.com/google/uuid"

// ConnID identifies one transport session for its whole lifetime.
type ConnID string

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

type ConnState int32

const (
	ConnUnjoined ConnState = iota
	ConnJoined
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnUnjoined:
		return "unjoined"
	case ConnJoined:
		return "joined"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}
