package domain

import "errors"

var ErrRoomIDEmpty = errors.New("room id empty")

// RoomID is an externally issued, opaque room token.
type RoomID string

func (id RoomID) Validate() error {
	if id == "" {
		return ErrRoomIDEmpty
	}
	return nil
}
