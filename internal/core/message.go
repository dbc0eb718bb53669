package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/dkeye/Signal/internal/domain"
)

const (
	TypeJoin      = "join"
	TypeJoined    = "joined"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingType    = errors.New("missing message type")
)

// Message is a decoded inbound frame. Raw keeps the original bytes so
// relayed frames reach peers untouched.
type Message struct {
	Type   string
	RoomID domain.RoomID
	Raw    Frame
}

// IsNegotiation reports whether the message carries an offer, answer or
// candidate. Used for logging only; the relay treats all types alike.
func (m Message) IsNegotiation() bool {
	switch m.Type {
	case TypeOffer, TypeAnswer, TypeCandidate:
		return true
	}
	return false
}

// DecodeFrame peeks at the envelope of data. Only "type" and "roomId" are
// inspected; a roomId that is not a string decodes as empty. Frames that
// are not valid UTF-8 are malformed, since they are relayed as text.
func DecodeFrame(data []byte) (Message, error) {
	if !utf8.Valid(data) {
		return Message{}, fmt.Errorf("%w: invalid utf-8", ErrMalformedFrame)
	}
	var env struct {
		Type   string          `json:"type"`
		RoomID json.RawMessage `json:"roomId"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return Message{}, ErrMissingType
	}

	msg := Message{Type: env.Type, Raw: Frame(data)}
	if len(env.RoomID) > 0 {
		var room string
		if err := json.Unmarshal(env.RoomID, &room); err == nil {
			msg.RoomID = domain.RoomID(room)
		}
	}
	return msg, nil
}

// JoinedFrame builds the acknowledgment sent to a joining connection.
func JoinedFrame(room domain.RoomID) Frame {
	b, _ := json.Marshal(struct {
		Type   string        `json:"type"`
		RoomID domain.RoomID `json:"roomId"`
	}{TypeJoined, room})
	return b
}
