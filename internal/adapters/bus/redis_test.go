package bus

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	room  domain.RoomID
	frame string
}

func collect(out *[]delivery) DeliverFunc {
	return func(room domain.RoomID, f core.Frame) {
		*out = append(*out, delivery{room, string(f)})
	}
}

func encode(t *testing.T, m Message) string {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	return string(raw)
}

func TestRedisBus_HandleDeliversForeignFrames(t *testing.T) {
	b := newRedisBus(nil, "signal:room:")
	var got []delivery

	frame := `{"type":"offer", "sdp":"v=0"}`
	b.handle(encode(t, Message{Origin: "other", RoomID: "r", Payload: []byte(frame)}), collect(&got))

	assert.Equal(t, []delivery{{"r", frame}}, got)
}

func TestRedisBus_HandleIgnoresOwnAndBadFrames(t *testing.T) {
	b := newRedisBus(nil, "signal:room:")
	var got []delivery

	b.handle(encode(t, Message{Origin: b.origin, RoomID: "r", Payload: []byte(`{}`)}), collect(&got))
	b.handle(encode(t, Message{Origin: "other", Payload: []byte(`{}`)}), collect(&got))
	b.handle(`garbage`, collect(&got))

	assert.Empty(t, got)
}

func TestRedisBus_PublishNeverBlocks(t *testing.T) {
	b := newRedisBus(nil, "signal:room:")
	for i := 0; i < outboxSize; i++ {
		require.NoError(t, b.Publish("r", core.Frame(`{}`)))
	}
	err := b.Publish("r", core.Frame(`{}`))
	assert.True(t, errors.Is(err, ErrBusFull))

	m := <-b.outbox
	assert.Equal(t, b.origin, m.Origin)
	assert.Equal(t, domain.RoomID("r"), m.RoomID)
}

func TestRedisBus_Channels(t *testing.T) {
	b := newRedisBus(nil, "signal:room:")
	assert.Equal(t, "signal:room:abcd1234", b.channel("abcd1234"))

	room, ok := b.RoomFromChannel("signal:room:abcd1234")
	assert.True(t, ok)
	assert.Equal(t, domain.RoomID("abcd1234"), room)

	_, ok = b.RoomFromChannel("other:abcd1234")
	assert.False(t, ok)
	_, ok = b.RoomFromChannel("signal:room:")
	assert.False(t, ok)
}
