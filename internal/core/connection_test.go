package core

import (
	"errors"
	"testing"

	"github.com/dkeye/Signal/internal/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestConnection_StateMachine(t *testing.T) {
	reg := NewRoomRegistry()
	c := newTestConn("a")
	assert.Equal(t, domain.ConnUnjoined, c.State())
	_, ok := c.Room()
	assert.False(t, ok)

	reg.Join("r", c)
	assert.Equal(t, domain.ConnJoined, c.State())

	assert.True(t, c.Close())
	assert.False(t, c.Close())
	assert.Equal(t, domain.ConnClosed, c.State())
	assert.False(t, reg.Join("other", c))
	assert.Equal(t, domain.ConnClosed, c.State())
}

func TestConnection_TrySend(t *testing.T) {
	ctrl := gomock.NewController(t)
	sig := NewMockSignalConnection(ctrl)
	c := NewConnection("a", sig)

	frame := Frame(`{"type":"offer"}`)
	sig.EXPECT().TrySend(frame).Return(nil)
	assert.NoError(t, c.TrySend(frame))

	c.Close()
	// closed connections never reach the transport
	assert.True(t, errors.Is(c.TrySend(frame), ErrConnClosed))
}

func TestConnection_TrySendWithoutTransport(t *testing.T) {
	assert.True(t, errors.Is(newTestConn("a").TrySend(Frame("x")), ErrConnClosed))
}
