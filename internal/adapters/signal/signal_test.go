package signal

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Signal/internal/app"
	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/dkeye/Signal/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	relay *app.SignalRelay
	url   string
}

func newTestServer(t *testing.T, ctx context.Context, opts Options) *testServer {
	t.Helper()
	relay := app.NewSignalRelay(core.NewRoomRegistry())
	relay.Metrics = metrics.New()
	ctl := NewSignalWSController(relay, opts)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctl.Serve(ctx, w, r, "test-client")
	}))
	t.Cleanup(ts.Close)
	return &testServer{relay: relay, url: "ws" + strings.TrimPrefix(ts.URL, "http")}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, s string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(s)))
}

func expect(t *testing.T, ws *websocket.Conn, want string) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, want, string(data))
}

// expectNothing leaves ws unreadable afterwards; call it last.
func expectNothing(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, data, err := ws.ReadMessage()
	require.Error(t, err, "unexpected frame %q", data)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

func (s *testServer) members(room domain.RoomID) int {
	return len(s.relay.Rooms.Members(room))
}

func TestSignal_JoinOfferDisconnect(t *testing.T) {
	srv := newTestServer(t, context.Background(), Options{})
	a := dial(t, srv.url)
	b := dial(t, srv.url)

	send(t, a, `{"type":"join","roomId":"abcd1234"}`)
	expect(t, a, `{"type":"joined","roomId":"abcd1234"}`)
	send(t, b, `{"type":"join","roomId":"abcd1234"}`)
	expect(t, b, `{"type":"joined","roomId":"abcd1234"}`)

	offer := `{"type":"offer", "sdp":"v=0...", "meta":{"x":[1, 2]}}`
	send(t, a, offer)
	expect(t, b, offer)

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool { return srv.members("abcd1234") == 1 }, 2*time.Second, 10*time.Millisecond)

	send(t, a, `{"type":"candidate","candidate":"c"}`)
	expectNothing(t, a)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return !srv.relay.Rooms.Has("abcd1234") }, 2*time.Second, 10*time.Millisecond)
}

func TestSignal_MalformedFramesAreSilentlyDropped(t *testing.T) {
	srv := newTestServer(t, context.Background(), Options{})
	a := dial(t, srv.url)

	send(t, a, `not json`)
	send(t, a, `{"roomId":"r"}`)
	send(t, a, `{"type":42}`)
	send(t, a, `{"type":"join","roomId":""}`)
	send(t, a, `{"type":"join","roomId":"r"}`)

	// the first reply is the join ack: nothing was sent for the earlier frames
	expect(t, a, `{"type":"joined","roomId":"r"}`)
	assert.Equal(t, 1, srv.relay.Rooms.Len())

	send(t, a, `{"type":`)
	expectNothing(t, a)
	assert.Equal(t, 1, srv.members("r"), "malformed frames leave membership alone")
}

func TestSignal_InvalidUTF8IsNotRelayed(t *testing.T) {
	srv := newTestServer(t, context.Background(), Options{})
	a := dial(t, srv.url)
	b := dial(t, srv.url)
	send(t, a, `{"type":"join","roomId":"r"}`)
	expect(t, a, `{"type":"joined","roomId":"r"}`)
	send(t, b, `{"type":"join","roomId":"r"}`)
	expect(t, b, `{"type":"joined","roomId":"r"}`)

	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, []byte("{\"type\":\"offer\",\"sdp\":\"\xff\xfe\"}")))
	send(t, a, `{"type":"offer","sdp":"ok"}`)

	// b's first frame is the valid one and b stays connected
	require.NoError(t, b.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, data, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)
	assert.Equal(t, `{"type":"offer","sdp":"ok"}`, string(data))
	assert.Equal(t, 2, srv.members("r"))
}

func TestSignal_UnjoinedSignalIsNotRelayed(t *testing.T) {
	srv := newTestServer(t, context.Background(), Options{})
	a := dial(t, srv.url)
	b := dial(t, srv.url)

	send(t, b, `{"type":"join","roomId":"r"}`)
	expect(t, b, `{"type":"joined","roomId":"r"}`)

	send(t, a, `{"type":"offer","roomId":"r","sdp":"early"}`)
	send(t, a, `{"type":"join","roomId":"r"}`)
	expect(t, a, `{"type":"joined","roomId":"r"}`)
	send(t, a, `{"type":"answer","sdp":"late"}`)

	expect(t, b, `{"type":"answer","sdp":"late"}`)
}

func TestSignal_RoomsAreIsolated(t *testing.T) {
	srv := newTestServer(t, context.Background(), Options{})
	a := dial(t, srv.url)
	b := dial(t, srv.url)
	c := dial(t, srv.url)

	for ws, room := range map[*websocket.Conn]string{a: "x", b: "x", c: "y"} {
		send(t, ws, `{"type":"join","roomId":"`+room+`"}`)
		expect(t, ws, `{"type":"joined","roomId":"`+room+`"}`)
	}

	send(t, a, `{"type":"custom","n":1}`)
	expect(t, b, `{"type":"custom","n":1}`)
	expectNothing(t, c)
}

func TestSignal_OversizeFrameClosesAndCleansUp(t *testing.T) {
	srv := newTestServer(t, context.Background(), Options{ReadLimit: 128})
	a := dial(t, srv.url)

	send(t, a, `{"type":"join","roomId":"r"}`)
	expect(t, a, `{"type":"joined","roomId":"r"}`)

	send(t, a, `{"type":"offer","sdp":"`+strings.Repeat("x", 512)+`"}`)

	require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := a.ReadMessage()
	require.Error(t, err)
	require.Eventually(t, func() bool { return !srv.relay.Rooms.Has("r") }, 2*time.Second, 10*time.Millisecond)
}

func TestSignal_ContextCancelClosesConnections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := newTestServer(t, ctx, Options{})
	a := dial(t, srv.url)

	send(t, a, `{"type":"join","roomId":"r"}`)
	expect(t, a, `{"type":"joined","roomId":"r"}`)

	cancel()

	require.NoError(t, a.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := a.ReadMessage()
	require.Error(t, err)
	require.Eventually(t, func() bool { return srv.relay.Rooms.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWsSignalConn_TrySend(t *testing.T) {
	// the websocket itself is never touched before Close
	c := &WsSignalConn{send: make(chan core.Frame, 1)}

	require.NoError(t, c.TrySend(core.Frame("a")))
	assert.ErrorIs(t, c.TrySend(core.Frame("b")), ErrBackpressure)
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{PingPeriod: 9 * time.Second}.withDefaults()
	assert.Equal(t, int64(65536), o.ReadLimit)
	assert.Equal(t, 10*time.Second, o.PongWait)
	assert.Equal(t, 5*time.Second, o.WriteWait)
	assert.Equal(t, 64, o.SendBuffer)
}
