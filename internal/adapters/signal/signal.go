package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Signal/internal/app"
	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/dkeye/Signal/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var ErrBackpressure = errors.New("backpressure")

// Options tunes the websocket transport.
type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 65536
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.PongWait <= o.PingPeriod {
		o.PongWait = o.PingPeriod * 10 / 9
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

type SignalWSController struct {
	Relay    *app.SignalRelay
	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(relay *app.SignalRelay, opts Options) *SignalWSController {
	return &SignalWSController{
		Relay: relay,
		opts:  opts.withDefaults(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// WsSignalConn is the websocket side of a core.SignalConnection. Frames
// are queued on send and written by the write pump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(conn *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: conn, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// Serve upgrades the request and runs the connection until the transport
// closes, errors, or ctx is cancelled. Cleanup always goes through
// Relay.Disconnect.
func (ctl *SignalWSController) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, client string) {
	ws, err := ctl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	sc := newWsSignalConn(ws, ctl.opts.SendBuffer)
	conn := core.NewConnection(domain.NewConnID(), sc)
	logger := log.With().
		Str("module", "signal").
		Str("sid", string(conn.ID())).
		Str("client", client).
		Logger()
	ctl.Relay.Metrics.Connection(metrics.ConnOpened)
	logger.Info().Str("remote", r.RemoteAddr).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg conc.WaitGroup
	wg.Go(func() {
		defer sc.Close()
		ctl.writePump(ctx, sc, &logger)
	})

	ctl.readPump(conn, sc, &logger)

	ctl.Relay.Disconnect(conn)
	cancel()
	sc.Close()
	wg.Wait()
	logger.Info().Msg("connection closed")
}
