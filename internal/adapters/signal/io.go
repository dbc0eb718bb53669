package signal

import (
	"context"
	"time"

	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn, logger *zerolog.Logger) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				logger.Debug().Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				logger.Debug().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug().Err(err).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				logger.Debug().Err(err).Msg("writePump ping error")
				return
			}
		}
	}
}

// readPump owns all reads from c and returns once the transport is gone.
func (ctl *SignalWSController) readPump(conn *core.Connection, c *WsSignalConn, logger *zerolog.Logger) {
	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	}
	_ = extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn().Err(err).Msg("readPump read error")
			} else {
				logger.Debug().Err(err).Msg("readPump closing")
			}
			return
		}
		_ = extend()
		ctl.handleSignal(conn, data, logger)
	}
}

// handleSignal decodes one inbound frame and dispatches it. Undecodable
// frames are dropped without a reply.
func (ctl *SignalWSController) handleSignal(conn *core.Connection, data []byte, logger *zerolog.Logger) {
	msg, err := core.DecodeFrame(data)
	if err != nil {
		ctl.Relay.Metrics.Frame(metrics.FrameMalformed)
		logger.Debug().Err(err).Int("bytes", len(data)).Msg("frame dropped")
		return
	}

	switch msg.Type {
	case core.TypeJoin:
		ctl.Relay.HandleJoin(conn, msg.RoomID)
	default:
		ctl.Relay.HandleSignal(conn, msg)
	}
}
