package app

import (
	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/dkeye/Signal/internal/metrics"
	"github.com/rs/zerolog/log"
)

// PublishResult reports fan-out stats for a single frame.
type PublishResult struct {
	SendTo  int
	Dropped []*core.Connection
}

// SignalRelay implements join semantics and room fan-out on top of
// RoomRegistry. Delivery is best effort: recipients whose transport is
// closed or saturated are skipped, never retried.
type SignalRelay struct {
	Rooms   *core.RoomRegistry
	Bus     Bus
	Metrics *metrics.Metrics
}

func NewSignalRelay(rooms *core.RoomRegistry) *SignalRelay {
	return &SignalRelay{Rooms: rooms}
}

// HandleJoin registers c in room and acknowledges to c alone.
func (r *SignalRelay) HandleJoin(c *core.Connection, room domain.RoomID) bool {
	if err := room.Validate(); err != nil {
		r.Metrics.Frame(metrics.FrameInvalidJoin)
		log.Debug().Err(err).Str("module", "app.relay").Str("sid", string(c.ID())).Msg("join dropped")
		return false
	}
	ack := func() {
		if err := c.TrySend(core.JoinedFrame(room)); err != nil {
			log.Debug().Err(err).Str("module", "app.relay").Str("sid", string(c.ID())).Msg("joined ack not queued")
		}
	}
	if !r.Rooms.JoinThen(room, c, ack) {
		return false
	}
	r.Metrics.Frame(metrics.FrameJoined)
	log.Info().Str("module", "app.relay").Str("sid", string(c.ID())).Str("room", string(room)).Msg("join")
	return true
}

// HandleSignal relays msg verbatim to every other member of the sender's
// room. Frames from connections that have not joined are dropped.
func (r *SignalRelay) HandleSignal(c *core.Connection, msg core.Message) PublishResult {
	if c.State() != domain.ConnJoined {
		r.Metrics.Frame(metrics.FrameUnjoined)
		return PublishResult{}
	}
	room, ok := c.Room()
	if !ok {
		r.Metrics.Frame(metrics.FrameUnjoined)
		return PublishResult{}
	}

	if msg.IsNegotiation() {
		log.Info().Str("module", "app.relay").Str("type", msg.Type).Str("room", string(room)).Msg("relay")
	}
	res := r.deliver(r.Rooms.MembersExcluding(room, c), msg.Raw)
	r.Metrics.Frame(metrics.FrameRelayed)

	if r.Bus != nil {
		if err := r.Bus.Publish(room, msg.Raw); err != nil {
			log.Warn().Err(err).Str("module", "app.relay").Str("room", string(room)).Msg("bus publish")
		}
	}
	return res
}

// DeliverRemote fans a frame received from another instance out to all
// local members of room.
func (r *SignalRelay) DeliverRemote(room domain.RoomID, f core.Frame) PublishResult {
	return r.deliver(r.Rooms.Members(room), f)
}

// Disconnect is the single cleanup path for transport close and error.
func (r *SignalRelay) Disconnect(c *core.Connection) {
	room, _ := r.Rooms.Leave(c)
	if c.Close() {
		r.Metrics.Connection(metrics.ConnClosed)
		log.Info().Str("module", "app.relay").Str("sid", string(c.ID())).Str("room", string(room)).Msg("disconnected")
	}
}

func (r *SignalRelay) deliver(members []*core.Connection, f core.Frame) PublishResult {
	res := PublishResult{}
	for _, m := range members {
		if err := m.TrySend(f); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	r.Metrics.Deliveries(res.SendTo, len(res.Dropped))
	log.Debug().Str("module", "app.relay").Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
