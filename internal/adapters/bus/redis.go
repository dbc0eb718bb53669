// Package bus carries relayed frames between relay instances over redis
// pub/sub, so peers of one room may be connected to different instances.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Signal/internal/config"
	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const outboxSize = 1024

var ErrBusFull = errors.New("bus outbox full")

// Message is the wire form of a relayed frame.
type Message struct {
	Origin  string        `json:"origin"`
	RoomID  domain.RoomID `json:"roomId"`
	Payload []byte        `json:"payload"`
}

// DeliverFunc hands a remote frame to local room members.
type DeliverFunc func(room domain.RoomID, f core.Frame)

type RedisBus struct {
	rdb    *redis.Client
	prefix string
	origin string
	outbox chan Message
}

// NewRedisBus connects to redis and verifies connectivity.
func NewRedisBus(ctx context.Context, cfg config.RedisConfig) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return newRedisBus(rdb, cfg.ChannelPrefix), nil
}

func newRedisBus(rdb *redis.Client, prefix string) *RedisBus {
	return &RedisBus{
		rdb:    rdb,
		prefix: prefix,
		origin: uuid.NewString(),
		outbox: make(chan Message, outboxSize),
	}
}

// Publish queues f for other instances. It never blocks.
func (b *RedisBus) Publish(room domain.RoomID, f core.Frame) error {
	select {
	case b.outbox <- Message{Origin: b.origin, RoomID: room, Payload: f}:
		return nil
	default:
		return ErrBusFull
	}
}

// Run publishes queued frames and delivers frames from other instances
// until ctx is done.
func (b *RedisBus) Run(ctx context.Context, deliver DeliverFunc) error {
	pubsub := b.rdb.PSubscribe(ctx, b.channel("*"))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	log.Info().Str("module", "adapters.bus").Str("origin", b.origin).Str("pattern", b.channel("*")).Msg("bus subscribed")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case m := <-b.outbox:
				raw, err := json.Marshal(m)
				if err != nil {
					continue
				}
				if err := b.rdb.Publish(ctx, b.channel(string(m.RoomID)), raw).Err(); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Str("module", "adapters.bus").Str("room", string(m.RoomID)).Msg("publish")
				}
			}
		}
	})
	g.Go(func() error {
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				if _, ok := b.RoomFromChannel(msg.Channel); !ok {
					continue
				}
				b.handle(msg.Payload, deliver)
			}
		}
	})
	return g.Wait()
}

func (b *RedisBus) handle(raw string, deliver DeliverFunc) {
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		log.Debug().Err(err).Str("module", "adapters.bus").Msg("bad bus message")
		return
	}
	if m.Origin == b.origin || m.RoomID == "" {
		return
	}
	deliver(m.RoomID, core.Frame(m.Payload))
}

func (b *RedisBus) Close() error { return b.rdb.Close() }

func (b *RedisBus) channel(room string) string {
	return b.prefix + room
}

// RoomFromChannel strips the configured prefix from a channel name.
func (b *RedisBus) RoomFromChannel(channel string) (domain.RoomID, bool) {
	room, ok := strings.CutPrefix(channel, b.prefix)
	return domain.RoomID(room), ok && room != ""
}
