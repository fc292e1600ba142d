package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/codepair/internal/ids"
	"github.com/eldtechnologies/codepair/internal/models"
)

type envelope struct {
	Origin string            `json:"origin"`
	Event  models.RoomUpdate `json:"event"`
}

// RedisChannel extends a Local channel across processes with Redis pub/sub.
// Publish delivers to local subscribers right away and relays the event to
// every other instance listening on the same channel name.
type RedisChannel struct {
	local    *Local
	rdb      *redis.Client
	instance string
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisChannel wraps local. The Redis channel name is local.Name().
func NewRedisChannel(rdb *redis.Client, local *Local, logger zerolog.Logger) *RedisChannel {
	return &RedisChannel{
		local:    local,
		rdb:      rdb,
		instance: ids.NewConnID().String(),
		logger:   logger.With().Str("component", "redis_channel").Logger(),
	}
}

// Subscribe registers fn for updates to roomID.
func (c *RedisChannel) Subscribe(roomID string, fn Handler) func() {
	return c.local.Subscribe(roomID, fn)
}

// SubscribeAll registers fn for updates to every room.
func (c *RedisChannel) SubscribeAll(fn Handler) func() {
	return c.local.SubscribeAll(fn)
}

// Publish delivers room locally and relays it to other instances.
func (c *RedisChannel) Publish(ctx context.Context, room models.Room) error {
	ev := models.NewRoomUpdate(room)
	c.local.Deliver(ev)

	raw, err := json.Marshal(envelope{Origin: c.instance, Event: ev})
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, c.local.Name(), raw).Err()
}

// Start subscribes to the Redis channel and relays remote events until ctx
// is cancelled or Stop is called. It returns once the subscription is live.
func (c *RedisChannel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errors.New("redis channel already started")
	}

	sub := c.rdb.Subscribe(ctx, c.local.Name())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.receive(ctx, sub, c.done)

	c.logger.Info().Str("channel", c.local.Name()).Str("instance", c.instance).Msg("subscribed")
	return nil
}

func (c *RedisChannel) receive(ctx context.Context, sub *redis.PubSub, done chan struct{}) {
	defer close(done)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				c.logger.Warn().Err(err).Msg("dropping malformed event")
				continue
			}
			if env.Origin == c.instance {
				continue
			}
			c.local.Deliver(env.Event)
		}
	}
}

// Stop ends the receive loop and waits for it to exit.
func (c *RedisChannel) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
