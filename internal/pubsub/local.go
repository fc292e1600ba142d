// Package pubsub delivers room update events to subscribers.
package pubsub

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/codepair/internal/models"
)

// ChannelName is the single channel every room update travels on.
const ChannelName = "coding-interview-sync"

// Handler receives the full updated room.
type Handler func(models.Room)

// Publisher announces room changes.
type Publisher interface {
	Publish(ctx context.Context, room models.Room) error
}

// Subscriber registers handlers for one room. The returned function
// removes the handler and may be called any number of times.
type Subscriber interface {
	Subscribe(roomID string, fn Handler) (unsubscribe func())
}

// Channel both publishes and subscribes.
type Channel interface {
	Publisher
	Subscriber
	SubscribeAll(fn Handler) (unsubscribe func())
}

type subscription struct {
	id     uint64
	roomID string // empty matches every room
	fn     Handler
}

// Local is an in-process broadcast channel shared by all rooms. Each
// subscriber filters on its room ID; handlers run synchronously on the
// publishing goroutine, outside the channel's lock.
type Local struct {
	name   string
	logger zerolog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

// NewLocal creates a channel. An empty name uses ChannelName.
func NewLocal(name string, logger zerolog.Logger) *Local {
	if name == "" {
		name = ChannelName
	}
	return &Local{
		name:   name,
		logger: logger.With().Str("component", "sync_channel").Logger(),
	}
}

// Name returns the channel name.
func (l *Local) Name() string {
	return l.name
}

// Subscribe registers fn for updates to roomID.
func (l *Local) Subscribe(roomID string, fn Handler) func() {
	return l.add(models.NormalizeRoomID(roomID), fn)
}

// SubscribeAll registers fn for updates to every room.
func (l *Local) SubscribeAll(fn Handler) func() {
	return l.add("", fn)
}

func (l *Local) add(roomID string, fn Handler) func() {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.subs = append(l.subs, subscription{id: id, roomID: roomID, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *Local) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.subs {
		if s.id == id {
			l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers room to the subscribers registered for its ID.
func (l *Local) Publish(_ context.Context, room models.Room) error {
	l.Deliver(models.NewRoomUpdate(room))
	return nil
}

// Deliver dispatches an already-built event. Events of an unknown type are dropped.
func (l *Local) Deliver(ev models.RoomUpdate) {
	if ev.Type != models.EventRoomUpdate {
		return
	}
	roomID := models.NormalizeRoomID(ev.RoomID)

	l.mu.RLock()
	targets := make([]Handler, 0, len(l.subs))
	for _, s := range l.subs {
		if s.roomID == "" || s.roomID == roomID {
			targets = append(targets, s.fn)
		}
	}
	l.mu.RUnlock()

	for _, fn := range targets {
		l.safeCall(fn, ev.Room)
	}
}

// Len returns the number of registered handlers.
func (l *Local) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}

// safeCall keeps one failing handler from starving the others.
func (l *Local) safeCall(fn Handler, room models.Room) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn().Interface("panic", r).Str("room_id", room.ID).Msg("subscriber panicked")
		}
	}()
	fn(room)
}
