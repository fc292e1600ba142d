// Package rooms is the room store used by every front end: it applies
// mutations to a backend and announces the resulting room on a sync channel.
package rooms

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/codepair/internal/metrics"
	"github.com/eldtechnologies/codepair/internal/models"
	"github.com/eldtechnologies/codepair/internal/pubsub"
	"github.com/eldtechnologies/codepair/internal/remote"
	"github.com/eldtechnologies/codepair/internal/store"
)

// Mode tells where room state lives.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// Store is a room store bound to one backend for its whole lifetime.
type Store struct {
	mode       Mode
	backend    store.DataStore
	publisher  pubsub.Publisher
	subscriber pubsub.Subscriber
	push       *remote.PushChannel
	latency    time.Duration
	logger     zerolog.Logger
	closers    []func()
}

// NewLocal creates a store that persists to backend and publishes every
// mutation on ch. latency, when positive, delays create, join and get.
func NewLocal(backend store.DataStore, ch pubsub.Channel, latency time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		mode:       ModeLocal,
		backend:    backend,
		publisher:  ch,
		subscriber: ch,
		latency:    latency,
		logger:     logger.With().Str("component", "rooms").Str("mode", string(ModeLocal)).Logger(),
	}
}

// NewRemote creates a store backed by a codepair server. The server
// publishes updates itself; subscriptions go through push.
func NewRemote(client *remote.Client, push *remote.PushChannel, logger zerolog.Logger) *Store {
	return &Store{
		mode:       ModeRemote,
		backend:    client,
		subscriber: push,
		push:       push,
		logger:     logger.With().Str("component", "rooms").Str("mode", string(ModeRemote)).Logger(),
	}
}

// Mode returns the store's mode.
func (s *Store) Mode() Mode {
	return s.mode
}

// Backend returns the underlying data store.
func (s *Store) Backend() store.DataStore {
	return s.backend
}

// Close releases the backend and stops any background channel.
func (s *Store) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.backend.Close()
}

// Ping checks the backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Subscribe registers fn for updates to roomID.
func (s *Store) Subscribe(roomID string, fn func(models.Room)) func() {
	return s.subscriber.Subscribe(roomID, fn)
}

// OnStatusChange reports push connection status. In local mode there is
// no connection and fn is called once with StatusDisconnected.
func (s *Store) OnStatusChange(fn func(remote.Status)) func() {
	if s.push == nil {
		fn(remote.StatusDisconnected)
		return func() {}
	}
	return s.push.OnStatusChange(fn)
}

// CreateRoom creates a room. An empty language means JavaScript.
func (s *Store) CreateRoom(ctx context.Context, language models.Language) (*models.Room, error) {
	if language == "" {
		language = models.LanguageJavaScript
	}
	if !language.Valid() {
		return nil, models.ErrInvalidLanguage
	}
	if err := s.delay(ctx, s.latency); err != nil {
		return nil, err
	}

	room, err := s.backend.CreateRoom(ctx, language)
	if err != nil {
		return nil, err
	}
	metrics.RoomsCreated.WithLabelValues(string(room.Language)).Inc()
	s.logger.Debug().Str("room_id", room.ID).Str("language", string(room.Language)).Msg("room created")
	return room, nil
}

// GetRoom returns the room or nil if it does not exist.
func (s *Store) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	if err := s.delay(ctx, s.latency/2); err != nil {
		return nil, err
	}
	return s.backend.GetRoom(ctx, id)
}

// JoinRoom adds one participant to the room's count.
func (s *Store) JoinRoom(ctx context.Context, id string) (*models.Room, error) {
	if err := s.delay(ctx, s.latency); err != nil {
		return nil, err
	}
	room, err := s.backend.JoinRoom(ctx, id)
	return s.mutated(ctx, "join", room, err)
}

// LeaveRoom removes one participant from the count, never going below zero.
// A missing room is not an error; the returned room is nil.
func (s *Store) LeaveRoom(ctx context.Context, id string) (*models.Room, error) {
	room, err := s.backend.LeaveRoom(ctx, id)
	return s.mutated(ctx, "leave", room, err)
}

// UpdateCode replaces the room's code buffer. Concurrent writers race; the last one wins.
func (s *Store) UpdateCode(ctx context.Context, id, code string) (*models.Room, error) {
	room, err := s.backend.UpdateCode(ctx, id, code)
	return s.mutated(ctx, "code", room, err)
}

// UpdateLanguage switches the room's language, keeping its code.
func (s *Store) UpdateLanguage(ctx context.Context, id string, language models.Language) (*models.Room, error) {
	if !language.Valid() {
		return nil, models.ErrInvalidLanguage
	}
	room, err := s.backend.UpdateLanguage(ctx, id, language)
	return s.mutated(ctx, "language", room, err)
}

// AddParticipant registers a participant; nil if the room does not exist.
func (s *Store) AddParticipant(ctx context.Context, roomID string, name *string) (*models.Participant, error) {
	p, err := s.backend.AddParticipant(ctx, roomID, name)
	if err != nil || p == nil {
		return p, err
	}
	metrics.RoomMutations.WithLabelValues("participant_add").Inc()
	s.republish(ctx, roomID)
	return p, nil
}

// ListParticipants lists a room's participants; nil if the room does not exist.
func (s *Store) ListParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	return s.backend.ListParticipants(ctx, roomID)
}

// RemoveParticipant removes a participant and reports whether one was removed.
func (s *Store) RemoveParticipant(ctx context.Context, roomID, participantID string) (bool, error) {
	ok, err := s.backend.RemoveParticipant(ctx, roomID, participantID)
	if err != nil || !ok {
		return ok, err
	}
	metrics.RoomMutations.WithLabelValues("participant_remove").Inc()
	s.republish(ctx, roomID)
	return true, nil
}

// mutated counts and publishes a successful mutation.
func (s *Store) mutated(ctx context.Context, kind string, room *models.Room, err error) (*models.Room, error) {
	if err != nil || room == nil {
		return room, err
	}
	metrics.RoomMutations.WithLabelValues(kind).Inc()
	s.publish(ctx, *room)
	return room, nil
}

// republish announces the current state of a room after a participant change.
func (s *Store) republish(ctx context.Context, roomID string) {
	if s.publisher == nil {
		return
	}
	room, err := s.backend.GetRoom(ctx, roomID)
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Msg("reload for publish failed")
		return
	}
	if room != nil {
		s.publish(ctx, *room)
	}
}

func (s *Store) publish(ctx context.Context, room models.Room) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, room); err != nil {
		metrics.PublishFailures.Inc()
		s.logger.Warn().Err(err).Str("room_id", room.ID).Msg("publish failed")
	}
}

func (s *Store) delay(ctx context.Context, d time.Duration) error {
	if d <= 0 || s.mode != ModeLocal {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
