package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/eldtechnologies/codepair/internal/ids"
	"github.com/eldtechnologies/codepair/internal/models"
)

// RoomsKey is the single KV key holding every room as a JSON object keyed by room ID.
const RoomsKey = "coding-interview-rooms"

// ParticipantsKey holds tracked participants as a JSON object of room ID to
// participants in join order.
const ParticipantsKey = "coding-interview-participants"

// LocalStore keeps all rooms under one key of a KV. Unless created with
// NewTrackedStore, participants are not tracked individually; only the
// room's participant counter is maintained.
//
// Read-modify-write cycles are serialized within a process only. Two processes
// sharing the same KV race with last-write-wins semantics.
type LocalStore struct {
	kv    KV
	mu    sync.Mutex
	now   func() time.Time
	track bool
}

// NewLocalStore creates a LocalStore over kv.
func NewLocalStore(kv KV) *LocalStore {
	return &LocalStore{kv: kv, now: time.Now}
}

// NewTrackedStore creates a LocalStore that also records participants under
// ParticipantsKey, as the server's participant endpoints require.
func NewTrackedStore(kv KV) *LocalStore {
	return &LocalStore{kv: kv, now: time.Now, track: true}
}

// Close closes the underlying KV.
func (s *LocalStore) Close() {
	s.kv.Close()
}

// Ping checks the underlying KV.
func (s *LocalStore) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

func (s *LocalStore) load(ctx context.Context) (map[string]*models.Room, error) {
	raw, ok, err := s.kv.Get(ctx, RoomsKey)
	if err != nil {
		return nil, fmt.Errorf("local store: read rooms: %w", err)
	}
	rooms := make(map[string]*models.Room)
	if !ok || raw == "" {
		return rooms, nil
	}
	if err := json.Unmarshal([]byte(raw), &rooms); err != nil {
		return nil, fmt.Errorf("local store: decode rooms: %w", err)
	}
	return rooms, nil
}

func (s *LocalStore) save(ctx context.Context, rooms map[string]*models.Room) error {
	data, err := json.Marshal(rooms)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, RoomsKey, string(data)); err != nil {
		return fmt.Errorf("local store: write rooms: %w", err)
	}
	return nil
}

// mutate applies fn to the room with the given ID and persists the result.
// Returns (nil, nil) without writing when the room does not exist.
func (s *LocalStore) mutate(ctx context.Context, id string, fn func(*models.Room)) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	room, ok := rooms[models.NormalizeRoomID(id)]
	if !ok {
		return nil, nil
	}
	fn(room)
	if err := s.save(ctx, rooms); err != nil {
		return nil, err
	}
	out := *room
	return &out, nil
}

// CreateRoom creates a room seeded with the language's placeholder code.
func (s *LocalStore) CreateRoom(ctx context.Context, language models.Language) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	room := &models.Room{
		ID:           ids.NewRoomID(),
		Code:         models.DefaultCode(language),
		Language:     language,
		CreatedAt:    s.now().UnixMilli(),
		Participants: 1,
	}
	rooms[room.ID] = room

	if err := s.save(ctx, rooms); err != nil {
		return nil, err
	}
	out := *room
	return &out, nil
}

// GetRoom retrieves a room by ID.
func (s *LocalStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	rooms, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	room, ok := rooms[models.NormalizeRoomID(id)]
	if !ok {
		return nil, nil
	}
	return room, nil
}

// JoinRoom increments the participant counter.
func (s *LocalStore) JoinRoom(ctx context.Context, id string) (*models.Room, error) {
	return s.mutate(ctx, id, func(r *models.Room) { r.Participants++ })
}

// LeaveRoom decrements the participant counter, never below zero.
func (s *LocalStore) LeaveRoom(ctx context.Context, id string) (*models.Room, error) {
	return s.mutate(ctx, id, func(r *models.Room) {
		if r.Participants > 0 {
			r.Participants--
		}
	})
}

// UpdateCode overwrites the room's code buffer.
func (s *LocalStore) UpdateCode(ctx context.Context, id, code string) (*models.Room, error) {
	return s.mutate(ctx, id, func(r *models.Room) { r.Code = code })
}

// UpdateLanguage overwrites the room's language.
func (s *LocalStore) UpdateLanguage(ctx context.Context, id string, language models.Language) (*models.Room, error) {
	return s.mutate(ctx, id, func(r *models.Room) { r.Language = language })
}

// AddParticipant bumps the counter and returns the new participant. It is
// only stored when the store tracks participants.
func (s *LocalStore) AddParticipant(ctx context.Context, roomID string, name *string) (*models.Participant, error) {
	if !s.track {
		room, err := s.JoinRoom(ctx, roomID)
		if err != nil || room == nil {
			return nil, err
		}
		return s.newParticipant(name), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rooms, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	id := models.NormalizeRoomID(roomID)
	room, ok := rooms[id]
	if !ok {
		return nil, nil
	}
	members, err := s.loadParticipants(ctx)
	if err != nil {
		return nil, err
	}

	p := s.newParticipant(name)
	room.Participants++
	members[id] = append(members[id], *p)

	if err := s.save(ctx, rooms); err != nil {
		return nil, err
	}
	if err := s.saveParticipants(ctx, members); err != nil {
		return nil, err
	}
	return p, nil
}

// ListParticipants returns a room's tracked participants in join order, or
// an empty list when participants are not tracked. Returns (nil, nil) when
// the room does not exist.
func (s *LocalStore) ListParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil || room == nil {
		return nil, err
	}
	if !s.track {
		return []models.Participant{}, nil
	}

	members, err := s.loadParticipants(ctx)
	if err != nil {
		return nil, err
	}
	return append([]models.Participant{}, members[room.ID]...), nil
}

// RemoveParticipant deletes a tracked participant and decrements the room's
// counter. Without tracking there is nothing to remove.
func (s *LocalStore) RemoveParticipant(ctx context.Context, roomID, participantID string) (bool, error) {
	if !s.track {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	members, err := s.loadParticipants(ctx)
	if err != nil {
		return false, err
	}
	id := models.NormalizeRoomID(roomID)
	list := members[id]
	idx := -1
	for i, p := range list {
		if p.ID == participantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	members[id] = append(list[:idx:idx], list[idx+1:]...)
	if len(members[id]) == 0 {
		delete(members, id)
	}

	rooms, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	if room, ok := rooms[id]; ok && room.Participants > 0 {
		room.Participants--
	}

	if err := s.save(ctx, rooms); err != nil {
		return false, err
	}
	if err := s.saveParticipants(ctx, members); err != nil {
		return false, err
	}
	return true, nil
}

func (s *LocalStore) newParticipant(name *string) *models.Participant {
	return &models.Participant{
		ID:       ids.NewParticipantID(),
		Name:     name,
		JoinedAt: s.now().UnixMilli(),
	}
}

func (s *LocalStore) loadParticipants(ctx context.Context) (map[string][]models.Participant, error) {
	raw, ok, err := s.kv.Get(ctx, ParticipantsKey)
	if err != nil {
		return nil, fmt.Errorf("local store: read participants: %w", err)
	}
	members := make(map[string][]models.Participant)
	if !ok || raw == "" {
		return members, nil
	}
	if err := json.Unmarshal([]byte(raw), &members); err != nil {
		return nil, fmt.Errorf("local store: decode participants: %w", err)
	}
	return members, nil
}

func (s *LocalStore) saveParticipants(ctx context.Context, members map[string][]models.Participant) error {
	data, err := json.Marshal(members)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, ParticipantsKey, string(data)); err != nil {
		return fmt.Errorf("local store: write participants: %w", err)
	}
	return nil
}
