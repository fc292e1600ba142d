package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/codepair/internal/config"
	"github.com/eldtechnologies/codepair/internal/models"
	"github.com/eldtechnologies/codepair/internal/pubsub"
	"github.com/eldtechnologies/codepair/internal/rooms"
	"github.com/eldtechnologies/codepair/internal/store"
)

func newTestStore(t *testing.T) *rooms.Store {
	t.Helper()
	s := rooms.NewLocal(store.NewLocalStore(store.NewMemoryKV()), pubsub.NewLocal("", zerolog.Nop()), 0, zerolog.Nop())
	t.Cleanup(s.Close)
	return s
}

func TestSeed(t *testing.T) {
	s := newTestStore(t)
	var out bytes.Buffer

	summary, err := seed(context.Background(), s, sampleRooms, &out)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	assert.Equal(t, models.LanguageJavaScript, summary[0].Room.Language)
	assert.Equal(t, []string{"Alice", "Bob"}, summary[0].names())
	assert.Equal(t, []string{"Carol"}, summary[1].names())

	room, err := s.GetRoom(context.Background(), summary[0].Room.ID)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, 3, room.Participants)

	assert.Contains(t, out.String(), "created room "+summary[1].Room.ID)
}

func TestRunCreateAndCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, s, "create", []string{"-lang", "python"}, nil, &out))

	var room models.Room
	require.NoError(t, json.Unmarshal(out.Bytes(), &room))
	assert.Equal(t, models.LanguagePython, room.Language)

	out.Reset()
	in := strings.NewReader("print(42)\n")
	require.NoError(t, run(ctx, s, "code", []string{strings.ToLower(room.ID)}, in, &out))

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "print(42)\n", got.Code)
}

func TestRunErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var out bytes.Buffer

	err := run(ctx, s, "get", []string{"NOPE01"}, nil, &out)
	assert.EqualError(t, err, "room NOPE01 not found")

	err = run(ctx, s, "create", []string{"-lang", "ruby"}, nil, &out)
	assert.ErrorIs(t, err, models.ErrInvalidLanguage)

	err = run(ctx, s, "join", nil, nil, &out)
	assert.EqualError(t, err, "usage: roomctl join <room_id>")

	err = run(ctx, s, "participants", []string{"list", "NOPE01"}, nil, &out)
	assert.EqualError(t, err, "room NOPE01 not found")
}

func TestRoomsPersistBetweenRuns(t *testing.T) {
	cfg := &config.Config{LocalStorePath: filepath.Join(t.TempDir(), "rooms.json")}
	cfg.PreferPersistent()
	require.Equal(t, config.DriverFile, cfg.StorageDriver)
	ctx := context.Background()

	first, err := rooms.Open(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, run(ctx, first, "create", nil, nil, &out))
	first.Close()

	var room models.Room
	require.NoError(t, json.Unmarshal(out.Bytes(), &room))

	second, err := rooms.Open(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer second.Close()

	out.Reset()
	require.NoError(t, run(ctx, second, "join", []string{room.ID}, nil, &out))
	assert.Equal(t, 2, decodeRoom(t, out.Bytes()).Participants)
}

func TestWatchSeesOtherProcess(t *testing.T) {
	cfg := &config.Config{
		LocalStorePath:   filepath.Join(t.TempDir(), "rooms.json"),
		SyncPollInterval: 10 * time.Millisecond,
	}
	cfg.PreferPersistent()
	require.NoError(t, checkWatch(cfg))

	writer, err := rooms.Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer writer.Close()
	watcher, err := rooms.Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer watcher.Close()

	room, err := writer.CreateRoom(context.Background(), models.LanguagePython)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- watch(ctx, watcher, room.ID, out) }()

	// Keep writing until the watcher has subscribed and picked a change up.
	require.Eventually(t, func() bool {
		if _, err := writer.UpdateCode(context.Background(), room.ID, "print('from elsewhere')"); err != nil {
			return false
		}
		if _, err := writer.JoinRoom(context.Background(), room.ID); err != nil {
			return false
		}
		return strings.Contains(out.String(), "from elsewhere")
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Contains(t, out.String(), `"type": "ROOM_UPDATE"`)
}

func TestCheckWatch(t *testing.T) {
	assert.Error(t, checkWatch(&config.Config{StorageDriver: config.DriverMemory}))
	assert.NoError(t, checkWatch(&config.Config{StorageDriver: config.DriverMemory, RedisURL: "redis://localhost"}))
	assert.NoError(t, checkWatch(&config.Config{StorageDriver: config.DriverMemory, APIURL: "http://localhost"}))
	assert.NoError(t, checkWatch(&config.Config{StorageDriver: config.DriverFile}))
}

func decodeRoom(t *testing.T, data []byte) models.Room {
	t.Helper()
	var room models.Room
	require.NoError(t, json.Unmarshal(data, &room))
	return room
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
