package store

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/codepair/internal/models"
)

var roomIDPattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// testRoomLifecycle exercises the room operations every backend shares.
func testRoomLifecycle(t *testing.T, s DataStore) {
	t.Helper()
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, models.LanguagePython)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Regexp(t, roomIDPattern, room.ID)
	assert.Equal(t, models.LanguagePython, room.Language)
	assert.Equal(t, models.DefaultCode(models.LanguagePython), room.Code)
	assert.Equal(t, 1, room.Participants)
	assert.NotZero(t, room.CreatedAt)

	got, err := s.GetRoom(ctx, strings.ToLower(room.ID))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *room, *got)

	joined, err := s.JoinRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, joined.Participants)

	for i := 0; i < 4; i++ {
		_, err = s.LeaveRoom(ctx, room.ID)
		require.NoError(t, err)
	}
	got, err = s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Participants, "participant count must not go negative")

	updated, err := s.UpdateCode(ctx, room.ID, "print(42)")
	require.NoError(t, err)
	assert.Equal(t, "print(42)", updated.Code)
	assert.Equal(t, models.LanguagePython, updated.Language)

	updated, err = s.UpdateLanguage(ctx, room.ID, models.LanguageJavaScript)
	require.NoError(t, err)
	assert.Equal(t, models.LanguageJavaScript, updated.Language)
	assert.Equal(t, "print(42)", updated.Code, "language switch keeps the buffer")

	got, err = s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, *updated, *got)
	assert.Equal(t, room.CreatedAt, got.CreatedAt)
}

func testUnknownRoom(t *testing.T, s DataStore) {
	t.Helper()
	ctx := context.Background()

	r, err := s.GetRoom(ctx, "NOPE00")
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = s.JoinRoom(ctx, "NOPE00")
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = s.LeaveRoom(ctx, "NOPE00")
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = s.UpdateCode(ctx, "NOPE00", "x")
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = s.UpdateLanguage(ctx, "NOPE00", models.LanguagePython)
	require.NoError(t, err)
	assert.Nil(t, r)

	p, err := s.AddParticipant(ctx, "NOPE00", nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	removed, err := s.RemoveParticipant(ctx, "NOPE00", "whoever")
	require.NoError(t, err)
	assert.False(t, removed)

	// Creating a room must not resurrect state for an unknown ID.
	_, err = s.CreateRoom(ctx, models.LanguageJavaScript)
	require.NoError(t, err)
	r, err = s.GetRoom(ctx, "NOPE00")
	require.NoError(t, err)
	assert.Nil(t, r)
}

// testTrackedParticipants covers backends that persist participants.
func testTrackedParticipants(t *testing.T, s DataStore) {
	t.Helper()
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, models.LanguageJavaScript)
	require.NoError(t, err)

	list, err := s.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, list)
	assert.Empty(t, list)

	alice := "alice"
	p1, err := s.AddParticipant(ctx, room.ID, &alice)
	require.NoError(t, err)
	require.NotNil(t, p1)
	require.NotNil(t, p1.Name)
	assert.Equal(t, "alice", *p1.Name)

	p2, err := s.AddParticipant(ctx, strings.ToLower(room.ID), nil)
	require.NoError(t, err)
	require.NotNil(t, p2)
	assert.Nil(t, p2.Name)
	assert.NotEqual(t, p1.ID, p2.ID)

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Participants)

	list, err = s.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{p1.ID, p2.ID}, ids)

	removed, err := s.RemoveParticipant(ctx, room.ID, p1.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveParticipant(ctx, room.ID, p1.ID)
	require.NoError(t, err)
	assert.False(t, removed, "second removal finds nothing")

	got, err = s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Participants)

	list, err = s.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p2.ID, list[0].ID)

	missing, err := s.ListParticipants(ctx, "NOPE00")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLocalStoreMemory(t *testing.T) {
	s := NewLocalStore(NewMemoryKV())
	defer s.Close()

	testRoomLifecycle(t, s)
	testUnknownRoom(t, s)
}

func TestLocalStoreParticipantsAreUntracked(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(NewMemoryKV())

	room, err := s.CreateRoom(ctx, models.LanguagePython)
	require.NoError(t, err)

	name := "bob"
	p, err := s.AddParticipant(ctx, room.ID, &name)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Len(t, p.ID, 26)
	assert.Equal(t, "bob", *p.Name)

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Participants)

	list, err := s.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, list)
	assert.Empty(t, list)

	removed, err := s.RemoveParticipant(ctx, room.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	missing, err := s.ListParticipants(ctx, "NOPE00")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTrackedStoreParticipants(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		testTrackedParticipants(t, NewTrackedStore(NewMemoryKV()))
	})

	t.Run("file", func(t *testing.T) {
		kv, err := NewFileKV(filepath.Join(t.TempDir(), "rooms.json"))
		require.NoError(t, err)
		testTrackedParticipants(t, NewTrackedStore(kv))
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		s := NewTrackedStore(NewRedisKVFromClient(client))
		testRoomLifecycle(t, s)
		testTrackedParticipants(t, s)
		assert.True(t, mr.Exists("codepair:"+ParticipantsKey))
	})
}

func TestTrackedStoreParticipantsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rooms.json")

	kv, err := NewFileKV(path)
	require.NoError(t, err)
	s := NewTrackedStore(kv)

	room, err := s.CreateRoom(ctx, models.LanguagePython)
	require.NoError(t, err)
	name := "carol"
	p, err := s.AddParticipant(ctx, room.ID, &name)
	require.NoError(t, err)

	kv2, err := NewFileKV(path)
	require.NoError(t, err)
	list, err := NewTrackedStore(kv2).ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)
	assert.Equal(t, "carol", *list[0].Name)
}

func TestLocalStoreSingleKeyLayout(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	s := NewLocalStore(kv)

	a, err := s.CreateRoom(ctx, models.LanguagePython)
	require.NoError(t, err)
	b, err := s.CreateRoom(ctx, models.LanguageJavaScript)
	require.NoError(t, err)

	raw, ok, err := kv.Get(ctx, RoomsKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"`+a.ID+`":`)
	assert.Contains(t, raw, `"`+b.ID+`":`)
	assert.Contains(t, raw, `"createdAt"`)
}

func TestLocalStoreCorruptState(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, RoomsKey, "{not json"))

	s := NewLocalStore(kv)
	_, err := s.GetRoom(ctx, "ABC123")
	assert.Error(t, err)
}

func TestLocalStoreFileKVSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "rooms.json")

	kv, err := NewFileKV(path)
	require.NoError(t, err)
	s := NewLocalStore(kv)

	room, err := s.CreateRoom(ctx, models.LanguageJavaScript)
	require.NoError(t, err)
	_, err = s.UpdateCode(ctx, room.ID, "let x = 1;")
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	kv2, err := NewFileKV(path)
	require.NoError(t, err)
	s2 := NewLocalStore(kv2)

	got, err := s2.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "let x = 1;", got.Code)
}

func TestFileKVMissingFile(t *testing.T) {
	kv, err := NewFileKV(filepath.Join(t.TempDir(), "rooms.json"))
	require.NoError(t, err)

	_, ok, err := kv.Get(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStoreRedisKV(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	kv := NewRedisKVFromClient(client)
	s := NewLocalStore(kv)

	testRoomLifecycle(t, s)
	testUnknownRoom(t, s)

	assert.True(t, mr.Exists("codepair:"+RoomsKey))
}

func TestRedisKVFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	kv, err := NewRedisKV(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer kv.Close()

	_, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", "v"))
	v, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "codepair.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))
	testRoomLifecycle(t, s)
	testUnknownRoom(t, s)
	testTrackedParticipants(t, s)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	s, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.RunMigrations(ctx, zerolog.Nop()))
	testRoomLifecycle(t, s)
	testUnknownRoom(t, s)
	testTrackedParticipants(t, s)
}
