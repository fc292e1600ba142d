package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/codepair/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	room := models.Room{ID: "ABC123", Code: "x", Language: models.LanguagePython, CreatedAt: 1, Participants: 1}
	name := "alice"

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("POST /rooms", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Language string `json:"language"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Language == "cobol" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad language"})
			return
		}
		out := room
		out.Language = models.Language(req.Language)
		writeJSON(w, http.StatusCreated, out)
	})
	mux.HandleFunc("GET /rooms/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != room.ID {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Room not found"})
			return
		}
		writeJSON(w, http.StatusOK, room)
	})
	mux.HandleFunc("POST /rooms/{id}/join", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != room.ID {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		out := room
		out.Participants++
		writeJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("POST /rooms/{id}/leave", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != room.ID {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("PATCH /rooms/{id}/code", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		out := room
		out.Code = req.Code
		writeJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("PATCH /rooms/{id}/language", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("POST /rooms/{id}/participants", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name *string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, http.StatusCreated, models.Participant{ID: "P1", Name: req.Name, JoinedAt: 5})
	})
	mux.HandleFunc("GET /rooms/{id}/participants", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != room.ID {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, []models.Participant{{ID: "P1", Name: &name, JoinedAt: 5}})
	})
	mux.HandleFunc("DELETE /rooms/{id}/participants/{pid}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("pid") != "P1" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRooms(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL + "/")
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	room, err := c.CreateRoom(ctx, models.LanguagePython)
	require.NoError(t, err)
	assert.Equal(t, models.LanguagePython, room.Language)

	room, err = c.GetRoom(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, "ABC123", room.ID)

	room, err = c.GetRoom(ctx, "NOPE00")
	require.NoError(t, err)
	assert.Nil(t, room)

	room, err = c.JoinRoom(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, 2, room.Participants)

	room, err = c.JoinRoom(ctx, "NOPE00")
	require.NoError(t, err)
	assert.Nil(t, room)

	room, err = c.UpdateCode(ctx, "ABC123", "print(1)")
	require.NoError(t, err)
	assert.Equal(t, "print(1)", room.Code)

	_, err = c.LeaveRoom(ctx, "ABC123")
	require.NoError(t, err)
	_, err = c.LeaveRoom(ctx, "NOPE00")
	require.NoError(t, err)
}

func TestClientTransportError(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL)
	ctx := context.Background()

	_, err := c.UpdateLanguage(ctx, "ABC123", models.LanguageJavaScript)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
	assert.Equal(t, "boom\n", te.Error())

	_, err = c.CreateRoom(ctx, models.Language("cobol"))
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
	assert.Contains(t, te.Body, "bad language")

	assert.Equal(t, "HTTP 502", (&TransportError{StatusCode: 502}).Error())
}

func TestClientParticipants(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL)
	ctx := context.Background()

	name := "bob"
	p, err := c.AddParticipant(ctx, "ABC123", &name)
	require.NoError(t, err)
	require.NotNil(t, p.Name)
	assert.Equal(t, "bob", *p.Name)

	p, err = c.AddParticipant(ctx, "ABC123", nil)
	require.NoError(t, err)
	assert.Nil(t, p.Name)

	list, err := c.ListParticipants(ctx, "ABC123")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "alice", *list[0].Name)

	list, err = c.ListParticipants(ctx, "NOPE00")
	require.NoError(t, err)
	assert.Nil(t, list)

	ok, err := c.RemoveParticipant(ctx, "ABC123", "P1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.RemoveParticipant(ctx, "ABC123", "P2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClientConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).CreateRoom(context.Background(), models.LanguagePython)
	require.Error(t, err)
	var te *TransportError
	assert.False(t, errors.As(err, &te))
}
