// Package ids generates identifiers for rooms, participants and connections.
package ids

import (
	"crypto/rand"
	"io"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// RoomIDLength is the number of characters in a room ID.
const RoomIDLength = 6

const roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewRoomID returns a random 6-character uppercase alphanumeric room ID.
// Uniqueness is not checked; collisions are treated as negligible.
func NewRoomID() string {
	id, err := roomIDFrom(rand.Reader)
	if err != nil {
		panic(err)
	}
	return id
}

// roomIDFrom draws characters from r, discarding bytes at or above the last
// multiple of the alphabet size so every character is equally likely.
func roomIDFrom(r io.Reader) (string, error) {
	const limit = 256 - 256%len(roomIDAlphabet)

	id := make([]byte, 0, RoomIDLength)
	buf := make([]byte, RoomIDLength)
	for len(id) < RoomIDLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, c := range buf {
			if int(c) >= limit {
				continue
			}
			id = append(id, roomIDAlphabet[int(c)%len(roomIDAlphabet)])
			if len(id) == RoomIDLength {
				break
			}
		}
	}
	return string(id), nil
}

// NewParticipantID returns a time-ordered ULID string.
func NewParticipantID() string {
	return ulid.Make().String()
}

// NewConnID generates a time-ordered UUID v7 for a push connection.
func NewConnID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
