package store

import (
	"context"

	"github.com/eldtechnologies/codepair/internal/models"
)

// DataStore defines the interface for persistent storage of rooms and participants.
// LocalStore, SQLiteStore, PostgresStore and remote.Client implement this interface.
//
// Room lookups return (nil, nil) when the room does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Room operations
	CreateRoom(ctx context.Context, language models.Language) (*models.Room, error)
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	JoinRoom(ctx context.Context, id string) (*models.Room, error)
	LeaveRoom(ctx context.Context, id string) (*models.Room, error)
	UpdateCode(ctx context.Context, id, code string) (*models.Room, error)
	UpdateLanguage(ctx context.Context, id string, language models.Language) (*models.Room, error)

	// Participant operations
	AddParticipant(ctx context.Context, roomID string, name *string) (*models.Participant, error)
	ListParticipants(ctx context.Context, roomID string) ([]models.Participant, error)
	RemoveParticipant(ctx context.Context, roomID, participantID string) (bool, error)
}
