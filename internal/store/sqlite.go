package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/codepair/internal/ids"
	"github.com/eldtechnologies/codepair/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/codepair.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/codepair.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db, now: time.Now}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		language TEXT NOT NULL CHECK (language IN ('javascript', 'python')),
		created_at INTEGER NOT NULL,
		participants INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		name TEXT,
		joined_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_participants_room_id ON participants(room_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const sqliteRoomColumns = `id, code, language, created_at, participants`

func scanRoom(row interface{ Scan(...any) error }) (*models.Room, error) {
	room := &models.Room{}
	err := row.Scan(&room.ID, &room.Code, &room.Language, &room.CreatedAt, &room.Participants)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// CreateRoom creates a new room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, language models.Language) (*models.Room, error) {
	room := &models.Room{
		ID:           ids.NewRoomID(),
		Code:         models.DefaultCode(language),
		Language:     language,
		CreatedAt:    s.now().UnixMilli(),
		Participants: 1,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, code, language, created_at, participants)
		VALUES (?, ?, ?, ?, ?)
	`, room.ID, room.Code, room.Language, room.CreatedAt, room.Participants)
	if err != nil {
		return nil, err
	}

	return room, nil
}

// GetRoom retrieves a room by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	return scanRoom(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRoomColumns+` FROM rooms WHERE id = ?`,
		models.NormalizeRoomID(id)))
}

// JoinRoom increments the participant counter.
func (s *SQLiteStore) JoinRoom(ctx context.Context, id string) (*models.Room, error) {
	return scanRoom(s.db.QueryRowContext(ctx, `
		UPDATE rooms SET participants = participants + 1
		WHERE id = ?
		RETURNING `+sqliteRoomColumns,
		models.NormalizeRoomID(id)))
}

// LeaveRoom decrements the participant counter, never below zero.
func (s *SQLiteStore) LeaveRoom(ctx context.Context, id string) (*models.Room, error) {
	return scanRoom(s.db.QueryRowContext(ctx, `
		UPDATE rooms SET participants = MAX(participants - 1, 0)
		WHERE id = ?
		RETURNING `+sqliteRoomColumns,
		models.NormalizeRoomID(id)))
}

// UpdateCode overwrites the room's code buffer.
func (s *SQLiteStore) UpdateCode(ctx context.Context, id, code string) (*models.Room, error) {
	return scanRoom(s.db.QueryRowContext(ctx, `
		UPDATE rooms SET code = ?
		WHERE id = ?
		RETURNING `+sqliteRoomColumns,
		code, models.NormalizeRoomID(id)))
}

// UpdateLanguage overwrites the room's language.
func (s *SQLiteStore) UpdateLanguage(ctx context.Context, id string, language models.Language) (*models.Room, error) {
	return scanRoom(s.db.QueryRowContext(ctx, `
		UPDATE rooms SET language = ?
		WHERE id = ?
		RETURNING `+sqliteRoomColumns,
		language, models.NormalizeRoomID(id)))
}

// AddParticipant records a participant and bumps the room's counter.
// Returns (nil, nil) when the room does not exist.
func (s *SQLiteStore) AddParticipant(ctx context.Context, roomID string, name *string) (*models.Participant, error) {
	roomID = models.NormalizeRoomID(roomID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE rooms SET participants = participants + 1 WHERE id = ?`, roomID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	p := &models.Participant{
		ID:       ids.NewParticipantID(),
		Name:     name,
		JoinedAt: s.now().UnixMilli(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO participants (id, room_id, name, joined_at)
		VALUES (?, ?, ?, ?)
	`, p.ID, roomID, p.Name, p.JoinedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// ListParticipants returns a room's participants ordered by join time.
// Returns (nil, nil) when the room does not exist.
func (s *SQLiteStore) ListParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	roomID = models.NormalizeRoomID(roomID)

	room, err := s.GetRoom(ctx, roomID)
	if err != nil || room == nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, joined_at
		FROM participants
		WHERE room_id = ?
		ORDER BY joined_at, id
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		var p models.Participant
		var name sql.NullString
		if err := rows.Scan(&p.ID, &name, &p.JoinedAt); err != nil {
			return nil, err
		}
		if name.Valid {
			p.Name = &name.String
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

// RemoveParticipant deletes a participant and decrements the room's counter.
func (s *SQLiteStore) RemoveParticipant(ctx context.Context, roomID, participantID string) (bool, error) {
	roomID = models.NormalizeRoomID(roomID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE id = ? AND room_id = ?`, participantID, roomID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE rooms SET participants = MAX(participants - 1, 0) WHERE id = ?`, roomID)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}
