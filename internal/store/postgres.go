package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/codepair/internal/ids"
	"github.com/eldtechnologies/codepair/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, now: time.Now}, nil
}

// RunMigrations executes the embedded .sql files in name order.
// Every migration is idempotent so it is safe to run on each start.
func (s *PostgresStore) RunMigrations(ctx context.Context, logger zerolog.Logger) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		logger.Info().Str("file", e.Name()).Msg("migration applied")
	}
	return nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const pgRoomColumns = `id, code, language, created_at, participants`

func scanPgRoom(row pgx.Row) (*models.Room, error) {
	room := &models.Room{}
	err := row.Scan(&room.ID, &room.Code, &room.Language, &room.CreatedAt, &room.Participants)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// CreateRoom creates a new room.
func (s *PostgresStore) CreateRoom(ctx context.Context, language models.Language) (*models.Room, error) {
	return scanPgRoom(s.pool.QueryRow(ctx, `
		INSERT INTO rooms (id, code, language, created_at, participants)
		VALUES ($1, $2, $3, $4, 1)
		RETURNING `+pgRoomColumns,
		ids.NewRoomID(), models.DefaultCode(language), string(language), s.now().UnixMilli()))
}

// GetRoom retrieves a room by ID.
func (s *PostgresStore) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	return scanPgRoom(s.pool.QueryRow(ctx,
		`SELECT `+pgRoomColumns+` FROM rooms WHERE id = $1`,
		models.NormalizeRoomID(id)))
}

// JoinRoom increments the participant counter.
func (s *PostgresStore) JoinRoom(ctx context.Context, id string) (*models.Room, error) {
	return scanPgRoom(s.pool.QueryRow(ctx, `
		UPDATE rooms SET participants = participants + 1
		WHERE id = $1
		RETURNING `+pgRoomColumns,
		models.NormalizeRoomID(id)))
}

// LeaveRoom decrements the participant counter, never below zero.
func (s *PostgresStore) LeaveRoom(ctx context.Context, id string) (*models.Room, error) {
	return scanPgRoom(s.pool.QueryRow(ctx, `
		UPDATE rooms SET participants = GREATEST(participants - 1, 0)
		WHERE id = $1
		RETURNING `+pgRoomColumns,
		models.NormalizeRoomID(id)))
}

// UpdateCode overwrites the room's code buffer.
func (s *PostgresStore) UpdateCode(ctx context.Context, id, code string) (*models.Room, error) {
	return scanPgRoom(s.pool.QueryRow(ctx, `
		UPDATE rooms SET code = $2
		WHERE id = $1
		RETURNING `+pgRoomColumns,
		models.NormalizeRoomID(id), code))
}

// UpdateLanguage overwrites the room's language.
func (s *PostgresStore) UpdateLanguage(ctx context.Context, id string, language models.Language) (*models.Room, error) {
	return scanPgRoom(s.pool.QueryRow(ctx, `
		UPDATE rooms SET language = $2
		WHERE id = $1
		RETURNING `+pgRoomColumns,
		models.NormalizeRoomID(id), string(language)))
}

// AddParticipant records a participant and bumps the room's counter.
func (s *PostgresStore) AddParticipant(ctx context.Context, roomID string, name *string) (*models.Participant, error) {
	roomID = models.NormalizeRoomID(roomID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE rooms SET participants = participants + 1 WHERE id = $1`, roomID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}

	p := &models.Participant{
		ID:       ids.NewParticipantID(),
		Name:     name,
		JoinedAt: s.now().UnixMilli(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO participants (id, room_id, name, joined_at)
		VALUES ($1, $2, $3, $4)
	`, p.ID, roomID, p.Name, p.JoinedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// ListParticipants returns a room's participants ordered by join time.
func (s *PostgresStore) ListParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	roomID = models.NormalizeRoomID(roomID)

	room, err := s.GetRoom(ctx, roomID)
	if err != nil || room == nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, joined_at
		FROM participants
		WHERE room_id = $1
		ORDER BY joined_at, id
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.JoinedAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

// RemoveParticipant deletes a participant and decrements the room's counter.
func (s *PostgresStore) RemoveParticipant(ctx context.Context, roomID, participantID string) (bool, error) {
	roomID = models.NormalizeRoomID(roomID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM participants WHERE id = $1 AND room_id = $2`, participantID, roomID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `UPDATE rooms SET participants = GREATEST(participants - 1, 0) WHERE id = $1`, roomID)
	if err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}
