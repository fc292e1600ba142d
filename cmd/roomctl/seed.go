package main

import (
	"context"
	"fmt"
	"io"

	"github.com/eldtechnologies/codepair/internal/models"
	"github.com/eldtechnologies/codepair/internal/rooms"
)

type sampleRoom struct {
	Language     models.Language
	Participants []string
}

var sampleRooms = []sampleRoom{
	{Language: models.LanguageJavaScript, Participants: []string{"Alice", "Bob"}},
	{Language: models.LanguagePython, Participants: []string{"Carol"}},
}

type seeded struct {
	Room         models.Room
	Participants []models.Participant
}

func (s seeded) names() []string {
	names := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.Name != nil {
			names = append(names, *p.Name)
		}
	}
	return names
}

// seed creates one room per sample and adds its participants, stopping at
// the first failure.
func seed(ctx context.Context, store *rooms.Store, samples []sampleRoom, out io.Writer) ([]seeded, error) {
	var created []seeded
	for _, sample := range samples {
		fmt.Fprintf(out, "Creating room (language=%s)...\n", sample.Language)
		room, err := store.CreateRoom(ctx, sample.Language)
		if err != nil {
			return created, fmt.Errorf("create room: %w", err)
		}
		fmt.Fprintf(out, "  -> created room %s\n", room.ID)

		entry := seeded{Room: *room}
		for i := range sample.Participants {
			name := sample.Participants[i]
			p, err := store.AddParticipant(ctx, room.ID, &name)
			if err != nil {
				return created, fmt.Errorf("add participant %s: %w", name, err)
			}
			if p == nil {
				return created, notFound(room.ID)
			}
			fmt.Fprintf(out, "   - added participant %s %s\n", p.ID, name)
			entry.Participants = append(entry.Participants, *p)
		}
		created = append(created, entry)
	}
	return created, nil
}
