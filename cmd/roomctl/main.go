// roomctl drives the room store from a terminal, against a local backend or
// a running server (API_URL).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/codepair/internal/config"
	"github.com/eldtechnologies/codepair/internal/models"
	"github.com/eldtechnologies/codepair/internal/remote"
	"github.com/eldtechnologies/codepair/internal/rooms"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		usage()
		return
	}

	cfg := config.Load()
	cfg.PreferPersistent()
	if cmd == "watch" {
		exitOnError(checkWatch(cfg))
	}

	level := zerolog.WarnLevel
	if cfg.IsDevelopment() {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := rooms.Open(ctx, cfg, logger)
	exitOnError(err)
	defer store.Close()

	if err := run(ctx, store, cmd, args, os.Stdin, os.Stdout); err != nil {
		store.Close()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// run executes one subcommand against store.
func run(ctx context.Context, store *rooms.Store, cmd string, args []string, in io.Reader, out io.Writer) error {
	switch cmd {
	case "create":
		fs := flag.NewFlagSet("create", flag.ContinueOnError)
		lang := fs.String("lang", string(models.LanguageJavaScript), "room language (javascript|python)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		language, err := models.ParseLanguage(*lang)
		if err != nil {
			return err
		}
		room, err := store.CreateRoom(ctx, language)
		if err != nil {
			return err
		}
		return printJSON(out, room)

	case "get", "join":
		id, err := roomArg(cmd, args)
		if err != nil {
			return err
		}
		var room *models.Room
		if cmd == "get" {
			room, err = store.GetRoom(ctx, id)
		} else {
			room, err = store.JoinRoom(ctx, id)
		}
		if err != nil {
			return err
		}
		return printRoom(out, id, room)

	case "leave":
		id, err := roomArg(cmd, args)
		if err != nil {
			return err
		}
		room, err := store.LeaveRoom(ctx, id)
		if err != nil {
			return err
		}
		if room == nil && store.Mode() == rooms.ModeLocal {
			return notFound(id)
		}
		fmt.Fprintf(out, "Left room %s\n", models.NormalizeRoomID(id))
		return nil

	case "code":
		fs := flag.NewFlagSet("code", flag.ContinueOnError)
		file := fs.String("file", "", "read code from file instead of stdin")
		if err := fs.Parse(args); err != nil {
			return err
		}
		id, err := roomArg(cmd, fs.Args())
		if err != nil {
			return err
		}
		code, err := readCode(*file, in)
		if err != nil {
			return err
		}
		room, err := store.UpdateCode(ctx, id, code)
		if err != nil {
			return err
		}
		return printRoom(out, id, room)

	case "lang":
		if len(args) < 2 {
			return fmt.Errorf("usage: roomctl lang <room_id> <javascript|python>")
		}
		language, err := models.ParseLanguage(args[1])
		if err != nil {
			return err
		}
		room, err := store.UpdateLanguage(ctx, args[0], language)
		if err != nil {
			return err
		}
		return printRoom(out, args[0], room)

	case "participants":
		return runParticipants(ctx, store, args, out)

	case "watch":
		id, err := roomArg(cmd, args)
		if err != nil {
			return err
		}
		return watch(ctx, store, id, out)

	case "seed":
		summary, err := seed(ctx, store, sampleRooms, out)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "\nSeeding complete. Summary:")
		for _, s := range summary {
			fmt.Fprintf(out, "Room %s (%s) -> participants: %v\n", s.Room.ID, s.Room.Language, s.names())
		}
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func runParticipants(ctx context.Context, store *rooms.Store, args []string, out io.Writer) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: roomctl participants <add|list|remove> <room_id> [name|participant_id]")
	}
	action, id := args[0], args[1]

	switch action {
	case "add":
		var name *string
		if len(args) > 2 {
			name = &args[2]
		}
		p, err := store.AddParticipant(ctx, id, name)
		if err != nil {
			return err
		}
		if p == nil {
			return notFound(id)
		}
		return printJSON(out, p)

	case "list":
		list, err := store.ListParticipants(ctx, id)
		if err != nil {
			return err
		}
		if list == nil {
			return notFound(id)
		}
		return printJSON(out, list)

	case "remove":
		if len(args) < 3 {
			return fmt.Errorf("usage: roomctl participants remove <room_id> <participant_id>")
		}
		ok, err := store.RemoveParticipant(ctx, id, args[2])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("participant %s not found in room %s", args[2], models.NormalizeRoomID(id))
		}
		fmt.Fprintf(out, "Removed %s\n", args[2])
		return nil

	default:
		return fmt.Errorf("unknown participants action: %s", action)
	}
}

// watch prints every update to roomID until ctx is cancelled.
func watch(ctx context.Context, store *rooms.Store, roomID string, out io.Writer) error {
	updates := make(chan models.Room, 16)
	unsubscribe := store.Subscribe(roomID, func(room models.Room) {
		select {
		case updates <- room:
		default:
		}
	})
	defer unsubscribe()

	if store.Mode() == rooms.ModeRemote {
		off := store.OnStatusChange(func(s remote.Status) {
			fmt.Fprintf(os.Stderr, "[%s] push %s\n", time.Now().Format(time.Kitchen), s)
		})
		defer off()
	}

	fmt.Fprintf(os.Stderr, "Watching room %s (Ctrl-C to stop)\n", models.NormalizeRoomID(roomID))
	for {
		select {
		case <-ctx.Done():
			return nil
		case room := <-updates:
			if err := printJSON(out, models.NewRoomUpdate(room)); err != nil {
				return err
			}
		}
	}
}

// checkWatch rejects watching rooms no other process can change.
func checkWatch(cfg *config.Config) error {
	if cfg.IsRemote() || cfg.RedisURL != "" || cfg.StorageDriver != config.DriverMemory {
		return nil
	}
	return fmt.Errorf("watch needs shared storage: STORAGE_DRIVER=memory keeps rooms inside this process")
}

func roomArg(cmd string, args []string) (string, error) {
	if len(args) < 1 || args[0] == "" {
		return "", fmt.Errorf("usage: roomctl %s <room_id>", cmd)
	}
	return args[0], nil
}

func readCode(file string, in io.Reader) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func notFound(id string) error {
	return fmt.Errorf("room %s not found", models.NormalizeRoomID(id))
}

func printRoom(out io.Writer, id string, room *models.Room) error {
	if room == nil {
		return notFound(id)
	}
	return printJSON(out, room)
}

func usage() {
	fmt.Println(`roomctl - collaborative interview rooms

Usage: roomctl <command> [options]

Commands:
  create [-lang L]                       Create a room (javascript|python)
  get <room>                             Show a room
  join <room>                            Join a room (increments participants)
  leave <room>                           Leave a room
  code [-file F] <room>                  Replace the room's code (stdin by default)
  lang <room> <language>                 Change the room's language
  participants add <room> [name]         Add a tracked participant
  participants list <room>               List tracked participants
  participants remove <room> <id>        Remove a tracked participant
  watch <room>                           Print room updates until interrupted
  seed                                   Create sample rooms and participants

Environment:
  API_URL              Server URL; selects remote mode when set
  STORAGE_DRIVER       Local backend (file|memory|redis|sqlite|postgres, default file)
  LOCAL_STORE_PATH     File backend location (default ./data/rooms.json)
  REDIS_URL            Redis for storage and cross-process sync
  SYNC_POLL_INTERVAL   How often watch re-reads shared storage without Redis (default 500ms)
  LOCAL_LATENCY        Simulated delay for local mode (e.g. 300ms)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
