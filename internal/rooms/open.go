package rooms

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/codepair/internal/config"
	"github.com/eldtechnologies/codepair/internal/pubsub"
	"github.com/eldtechnologies/codepair/internal/remote"
	"github.com/eldtechnologies/codepair/internal/store"
)

// OpenBackend opens the server's data store selected by cfg.StorageDriver.
// Key-value drivers track participants so every participant endpoint sees
// the same members.
func OpenBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.DataStore, error) {
	return openBackend(ctx, cfg, logger, store.NewTrackedStore)
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger, newLocal func(store.KV) *store.LocalStore) (store.DataStore, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.RunMigrations(ctx, logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info().Msg("connected to PostgreSQL")
		return pg, nil

	case config.DriverSQLite:
		sq, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite")
		return sq, nil

	case config.DriverRedis:
		kv, err := store.NewRedisKV(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		logger.Info().Msg("connected to Redis")
		return newLocal(kv), nil

	case config.DriverFile:
		kv, err := store.NewFileKV(cfg.LocalStorePath)
		if err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
		logger.Info().Str("path", cfg.LocalStorePath).Msg("opened file store")
		return newLocal(kv), nil

	case config.DriverMemory, "":
		return newLocal(store.NewMemoryKV()), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// OpenChannel returns the sync channel for local mode. With REDIS_URL set the
// channel spans processes and is already started; stop it with the returned func.
func OpenChannel(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (pubsub.Channel, func(), error) {
	local := pubsub.NewLocal(pubsub.ChannelName, logger)
	if cfg.RedisURL == "" {
		return local, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ch := pubsub.NewRedisChannel(rdb, local, logger)
	if err := ch.Start(ctx); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("redis channel: %w", err)
	}
	return ch, func() {
		ch.Stop()
		rdb.Close()
	}, nil
}

// Open builds the room store for cfg. A configured API URL selects remote
// mode; otherwise rooms live in the configured local backend, which keeps
// untracked participants like a browser tab does. Stores in different
// processes stay in sync through Redis when REDIS_URL is set, or by polling
// shared storage otherwise.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Store, error) {
	if cfg.IsRemote() {
		push := remote.NewPushChannel(remote.WebSocketURL(cfg.APIURL), nil, logger)
		push.Start(ctx)
		s := NewRemote(remote.NewClient(cfg.APIURL), push, logger)
		s.closers = append(s.closers, push.Stop)
		return s, nil
	}

	backend, err := openBackend(ctx, cfg, logger, store.NewLocalStore)
	if err != nil {
		return nil, err
	}

	var ch pubsub.Channel
	var stop func()
	switch {
	case cfg.RedisURL != "":
		ch, stop, err = OpenChannel(ctx, cfg, logger)
	case cfg.StorageDriver == config.DriverMemory || cfg.StorageDriver == "":
		ch, stop = pubsub.NewLocal(pubsub.ChannelName, logger), func() {}
	default:
		poller := pubsub.NewPoller(pubsub.NewLocal(pubsub.ChannelName, logger), backend.GetRoom, cfg.SyncPollInterval, logger)
		err = poller.Start(ctx)
		ch, stop = poller, poller.Stop
	}
	if err != nil {
		backend.Close()
		return nil, err
	}

	s := NewLocal(backend, ch, cfg.LocalLatency, logger)
	s.closers = append(s.closers, stop)
	return s, nil
}
