package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/akhilsayshi/databot/adapters/clock"
	"github.com/akhilsayshi/databot/adapters/memory"
	"github.com/akhilsayshi/databot/adapters/redis"
	"github.com/akhilsayshi/databot/adapters/sqlite"
	"github.com/akhilsayshi/databot/config"
	"github.com/akhilsayshi/databot/ports"
)

// storeHandles bundles a window store with its cleanup hooks. purge is
// non-nil only for backends that need periodic expired-row removal.
type storeHandles struct {
	store ports.WindowStore
	purge func(context.Context) (int64, error)
	close func() error
}

// buildStore constructs the window store named by the configuration.
// With dev=true the redis driver starts an in-process miniredis instead of
// dialing a real server.
func buildStore(cfg *config.Config, logger zerolog.Logger, dev bool) (*storeHandles, error) {
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn().Msg("memory store selected: usage counters will not survive a restart")
		return &storeHandles{
			store: memory.NewWindowStore(clock.Real{}),
			close: func() error { return nil },
		}, nil

	case "redis":
		var rdb *goredis.Client
		var mini *miniredis.Miniredis

		if dev {
			var err error
			mini, err = miniredis.Run()
			if err != nil {
				return nil, fmt.Errorf("start miniredis: %w", err)
			}
			rdb = goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
			logger.Info().Str("addr", mini.Addr()).Msg("dev: in-process miniredis started")
		} else {
			rdb = goredis.NewClient(&goredis.Options{
				Addr:         cfg.Store.Redis.Addr,
				Password:     cfg.Store.Redis.Password,
				DB:           cfg.Store.Redis.DB,
				DialTimeout:  cfg.Store.Redis.Timeout,
				ReadTimeout:  cfg.Store.Redis.Timeout,
				WriteTimeout: cfg.Store.Redis.Timeout,
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.Redis.Timeout)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			if mini != nil {
				mini.Close()
			}
			return nil, fmt.Errorf("redis ping: %w", err)
		}

		return &storeHandles{
			store: redis.NewWindowStore(rdb),
			close: func() error {
				err := rdb.Close()
				if mini != nil {
					mini.Close()
				}
				return err
			},
		}, nil

	case "sqlite":
		db, err := sqlite.Open(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite store: %w", err)
		}
		ws := sqlite.NewWindowStore(db, clock.Real{})
		return &storeHandles{
			store: ws,
			purge: ws.PurgeExpired,
			close: db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// setupLogger builds the process logger from config.
func setupLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
