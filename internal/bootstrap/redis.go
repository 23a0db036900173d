package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/importer/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/importer/internal/config"
	"github.com/jonesrussell/north-cloud/importer/internal/events"
	"github.com/jonesrussell/north-cloud/importer/internal/lock"
)

// coordination is the lock backend and the optional event publisher.
type coordination struct {
	locker    lock.Locker
	publisher *events.Publisher
	ping      func(context.Context) error
	close     func() error
}

// setupRedis uses Redis for locks when enabled, so several importer
// processes can share sources. Without Redis locks are process-local.
func setupRedis(ctx context.Context, cfg *config.Config, log infralogger.Logger) (*coordination, error) {
	if !cfg.Redis.Enabled {
		if cfg.Events.Enabled {
			log.Warn("Events require Redis, completion events disabled")
		}
		log.Info("Using in-process source locks")
		return &coordination{
			locker: lock.NewMemoryLocker(),
			close:  func() error { return nil },
		}, nil
	}

	client, err := infraredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("Connected to Redis", infralogger.String("redis_address", cfg.Redis.Address))

	c := &coordination{
		locker: lock.NewRedisLocker(client),
		ping:   func(ctx context.Context) error { return client.Ping(ctx).Err() },
		close:  client.Close,
	}
	if cfg.Events.Enabled {
		c.publisher = newPublisher(client, cfg, log)
	}
	return c, nil
}

func newPublisher(client redis.Cmdable, cfg *config.Config, log infralogger.Logger) *events.Publisher {
	log.Info("Event publisher initialized", infralogger.String("stream", cfg.Events.Stream))
	return events.NewPublisher(client, cfg.Events.Stream, cfg.Events.MaxLen, log)
}
