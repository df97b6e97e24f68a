package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/sciencelab-batchserver/internal/clients/redis"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

type Clients struct {
	Store ObjectStore
	// Stream is nil when REDIS_ADDR is unset; notifications are then skipped.
	Stream redis.StreamPublisher
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	store, err := resolveObjectStore(ctx, log, cfg.Storage)
	if err != nil {
		return Clients{}, err
	}

	var stream redis.StreamPublisher
	if strings.TrimSpace(cfg.Notifications.RedisAddr) != "" {
		stream, err = redis.NewStreamPublisher(log, redis.Config{
			Addr:     cfg.Notifications.RedisAddr,
			Password: cfg.Notifications.RedisPassword,
			DB:       cfg.Notifications.RedisDB,
			Stream:   cfg.Notifications.Stream,
			MaxLen:   cfg.Notifications.StreamMaxLen,
		})
		if err != nil {
			_ = store.Close()
			return Clients{}, fmt.Errorf("init redis stream publisher: %w", err)
		}
	} else {
		log.Warn("REDIS_ADDR not set; result notifications disabled")
	}

	return Clients{Store: store, Stream: stream}, nil
}

func (c Clients) Close() error {
	var errs []error
	if c.Stream != nil {
		errs = append(errs, c.Stream.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}
