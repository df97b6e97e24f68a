package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

// StreamPublisher appends events to a Redis stream for downstream consumers.
type StreamPublisher interface {
	Publish(ctx context.Context, event string, payload any) (string, error)
	Close() error
}

type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	// MaxLen trims the stream approximately; 0 keeps every entry.
	MaxLen int64
}

type streamPublisher struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	stream string
	maxLen int64
}

func NewStreamPublisher(log *logger.Logger, cfg Config) (StreamPublisher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return newStreamPublisher(log, rdb, cfg), nil
}

func newStreamPublisher(log *logger.Logger, rdb goredis.UniversalClient, cfg Config) *streamPublisher {
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "batch-results"
	}
	return &streamPublisher{
		log:    log.With("service", "RedisStreamPublisher"),
		rdb:    rdb,
		stream: stream,
		maxLen: cfg.MaxLen,
	}
}

func (p *streamPublisher) Publish(ctx context.Context, event string, payload any) (string, error) {
	if p == nil || p.rdb == nil {
		return "", errors.New("redis stream publisher not initialized")
	}
	args, err := streamArgs(p.stream, p.maxLen, event, payload)
	if err != nil {
		return "", err
	}
	id, err := p.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	p.log.Debug("Published stream event", "stream", p.stream, "event", event, "id", id)
	return id, nil
}

func streamArgs(stream string, maxLen int64, event string, payload any) (*goredis.XAddArgs, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	args := &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"event":   event,
			"payload": string(raw),
		},
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return args, nil
}

func (p *streamPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
