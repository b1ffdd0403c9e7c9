package publish

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"gpsclock/internal/gps"
)

const redisTimeout = 2 * time.Second

func redisDefaults(cfg RedisConfig) RedisConfig {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Key == "" {
		cfg.Key = "gpsclock:position"
	}
	return cfg
}

// redisPublisher stores the latest position under a key and, when a channel
// is configured, announces every update on it.
type redisPublisher struct {
	rdb *redis.Client
	cfg RedisConfig
}

func openRedis(cfg RedisConfig) (Publisher, error) {
	cfg = redisDefaults(cfg)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr})

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	log.Printf("publish redis addr=%s key=%s channel=%s", cfg.Addr, cfg.Key, cfg.Channel)
	return &redisPublisher{rdb: rdb, cfg: cfg}, nil
}

func (p *redisPublisher) Update(pos gps.Position) error {
	payload, err := encode(pos)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := p.rdb.Set(ctx, p.cfg.Key, payload, 0).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %v", ErrChannel, err)
	}
	if p.cfg.Channel != "" {
		if err := p.rdb.Publish(ctx, p.cfg.Channel, payload).Err(); err != nil {
			return fmt.Errorf("%w: redis publish: %v", ErrChannel, err)
		}
	}
	return nil
}

func (p *redisPublisher) Close() error { return p.rdb.Close() }

type redisSubscriber struct {
	rdb *redis.Client
	key string
}

func subscribeRedis(cfg RedisConfig) (Subscriber, error) {
	cfg = redisDefaults(cfg)
	return &redisSubscriber{rdb: redis.NewClient(&redis.Options{Addr: cfg.Addr}), key: cfg.Key}, nil
}

func (s *redisSubscriber) Current() (gps.Position, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	val, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return gps.Position{}, ErrNoData
	}
	if err != nil {
		return gps.Position{}, fmt.Errorf("%w: redis get: %v", ErrChannel, err)
	}
	return decode(val)
}

func (s *redisSubscriber) Close() error { return s.rdb.Close() }
