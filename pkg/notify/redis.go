package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/redis/go-redis/v9"
)

type redisSink struct {
	rdb     *redis.Client
	channel string
	stream  string
}

type redisConfig struct {
	opts    *redis.Options
	channel string
	stream  string
}

func redisConfigFrom(u *url.URL) (redisConfig, error) {
	q := u.Query()
	cfg := redisConfig{channel: q.Get("channel"), stream: q.Get("stream")}
	if cfg.channel == "" && cfg.stream == "" {
		return cfg, errors.New("missing ?channel= or ?stream=")
	}
	if cfg.channel != "" && cfg.stream != "" {
		return cfg, errors.New("set only one of ?channel= and ?stream=")
	}
	opts, err := redis.ParseURL(stripQuery(u, "channel", "stream").String())
	if err != nil {
		return cfg, err
	}
	cfg.opts = opts
	return cfg, nil
}

func checkRedis(u *url.URL) error {
	_, err := redisConfigFrom(u)
	return err
}

func openRedis(ctx context.Context, u *url.URL) (Sink, error) {
	cfg, err := redisConfigFrom(u)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(cfg.opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisSink{rdb: rdb, channel: cfg.channel, stream: cfg.stream}, nil
}

func (s *redisSink) Send(ctx context.Context, msg Message) error {
	if s.stream != "" {
		err := s.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]interface{}{
				"type":         msg.Event.Type,
				"content_type": msg.ContentType,
				"data":         msg.Body,
			},
		}).Err()
		if err != nil {
			return fmt.Errorf("XAdd error: %w", err)
		}
		return nil
	}
	if err := s.rdb.Publish(ctx, s.channel, msg.Body).Err(); err != nil {
		return fmt.Errorf("publish error: %w", err)
	}
	return nil
}

func (s *redisSink) Close() error {
	return s.rdb.Close()
}
