package redishost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/latex-mcp-go/sessions"
	"github.com/redis/go-redis/v9"
)

const (
	defaultAddr      = "localhost:6379"
	defaultKeyPrefix = "latex-mcp:sessions:"
	defaultMaxLen    = 1024
	readBlock        = 500 * time.Millisecond
)

// Config for the Redis-backed host. Zero values select the defaults.
type Config struct {
	// RedisAddr like "localhost:6379".
	RedisAddr string
	// KeyPrefix for all keys.
	KeyPrefix string
	// MaxLen approximately bounds each session stream.
	MaxLen int64
}

type Host struct {
	client    *redis.Client
	keyPrefix string
	maxLen    int64
}

var _ sessions.SessionHost = (*Host)(nil)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Host, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = defaultAddr
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Host{client: cl, keyPrefix: prefix, maxLen: maxLen}, nil
}

// Close closes the Redis client.
func (h *Host) Close() error { return h.client.Close() }

func (h *Host) streamKey(sessionID string) string { return h.keyPrefix + "stream:" + sessionID }

func (h *Host) PublishSession(ctx context.Context, sessionID string, data []byte) (string, error) {
	id, err := h.client.XAdd(ctx, &redis.XAddArgs{
		Stream: h.streamKey(sessionID),
		MaxLen: h.maxLen,
		Approx: true,
		Values: map[string]any{"d": data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

func (h *Host) SubscribeSession(ctx context.Context, sessionID string, lastEventID string, handler sessions.MessageHandlerFunction) error {
	key := h.streamKey(sessionID)
	start := lastEventID
	if start == "" {
		// "$" only means "after now" on the first read; pin it to a concrete id.
		last, err := h.lastID(ctx, key)
		if err != nil {
			return err
		}
		start = last
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := h.client.XRead(ctx, &redis.XReadArgs{Streams: []string{key, start}, Count: 16, Block: readBlock}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("xread: %w", err)
		}
		for _, stream := range res {
			for _, m := range stream.Messages {
				start = m.ID
				if err := handler(ctx, m.ID, payload(m.Values["d"])); err != nil {
					return err
				}
			}
		}
	}
}

func (h *Host) lastID(ctx context.Context, key string) (string, error) {
	msgs, err := h.client.XRevRangeN(ctx, key, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("xrevrange: %w", err)
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

func payload(v any) []byte {
	switch d := v.(type) {
	case string:
		return []byte(d)
	case []byte:
		return d
	default:
		return []byte(fmt.Sprintf("%v", d))
	}
}

func (h *Host) CleanupSession(ctx context.Context, sessionID string) error {
	if err := h.client.Del(context.WithoutCancel(ctx), h.streamKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("del stream: %w", err)
	}
	return nil
}
