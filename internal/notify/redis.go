package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "snaptext:store-changed"

// announcement is the wire form of a change notice.
type announcement struct {
	Origin  string `json:"origin"`
	Version int64  `json:"version"`
}

// RedisBridge announces store versions over Redis pub/sub. Only the version
// travels: receivers reload records from their own store, so the bridge is a
// low-latency nudge for processes that share one store file. It saves them
// waiting for the next Watcher poll; it does not replicate records between
// hosts with separate stores.
type RedisBridge struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

// NewRedisBridge connects to redisURL (redis://host:port/db).
func NewRedisBridge(ctx context.Context, redisURL, channel string, logger *slog.Logger) (*RedisBridge, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBridge{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}, nil
}

// Origin identifies this process on the channel.
func (b *RedisBridge) Origin() string { return b.origin }

// Announce publishes a new version.
func (b *RedisBridge) Announce(ctx context.Context, version int64) error {
	data, err := json.Marshal(announcement{Origin: b.origin, Version: version})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish: %w", err)
	}
	return nil
}

// Listen blocks until ctx is cancelled, calling onRemote for every version
// announced by another process.
func (b *RedisBridge) Listen(ctx context.Context, onRemote func(version int64)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("notify: listening", "channel", b.channel, "origin", b.origin)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(msg.Payload, onRemote)
		}
	}
}

func (b *RedisBridge) handle(payload string, onRemote func(version int64)) {
	var a announcement
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		b.logger.Warn("notify: malformed announcement", "error", err)
		return
	}
	if a.Origin == b.origin {
		return
	}
	b.logger.Debug("notify: remote change", "origin", a.Origin, "version", a.Version)
	onRemote(a.Version)
}

// Close releases the Redis connection.
func (b *RedisBridge) Close() error {
	return b.client.Close()
}
