package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisNotifier publishes events as JSON on a pub/sub channel.
type RedisNotifier struct {
	client  publisher
	channel string
	logger  *slog.Logger
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewRedisNotifier connects and pings the server.
func NewRedisNotifier(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisNotifier(client, cfg.Channel, logger), nil
}

func newRedisNotifier(client publisher, channel string, logger *slog.Logger) *RedisNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

func (n *RedisNotifier) Notify(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	receivers, err := n.client.Publish(ctx, n.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", n.channel, err)
	}
	n.logger.Debug("event published", "file_id", e.FileID, "channel", n.channel, "receivers", receivers)
	return nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
