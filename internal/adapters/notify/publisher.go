package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/admbtski/miglee-sub005/internal/domain"
	platformredis "github.com/admbtski/miglee-sub005/internal/platform/redis"
)

// RedisPublisher fans committed notifications out over a redis pub/sub
// channel; downstream consumers handle per-user delivery (websocket, push).
type RedisPublisher struct {
	client  *platformredis.Client
	channel string
}

// NewRedisPublisher creates a publisher for the given channel.
func NewRedisPublisher(client *platformredis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish implements domain.NotificationPublisher.
func (p *RedisPublisher) Publish(ctx context.Context, n *domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
