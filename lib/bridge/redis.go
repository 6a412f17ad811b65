package bridge

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTransport shares one pub/sub channel between every relay process
// connected to the same Redis server.
type RedisTransport struct {
	client *redis.Client
}

// NewRedisTransport connects using a redis:// or rediss:// URL
func NewRedisTransport(ctx context.Context, url string) (*RedisTransport, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	return &RedisTransport{client: client}, nil
}

func (t *RedisTransport) Publish(ctx context.Context, topic string, data []byte) error {
	return t.client.Publish(ctx, topic, data).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so anything
// published afterwards is guaranteed to be received.
func (t *RedisTransport) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	pubsub := t.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	messages := pubsub.Channel(redis.WithChannelSize(subscriberBuffer))
	out := make(chan []byte, subscriberBuffer)

	go func() {
		defer close(out)
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (t *RedisTransport) Close() error {
	return t.client.Close()
}
